package sessions

import "encoding/json"

// Participant is one connected user as declared in the connection handshake.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Roster lists the participants of a session in join order.
type Roster []Participant

// MarshalJSON encodes the roster as [[id, displayName], ...], the shape
// clients receive in roster-changed events.
func (r Roster) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, 0, len(r))
	for _, p := range r {
		pairs = append(pairs, [2]string{p.ID, p.DisplayName})
	}
	return json.Marshal(pairs)
}

func (r *Roster) UnmarshalJSON(b []byte) error {
	var pairs [][2]string
	if err := json.Unmarshal(b, &pairs); err != nil {
		return err
	}
	out := make(Roster, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Participant{ID: p[0], DisplayName: p[1]})
	}
	*r = out
	return nil
}

// IDs returns the participant ids in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, p := range r {
		ids = append(ids, p.ID)
	}
	return ids
}

// Session is the live participant set of one document. It is only touched
// while the registry holds the document's lock.
type Session struct {
	DocumentID string
	names      map[string]string
	order      []string
}

func newSession(docID string) *Session {
	return &Session{DocumentID: docID, names: make(map[string]string)}
}

func (s *Session) add(id, name string) {
	if _, ok := s.names[id]; !ok {
		s.order = append(s.order, id)
	}
	s.names[id] = name
}

func (s *Session) remove(id string) bool {
	if _, ok := s.names[id]; !ok {
		return false
	}
	delete(s.names, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Session) roster() Roster {
	out := make(Roster, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Participant{ID: id, DisplayName: s.names[id]})
	}
	return out
}

func (s *Session) len() int { return len(s.order) }
