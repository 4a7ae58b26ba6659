package realtime

import "sync"

// Peer is the server side of one client connection.
type Peer interface {
	// ID is the transport-assigned connection id.
	ID() string
	// Send enqueues a frame without blocking. It returns false when the
	// peer is closed or could not keep up; the frame is then dropped.
	Send(frame []byte) bool
}

type member struct {
	peer          Peer
	participantID string
}

// Rooms indexes connected peers by the document they are viewing.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]member
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]member)}
}

func (r *Rooms) Subscribe(docID string, p Peer, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[docID]
	if !ok {
		room = make(map[string]member)
		r.rooms[docID] = room
	}
	room[p.ID()] = member{peer: p, participantID: participantID}
}

func (r *Rooms) Unsubscribe(docID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[docID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, docID)
	}
}

// Peers returns a snapshot of the document's subscribers.
func (r *Rooms) Peers(docID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[docID]
	out := make([]Peer, 0, len(room))
	for _, m := range room {
		out = append(out, m.peer)
	}
	return out
}

// HasParticipant reports whether any connection of participantID still
// views docID.
func (r *Rooms) HasParticipant(docID, participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.rooms[docID] {
		if m.participantID == participantID {
			return true
		}
	}
	return false
}

func (r *Rooms) Len(docID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[docID])
}
