package sessions

import (
	"errors"
	"sort"
	"sync"

	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/keylock"
)

// ErrSessionGone is returned by Leave when the document has no participants
// left (or never had a session); its registry entry no longer exists.
var ErrSessionGone = errors.New("session gone")

// Registry maps document ids to their live sessions. A session exists if and
// only if at least one participant is joined. Mutations of one document are
// serialized by a per-document lock; the map itself is guarded separately so
// unrelated documents never wait on each other.
type Registry struct {
	locks *keylock.Locker

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{locks: keylock.New(), sessions: make(map[string]*Session)}
}

func (r *Registry) get(docID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[docID]
}

// Join registers the participant, creating the session if needed. Joining
// again with the same id replaces the display name and keeps the position.
func (r *Registry) Join(docID, participantID, displayName string) Roster {
	unlock := r.locks.Lock(docID)
	defer unlock()

	s := r.get(docID)
	if s == nil {
		s = newSession(docID)
		r.mu.Lock()
		r.sessions[docID] = s
		r.mu.Unlock()
	}
	s.add(participantID, displayName)
	return s.roster()
}

// Leave removes the participant. When the roster becomes empty the session
// is deleted and ErrSessionGone is returned. Leaving with an unknown
// participant id is a no-op that reports the current roster.
func (r *Registry) Leave(docID, participantID string) (Roster, error) {
	unlock := r.locks.Lock(docID)
	defer unlock()

	s := r.get(docID)
	if s == nil {
		return nil, ErrSessionGone
	}
	s.remove(participantID)
	if s.len() == 0 {
		r.mu.Lock()
		delete(r.sessions, docID)
		r.mu.Unlock()
		return nil, ErrSessionGone
	}
	return s.roster(), nil
}

// RosterOf returns a snapshot of the document's roster, nil when no session exists.
func (r *Registry) RosterOf(docID string) Roster {
	unlock := r.locks.Lock(docID)
	defer unlock()

	s := r.get(docID)
	if s == nil {
		return nil
	}
	return s.roster()
}

// Exists reports whether the document currently has a session.
func (r *Registry) Exists(docID string) bool {
	return r.get(docID) != nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Documents returns the ids of documents with a live session, sorted.
func (r *Registry) Documents() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
