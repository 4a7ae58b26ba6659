package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/checkpoint"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/sessions"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/keylock"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

// Hub ties the session registry, the per-document rooms, the relay and the
// presence broadcaster together. Membership changes and their roster
// announcements for one document run under that document's lock, so every
// viewer sees rosters in the order the changes happened.
type Hub struct {
	docs     service.Service
	policy   checkpoint.Policy
	registry *sessions.Registry
	rooms    *Rooms
	relay    *Relay
	presence *Broadcaster
	locks    *keylock.Locker

	mirror        sessions.Repository
	mirrorTimeout time.Duration
	messageRPS    float64
	messageBurst  int
}

type HubOption func(*Hub)

// WithPresenceMirror copies every announced roster to repo.
func WithPresenceMirror(repo sessions.Repository, timeout time.Duration) HubOption {
	return func(h *Hub) {
		h.mirror = repo
		h.mirrorTimeout = timeout
	}
}

// WithMessageLimit caps inbound messages per connection. rps <= 0 disables it.
func WithMessageLimit(rps float64, burst int) HubOption {
	return func(h *Hub) {
		h.messageRPS = rps
		h.messageBurst = burst
	}
}

func NewHub(docs service.Service, policy checkpoint.Policy, opts ...HubOption) *Hub {
	h := &Hub{
		docs:     docs,
		policy:   policy,
		registry: sessions.NewRegistry(),
		rooms:    NewRooms(),
		locks:    keylock.New(),
	}
	for _, o := range opts {
		o(h)
	}
	h.relay = NewRelay(h.rooms)
	h.presence = NewBroadcaster(h.rooms, h.mirror, h.mirrorTimeout)
	return h
}

func (h *Hub) Registry() *sessions.Registry { return h.registry }
func (h *Hub) Rooms() *Rooms                { return h.rooms }

// join subscribes p to docID and records the participant. No announcement
// is made here; the coordinator announces once the document is loaded.
func (h *Hub) join(docID string, p Peer, who sessions.Participant) {
	unlock := h.locks.Lock(docID)
	h.rooms.Subscribe(docID, p, who.ID)
	h.registry.Join(docID, who.ID, who.DisplayName)
	unlock()
	metrics.ActiveSessions.Set(float64(h.registry.Count()))
}

// announce sends the roster as it is now, so a late announcement never
// overwrites a newer one.
func (h *Hub) announce(ctx context.Context, docID string) {
	unlock := h.locks.Lock(docID)
	defer unlock()
	roster := h.registry.RosterOf(docID)
	if roster == nil {
		return
	}
	h.presence.Announce(ctx, docID, roster)
}

// leave removes p from docID. The last leave tears the session down and
// releases the document's checkpoint state while still holding the lock,
// so a new session cannot load the document before its final snapshot is
// written.
func (h *Hub) leave(ctx context.Context, docID string, p Peer, participantID string) {
	unlock := h.locks.Lock(docID)
	defer unlock()
	defer func() { metrics.ActiveSessions.Set(float64(h.registry.Count())) }()

	h.rooms.Unsubscribe(docID, p.ID())
	if h.rooms.HasParticipant(docID, participantID) {
		// another tab of the same participant keeps the seat
		return
	}
	roster, err := h.registry.Leave(docID, participantID)
	if errors.Is(err, sessions.ErrSessionGone) {
		logger.Infof("session %s closed", docID)
		h.presence.Forget(ctx, docID)
		h.policy.Release(ctx, docID)
		return
	}
	if err != nil {
		logger.Warnf("leave %s from %s: %v", participantID, docID, err)
		return
	}
	h.presence.Announce(ctx, docID, roster)
}
