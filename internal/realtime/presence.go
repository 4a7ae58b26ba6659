package realtime

import (
	"context"
	"time"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/sessions"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

// Broadcaster pushes roster snapshots to every viewer of a document,
// including the participant whose join or leave caused it.
type Broadcaster struct {
	rooms         *Rooms
	mirror        sessions.Repository
	mirrorTimeout time.Duration
}

func NewBroadcaster(rooms *Rooms, mirror sessions.Repository, mirrorTimeout time.Duration) *Broadcaster {
	if mirrorTimeout <= 0 {
		mirrorTimeout = 500 * time.Millisecond
	}
	return &Broadcaster{rooms: rooms, mirror: mirror, mirrorTimeout: mirrorTimeout}
}

// Announce is best effort per peer: a peer that cannot take the frame is
// skipped and never delays the others.
func (b *Broadcaster) Announce(ctx context.Context, docID string, roster sessions.Roster) int {
	frame, err := encodeValue(EventRosterChanged, roster)
	if err != nil {
		logger.Warnf("announce on %s: cannot encode roster: %v", docID, err)
		return 0
	}
	n := 0
	for _, p := range b.rooms.Peers(docID) {
		if p.Send(frame) {
			n++
		}
	}
	metrics.PresenceAnnouncements.Inc()

	if b.mirror != nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.mirrorTimeout)
		defer cancel()
		if err := b.mirror.Save(mctx, docID, roster); err != nil {
			logger.Warnf("presence mirror save for %s failed: %v", docID, err)
		}
	}
	return n
}

// Forget drops the mirrored roster of a document whose session is gone.
func (b *Broadcaster) Forget(ctx context.Context, docID string) {
	if b.mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.mirrorTimeout)
	defer cancel()
	if err := b.mirror.Delete(mctx, docID); err != nil {
		logger.Warnf("presence mirror delete for %s failed: %v", docID, err)
	}
}
