package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/keylock"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

// Buffered keeps only the latest snapshot per document and writes pending
// snapshots on a cron schedule, when a session is released and on Stop.
// Writes are serialized per document, so an older snapshot never lands after
// a newer one while a slow store call for one document does not hold up the
// others.
type Buffered struct {
	store   Store
	timeout time.Duration
	cron    *cron.Cron
	locks   *keylock.Locker

	mu      sync.Mutex
	pending map[string]json.RawMessage
}

// NewBuffered validates spec (standard cron syntax or descriptors such as
// "@every 5s") and registers the flush job. Call Start to begin.
func NewBuffered(store Store, spec string, timeout time.Duration) (*Buffered, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	b := &Buffered{
		store:   store,
		timeout: timeout,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		locks:   keylock.New(),
		pending: make(map[string]json.RawMessage),
	}
	if _, err := b.cron.AddFunc(spec, func() { b.Flush(context.Background(), "schedule") }); err != nil {
		return nil, fmt.Errorf("checkpoint schedule %q: %w", spec, err)
	}
	return b, nil
}

func (b *Buffered) Checkpoint(_ context.Context, docID string, content json.RawMessage) {
	b.mu.Lock()
	b.pending[docID] = document.CloneContent(content)
	b.mu.Unlock()
}

// Release writes the pending snapshot of docID right away, so a later
// session for the same document loads it from the store.
func (b *Buffered) Release(ctx context.Context, docID string) {
	b.writePending(ctx, docID, "release")
}

// Flush writes every pending snapshot. Failed writes are put back unless a
// newer snapshot arrived in the meantime, so the next flush retries them.
func (b *Buffered) Flush(ctx context.Context, trigger string) int {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Strings(ids)

	written := 0
	for _, id := range ids {
		if b.writePending(ctx, id, trigger) {
			written++
		}
	}
	return written
}

// writePending takes the pending snapshot of docID and writes it while
// holding the document's lock. It reports whether a snapshot was written.
func (b *Buffered) writePending(ctx context.Context, docID, trigger string) bool {
	unlock := b.locks.Lock(docID)
	defer unlock()

	b.mu.Lock()
	content, ok := b.pending[docID]
	delete(b.pending, docID)
	b.mu.Unlock()
	if !ok {
		return false
	}
	if b.write(ctx, docID, content, trigger) {
		return true
	}
	b.mu.Lock()
	if _, newer := b.pending[docID]; !newer {
		b.pending[docID] = content
	}
	b.mu.Unlock()
	return false
}

func (b *Buffered) write(ctx context.Context, docID string, content json.RawMessage, trigger string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	if err := persist(ctx, b.store, docID, content); err != nil {
		logger.Errorf("checkpoint of %s not persisted (%s): %v", docID, trigger, err)
		return false
	}
	metrics.CheckpointFlushes.WithLabelValues(trigger).Inc()
	logger.Debugf("checkpoint of %s flushed (%s)", docID, trigger)
	return true
}

// Pending reports how many documents have an unwritten snapshot.
func (b *Buffered) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Buffered) Start() {
	b.cron.Start()
	logger.Infof("buffered checkpoints started")
}

// Stop halts the schedule, waits for a running flush and writes what is left.
func (b *Buffered) Stop(ctx context.Context) {
	stopped := b.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	n := b.Flush(ctx, "stop")
	logger.Infof("buffered checkpoints stopped, %d flushed on shutdown", n)
}
