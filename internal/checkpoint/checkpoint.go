// Package checkpoint decides when full document snapshots reach the store.
// The session layer hands every checkpoint-save message to a Policy; the
// policy owns timing, the store owns durability.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
)

// Store is the subset of the document service a policy writes through.
type Store interface {
	Save(ctx context.Context, id string, content json.RawMessage) error
	GetOrCreate(ctx context.Context, id string) (*document.Document, error)
}

type Policy interface {
	// Checkpoint records content as the latest full state of docID.
	Checkpoint(ctx context.Context, docID string, content json.RawMessage)
	// Release is called when the document's session is torn down.
	Release(ctx context.Context, docID string)
	Start()
	Stop(ctx context.Context)
}

// persist saves content, recreating the record once when it is missing
// (e.g. the store was unreachable when the session opened it).
func persist(ctx context.Context, store Store, id string, content json.RawMessage) error {
	err := store.Save(ctx, id, content)
	if errors.Is(err, service.ErrNotFound) {
		if _, gerr := store.GetOrCreate(ctx, id); gerr != nil {
			return gerr
		}
		err = store.Save(ctx, id, content)
	}
	return err
}

// Immediate writes every checkpoint synchronously on the caller's goroutine.
type Immediate struct {
	store   Store
	timeout time.Duration
}

func NewImmediate(store Store, timeout time.Duration) *Immediate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Immediate{store: store, timeout: timeout}
}

// Checkpoint outlives the caller's cancellation: a snapshot that reached the
// server is written even if its sender disconnects meanwhile.
func (p *Immediate) Checkpoint(ctx context.Context, docID string, content json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := persist(ctx, p.store, docID, content); err != nil {
		logger.Errorf("checkpoint of %s not persisted: %v", docID, err)
		return
	}
	logger.Debugf("checkpoint of %s saved (%d bytes)", docID, len(content))
}

func (p *Immediate) Release(context.Context, string) {}
func (p *Immediate) Start()                          {}
func (p *Immediate) Stop(context.Context)            {}
