package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

// MemoryRepo is an in-memory repository used for development and unit tests.
// Documents are lost when the process exits.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

func (m *MemoryRepo) Load(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) Create(_ context.Context, id string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; ok {
		return nil, document.ErrAlreadyExists
	}
	d := document.New(id, m.now().UTC())
	m.store[id] = d
	return d.Clone(), nil
}

func (m *MemoryRepo) GetOrCreate(_ context.Context, id string) (*document.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), false, nil
	}
	d := document.New(id, m.now().UTC())
	m.store[id] = d
	return d.Clone(), true, nil
}

func (m *MemoryRepo) Save(_ context.Context, id string, content json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return document.ErrNotFound
	}
	d.Content = document.CloneContent(content)
	d.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryRepo) List(_ context.Context) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
