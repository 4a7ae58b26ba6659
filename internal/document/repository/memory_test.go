package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

func TestMemoryRepoLifecycle(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	_, err := r.Load(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrNotFound)

	d, err := r.Create(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, string(document.DefaultContent), string(d.Content))

	_, err = r.Create(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrAlreadyExists)

	content := json.RawMessage(`{"ops":[{"insert":"hello\n"}]}`)
	require.NoError(t, r.Save(ctx, "doc1", content))
	got, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, string(content), string(got.Content))
	require.False(t, got.UpdatedAt.Before(d.UpdatedAt))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, r.Save(ctx, "missing", content), document.ErrNotFound)
}

func TestMemoryRepoSaveCopiesContent(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	_, err := r.Create(ctx, "doc1")
	require.NoError(t, err)

	content := json.RawMessage(`{"a":1}`)
	require.NoError(t, r.Save(ctx, "doc1", content))
	content[2] = 'b'

	got, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(got.Content))
}

func TestMemoryRepoGetOrCreateConcurrent(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	created := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, c, err := r.GetOrCreate(ctx, "fresh")
			if err != nil || d.ID != "fresh" {
				t.Errorf("GetOrCreate: doc=%v err=%v", d, err)
				return
			}
			created <- c
		}()
	}
	wg.Wait()
	close(created)

	count := 0
	for c := range created {
		if c {
			count++
		}
	}
	require.Equal(t, 1, count)
}
