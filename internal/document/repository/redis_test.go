package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

func newTestRedisRepo(t *testing.T) (*RedisRepo, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisRepo(client, "test:doc:"), m
}

func TestRedisRepoCreateLoadSave(t *testing.T) {
	r, m := newTestRedisRepo(t)
	ctx := context.Background()

	_, err := r.Load(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrNotFound)

	d, created, err := r.GetOrCreate(ctx, "doc1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, string(document.DefaultContent), string(d.Content))
	require.True(t, m.Exists("test:doc:doc1"))

	_, created, err = r.GetOrCreate(ctx, "doc1")
	require.NoError(t, err)
	require.False(t, created)

	// whitespace and key order survive the round trip untouched
	content := json.RawMessage(`{ "ops":[ {"insert":"hi"} ] }`)
	require.NoError(t, r.Save(ctx, "doc1", content))
	got, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, string(content), string(got.Content))
	require.Equal(t, d.CreatedAt.Unix(), got.CreatedAt.Unix())

	require.ErrorIs(t, r.Save(ctx, "missing", content), document.ErrNotFound)
	_, err = r.Create(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrAlreadyExists)
}

func TestRedisRepoList(t *testing.T) {
	r, _ := newTestRedisRepo(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		_, err := r.Create(ctx, id)
		require.NoError(t, err)
	}
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "c", list[2].ID)
}

func TestRedisRepoGetOrCreateConcurrent(t *testing.T) {
	r, _ := newTestRedisRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	creates := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.GetOrCreate(ctx, "race")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, creates)
}

func TestRedisRepoUnavailable(t *testing.T) {
	r, m := newTestRedisRepo(t)
	m.Close()
	_, err := r.Load(context.Background(), "doc1")
	require.Error(t, err)
	require.NotErrorIs(t, err, document.ErrNotFound)
}
