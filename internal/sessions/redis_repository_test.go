package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_SaveGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:presence:", time.Minute)

	ctx := context.Background()
	roster := Roster{{ID: "a", DisplayName: "Ann"}, {ID: "b", DisplayName: "Bob"}}
	require.NoError(t, repo.Save(ctx, "doc1", roster))

	raw, err := m.Get("test:presence:doc1")
	require.NoError(t, err)
	require.JSONEq(t, `[["a","Ann"],["b","Bob"]]`, raw)

	got, err := repo.Get(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, roster, got)

	require.NoError(t, repo.Delete(ctx, "doc1"))
	got2, err := repo.Get(ctx, "doc1")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "", time.Second)

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, "doc2", Roster{{ID: "a", DisplayName: "Ann"}}))
	require.True(t, m.Exists("presence:doc2"))

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got, err := repo.Get(ctx, "doc2")
	require.NoError(t, err)
	require.Nil(t, got)
}
