package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/database"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

// Runs against a real server only when MONGODB_TEST_URI is set.
func newTestMongoRepo(t *testing.T) *MongoRepo {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	col := client.Database("collab_test").Collection(fmt.Sprintf("documents_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = col.Drop(ctx) })
	return NewMongoRepo(col)
}

func TestMongoRepoRoundTrip(t *testing.T) {
	r := newTestMongoRepo(t)
	ctx := context.Background()

	_, err := r.Load(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrNotFound)

	d, created, err := r.GetOrCreate(ctx, "doc1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, string(document.DefaultContent), string(d.Content))

	content := json.RawMessage(`{"ops": [{"insert":"hi"}, {"insert":"\n"}]}`)
	require.NoError(t, r.Save(ctx, "doc1", content))
	got, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, string(content), string(got.Content))

	require.ErrorIs(t, r.Save(ctx, "nope", content), document.ErrNotFound)
	_, err = r.Create(ctx, "doc1")
	require.ErrorIs(t, err, document.ErrAlreadyExists)
}

func TestMongoRepoGetOrCreateConcurrent(t *testing.T) {
	r := newTestMongoRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	creates := 0
	for i := 0; i < 8; i++ {
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
