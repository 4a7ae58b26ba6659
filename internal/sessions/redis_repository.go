package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis as the backing store.
// Rosters are stored as JSON under key: "<prefix><docID>" with a TTL so a
// crashed server does not leave stale presence behind forever.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRepository creates a Redis-based roster mirror. Prefix may be empty;
// a zero ttl keeps keys until they are deleted.
func NewRedisRepository(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "presence:"
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) key(docID string) string {
	return r.prefix + docID
}

func (r *RedisRepository) Save(ctx context.Context, docID string, roster Roster) error {
	b, err := json.Marshal(roster)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(docID), b, r.ttl).Err()
}

// Get returns nil, nil when no roster is stored.
func (r *RedisRepository) Get(ctx context.Context, docID string) (Roster, error) {
	b, err := r.client.Get(ctx, r.key(docID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var roster Roster
	if err := json.Unmarshal(b, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

func (r *RedisRepository) Delete(ctx context.Context, docID string) error {
	return r.client.Del(ctx, r.key(docID)).Err()
}
