package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

// RedisRepo stores each document as one JSON value under "<prefix><id>".
// Creation uses SETNX and saves use SET XX, so Redis itself enforces the
// create-once and must-exist rules.
type RedisRepo struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type redisRecord struct {
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRedisRepo creates a Redis-backed document repository. Prefix may be empty.
func NewRedisRepo(client *redis.Client, prefix string) *RedisRepo {
	if prefix == "" {
		prefix = "doc:"
	}
	return &RedisRepo{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRepo) key(id string) string {
	return r.prefix + id
}

func (r *RedisRepo) Load(ctx context.Context, id string) (*document.Document, error) {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("redis load %s: %w", id, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", id, err)
	}
	return &document.Document{
		ID:        id,
		Content:   json.RawMessage(rec.Data),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (r *RedisRepo) Create(ctx context.Context, id string) (*document.Document, error) {
	d := document.New(id, r.now().UTC())
	b, err := json.Marshal(redisRecord{Data: string(d.Content), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt})
	if err != nil {
		return nil, err
	}
	ok, err := r.client.SetNX(ctx, r.key(id), b, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis create %s: %w", id, err)
	}
	if !ok {
		return nil, document.ErrAlreadyExists
	}
	return d, nil
}

func (r *RedisRepo) GetOrCreate(ctx context.Context, id string) (*document.Document, bool, error) {
	d, err := r.Create(ctx, id)
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, document.ErrAlreadyExists) {
		return nil, false, err
	}
	d, err = r.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

func (r *RedisRepo) Save(ctx context.Context, id string, content json.RawMessage) error {
	cur, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	b, err := json.Marshal(redisRecord{Data: string(content), CreatedAt: cur.CreatedAt, UpdatedAt: r.now().UTC()})
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, r.key(id), b, 0).Result()
	if err != nil {
		return fmt.Errorf("redis save %s: %w", id, err)
	}
	if !ok {
		return document.ErrNotFound
	}
	return nil
}

func (r *RedisRepo) List(ctx context.Context) ([]*document.Document, error) {
	out := []*document.Document{}
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := strings.TrimPrefix(iter.Val(), r.prefix)
		d, err := r.Load(ctx, id)
		if err != nil {
			if errors.Is(err, document.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, d)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
