package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/repository"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/keylock"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

var (
	ErrNotFound      = document.ErrNotFound
	ErrAlreadyExists = document.ErrAlreadyExists
	// ErrPersistenceUnavailable wraps any backend failure that is not a plain miss.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrInvalidContent         = errors.New("content is not valid UTF-8 JSON")
)

// Service defines the document operations used by the session layer and the
// REST handlers.
type Service interface {
	Load(ctx context.Context, id string) (*document.Document, error)
	Create(ctx context.Context, id string) (*document.Document, error)
	GetOrCreate(ctx context.Context, id string) (*document.Document, error)
	Save(ctx context.Context, id string, content json.RawMessage) error
	List(ctx context.Context) ([]*document.Document, error)
}

// Archiver receives a copy of every successfully saved checkpoint.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, id string, content json.RawMessage, at time.Time) error
}

type Option func(*documentService)

// WithArchiver archives every successful save. Archive failures are logged only.
func WithArchiver(a Archiver) Option {
	return func(s *documentService) { s.archiver = a }
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) Service {
	return New(repository.NewMemoryRepo(), opts...)
}

// NewMongoService returns a Service backed by a MongoDB collection.
// Caller is responsible for creating the collection (and client) and passing it in.
func NewMongoService(col *mongo.Collection, opts ...Option) Service {
	return New(repository.NewMongoRepo(col), opts...)
}

// NewRedisService returns a Service storing documents in Redis under prefix.
func NewRedisService(client *redis.Client, prefix string, opts ...Option) Service {
	return New(repository.NewRedisRepo(client, prefix), opts...)
}

// New wraps any repository.
func New(repo repository.Repository, opts ...Option) Service {
	s := &documentService{repo: repo, locks: keylock.New(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type documentService struct {
	repo     repository.Repository
	locks    *keylock.Locker
	archiver Archiver
	now      func() time.Time
}

func unavailable(op, id string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, id, ErrPersistenceUnavailable, err)
}

func (s *documentService) Load(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("load", id, err)
	}
	return d, nil
}

func (s *documentService) Create(ctx context.Context, id string) (*document.Document, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	d, err := s.repo.Create(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, unavailable("create", id, err)
	}
	metrics.DocumentsCreated.Inc()
	logger.Infof("document %s created", id)
	return d, nil
}

// GetOrCreate is serialized per id inside this process; the repository
// guarantees the same across processes.
func (s *documentService) GetOrCreate(ctx context.Context, id string) (*document.Document, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	d, created, err := s.repo.GetOrCreate(ctx, id)
	if err != nil {
		return nil, unavailable("get-or-create", id, err)
	}
	if created {
		metrics.DocumentsCreated.Inc()
		logger.Infof("document %s created", id)
	}
	return d, nil
}

func (s *documentService) Save(ctx context.Context, id string, content json.RawMessage) error {
	// the backends store content as text, so it must be valid UTF-8 to round trip
	if len(content) == 0 || !json.Valid(content) || !utf8.Valid(content) {
		metrics.DocumentSaves.WithLabelValues("invalid").Inc()
		return ErrInvalidContent
	}
	if err := s.repo.Save(ctx, id, content); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			metrics.DocumentSaves.WithLabelValues("not_found").Inc()
			return ErrNotFound
		}
		metrics.DocumentSaves.WithLabelValues("error").Inc()
		return unavailable("save", id, err)
	}
	metrics.DocumentSaves.WithLabelValues("ok").Inc()
	if s.archiver != nil {
		if err := s.archiver.ArchiveSnapshot(ctx, id, content, s.now()); err != nil {
			logger.Warnf("archive of %s failed: %v", id, err)
		}
	}
	return nil
}

func (s *documentService) List(ctx context.Context) ([]*document.Document, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, unavailable("list", "*", err)
	}
	return list, nil
}
