package repository

import (
	"context"
	"encoding/json"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

// Repository persists documents keyed by their externally supplied id.
// Implementations return document.ErrNotFound and document.ErrAlreadyExists
// for the corresponding misses; any other error means the backend failed.
type Repository interface {
	Load(ctx context.Context, id string) (*document.Document, error)
	Create(ctx context.Context, id string) (*document.Document, error)
	// GetOrCreate returns the stored document, creating it with default
	// content when absent. created reports whether this call inserted it.
	GetOrCreate(ctx context.Context, id string) (doc *document.Document, created bool, err error)
	// Save overwrites content and refreshes UpdatedAt. No version check.
	Save(ctx context.Context, id string, content json.RawMessage) error
	List(ctx context.Context) ([]*document.Document, error)
}
