package document

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// DefaultContent is the canonical empty document: a single inserted newline.
var DefaultContent = json.RawMessage(`{"ops":[{"insert":"\n"}]}`)

// Document is the persisted unit of collaborative content. Content is an
// opaque JSON value; the server stores and forwards it without parsing.
type Document struct {
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// New returns a document holding DefaultContent, stamped with now.
func New(id string, now time.Time) *Document {
	return &Document{
		ID:        id,
		Content:   CloneContent(DefaultContent),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers never share Content buffers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Content = CloneContent(d.Content)
	return &c
}

func CloneContent(c json.RawMessage) json.RawMessage {
	if c == nil {
		return nil
	}
	out := make(json.RawMessage, len(c))
	copy(out, c)
	return out
}
