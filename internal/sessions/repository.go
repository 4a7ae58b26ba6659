package sessions

import "context"

// Repository mirrors live rosters to an external store so other processes
// (dashboards, a second server instance) can see who is editing what. The
// in-process Registry stays the source of truth.
type Repository interface {
	Save(ctx context.Context, docID string, roster Roster) error
	Get(ctx context.Context, docID string) (Roster, error)
	Delete(ctx context.Context, docID string) error
}
