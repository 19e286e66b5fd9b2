package engine

import (
	"context"

	"doclife/internal/domain"
)

// Store is the persistence boundary. Implementations return a not_found
// *domain.Error for missing rows and stale_state when a Save loses its
// version check.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	AppendActivity(ctx context.Context, a domain.Activity) error
	Activities(ctx context.Context, kind domain.Kind, id string) ([]domain.Activity, error)
	EnqueueIntents(ctx context.Context, intents []domain.Intent) error
}

// Tx is one unit of work. Get with forUpdate holds the entity until Commit
// or Rollback.
type Tx interface {
	Get(ctx context.Context, kind domain.Kind, id string, forUpdate bool) (domain.Entity, error)
	Find(ctx context.Context, q domain.Query) ([]domain.Entity, error)
	Insert(ctx context.Context, e domain.Entity) error
	// Save replaces the stored row if its version still equals expected.
	Save(ctx context.Context, e domain.Entity, expected int64) error
	Delete(ctx context.Context, kind domain.Kind, id string) error
	Commit() error
	Rollback() error
}
