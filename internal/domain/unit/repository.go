package unit

import (
	"context"
	"time"
)

// Catalog is the contract for the unit content catalog.
type Catalog interface {
	// GetByID returns a single unit.
	GetByID(ctx context.Context, id string) (*LearningUnit, error)

	// GetAll returns every unit, ordered by difficulty ascending.
	GetAll(ctx context.Context) ([]*LearningUnit, error)

	// QueryUpdatedSince returns units with UpdatedAt strictly after the
	// given watermark.
	QueryUpdatedSince(ctx context.Context, since time.Time) ([]*LearningUnit, error)

	// Save inserts or replaces a unit (server-side metadata edits only).
	Save(ctx context.Context, u *LearningUnit) error
}
