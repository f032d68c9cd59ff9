package recommendation

import (
	"context"
	"strings"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// Recommendation is one logged decision of the policy. The log is
// append-only: recommendations are never mutated or deleted, and the live
// recommendation path never reads them back.
type Recommendation struct {
	ID         string
	StudentID  string
	UnitID     string
	Confidence float64
	Reason     string
	IsReview   bool
	CreatedAt  time.Time
}

// Validate checks the recommendation's invariants.
func (r *Recommendation) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return shared.NewDomainError("recommendation", "Validate", shared.ErrInvalidID, "recommendation ID is required")
	}
	if strings.TrimSpace(r.StudentID) == "" {
		return shared.NewDomainError("recommendation", "Validate", shared.ErrEmptyValue, "student ID is required")
	}
	if strings.TrimSpace(r.UnitID) == "" {
		return shared.NewDomainError("recommendation", "Validate", shared.ErrEmptyValue, "unit ID is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return shared.NewDomainError("recommendation", "Validate", shared.ErrValueOutOfRange, "confidence must be in [0, 1]")
	}
	return nil
}

// Log is the append-only store of recommendation decisions.
type Log interface {
	// Append records one decision. No update or delete exists.
	Append(ctx context.Context, r *Recommendation) error

	// ListByStudent returns a student's decisions, newest first, for
	// offline audit.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Recommendation, error)
}
