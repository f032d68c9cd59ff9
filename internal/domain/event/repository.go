package event

import (
	"context"
	"time"
)

// UpsertOutcome indicates which branch an upsert took.
type UpsertOutcome int

const (
	// OutcomeInserted means a new row was created.
	OutcomeInserted UpsertOutcome = iota
	// OutcomeUpdated means an existing row owned by the same student was
	// overwritten.
	OutcomeUpdated
)

// String returns the string representation of the outcome.
func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Store is the contract every event store implementation satisfies.
//
// Upsert is keyed by event ID and guarded by ownership: an existing row is
// only updated when its StudentID matches the incoming event's StudentID.
// A cross-student collision fails with shared.ErrOwnershipViolation and must
// not abort sibling upserts at the storage layer; batching policy lives in
// the reconciliation engine. Every write stamps UpdatedAt with the server
// clock.
type Store interface {
	// Upsert inserts the event if its ID is unseen, otherwise updates
	// score/time_spent/attempts/completed_at of the existing row owned by
	// the same student.
	Upsert(ctx context.Context, e *LearningEvent) (UpsertOutcome, error)

	// GetByID returns a single event.
	GetByID(ctx context.Context, id string) (*LearningEvent, error)

	// QueryRecent returns the student's events ordered by CompletedAt
	// descending, bounded by limit.
	QueryRecent(ctx context.Context, studentID string, limit int) ([]*LearningEvent, error)

	// QueryUpdatedSince returns the student's events with UpdatedAt strictly
	// after the given watermark.
	QueryUpdatedSince(ctx context.Context, studentID string, since time.Time) ([]*LearningEvent, error)

	// CountByStudent returns the total number of events for a student and
	// the most recent sync confirmation time, if any.
	CountByStudent(ctx context.Context, studentID string) (int, *time.Time, error)

	// MasteredUnitIDs returns the IDs of every unit for which the student
	// has at least one event at or above the mastery threshold. Mastery is
	// judged over the full history, not the recent window.
	MasteredUnitIDs(ctx context.Context, studentID string) ([]string, error)

	// QueryLowestScore returns the student's single lowest-scoring event
	// across all history, ties broken by oldest CompletedAt. Returns
	// shared.ErrNotFound when the student has no events.
	QueryLowestScore(ctx context.Context, studentID string) (*LearningEvent, error)

	// AggregateByUnit returns classroom-wide per-unit aggregates over all
	// stored events.
	AggregateByUnit(ctx context.Context) ([]UnitAggregate, error)
}

// UnitAggregate summarizes all attempts at one unit across students.
type UnitAggregate struct {
	UnitID       string
	Samples      int
	AvgScore     float64
	AvgAttempts  float64
	AvgTimeSpent float64
}

// TxStore is a Store whose upserts can be grouped into one atomic batch.
// Implementations run fn against a transactional view of the store; the
// batch commits only if fn returns nil.
type TxStore interface {
	Store

	// WithinBatch executes fn atomically. All upserts performed through the
	// Store passed to fn are applied together or not at all.
	WithinBatch(ctx context.Context, fn func(Store) error) error
}
