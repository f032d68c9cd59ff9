// Package event contains the learning event domain model.
// A LearningEvent records one attempt at a learning unit by a student.
// This is the core of the offline-first data model: events are created on
// the client, carried through sync, and reconciled on the server.
package event

import (
	"strings"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Score represents a 0-100 result of one attempt.
type Score int

// IsValid reports whether the score is within the allowed range.
func (s Score) IsValid() bool {
	return s >= 0 && s <= 100
}

// MasteryThreshold is the score at which a unit counts as mastered.
const MasteryThreshold Score = 80

// IsMastery reports whether this score crosses the mastery threshold.
func (s Score) IsMastery() bool {
	return s >= MasteryThreshold
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// LearningEvent represents one attempt at a learning unit by a student.
//
// ID is client-generated and globally unique; it doubles as the idempotency
// key for sync, so replaying the same event converges to the same stored row.
// StudentID is immutable after creation and enforced by the store's
// ownership guard. UpdatedAt is assigned by the server clock on every write,
// independent of the client-supplied CompletedAt.
type LearningEvent struct {
	ID          string
	StudentID   string
	UnitID      string
	Score       Score
	TimeSpent   int // seconds
	Attempts    int
	CompletedAt time.Time
	DeviceID    string
	SyncedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the event's invariants.
func (e *LearningEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return shared.ErrInvalidEventID
	}
	if strings.TrimSpace(e.StudentID) == "" {
		return shared.NewDomainError("event", "Validate", shared.ErrEmptyValue, "student ID is required")
	}
	if strings.TrimSpace(e.UnitID) == "" {
		return shared.ErrInvalidUnitID
	}
	if !e.Score.IsValid() {
		return shared.ErrInvalidScore
	}
	if e.TimeSpent < 0 {
		return shared.ErrInvalidTimeSpent
	}
	if e.Attempts < 1 {
		return shared.ErrInvalidAttempts
	}
	if e.CompletedAt.IsZero() {
		return shared.NewDomainError("event", "Validate", shared.ErrEmptyValue, "completed_at is required")
	}
	return nil
}

// IsSynced reports whether the event has been confirmed by the server.
func (e *LearningEvent) IsSynced() bool {
	return e.SyncedAt != nil
}

// MarkSynced records the server confirmation time.
func (e *LearningEvent) MarkSynced(at time.Time) {
	t := at.UTC()
	e.SyncedAt = &t
}

// OwnedBy reports whether the event belongs to the given student.
func (e *LearningEvent) OwnedBy(studentID string) bool {
	return e.StudentID == studentID
}

// Clone returns a deep copy of the event.
func (e *LearningEvent) Clone() *LearningEvent {
	c := *e
	if e.SyncedAt != nil {
		t := *e.SyncedAt
		c.SyncedAt = &t
	}
	return &c
}
