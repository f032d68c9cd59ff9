// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSH EVENTS COMMAND
// Server half of the reconciliation protocol: receives a batch of locally
// generated learning events from a client and applies it idempotently.
// ══════════════════════════════════════════════════════════════════════════════

// RawEvent is one client-supplied event before ownership ascription. It
// deliberately carries no student ID: the owner always comes from the
// authenticated caller, never from the wire.
type RawEvent struct {
	ID          string
	UnitID      string
	Score       int
	TimeSpent   int
	Attempts    int
	CompletedAt time.Time
	DeviceID    string
}

// PushEventsCommand contains a batch of events to reconcile into the store.
type PushEventsCommand struct {
	// StudentID is the authenticated caller. Every event in the batch is
	// ascribed to this student.
	StudentID string

	// Events is the raw batch; each entry may be brand-new or a retry of a
	// previously-sent event.
	Events []RawEvent

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command. A malformed batch is rejected here,
// before any storage access.
func (c PushEventsCommand) Validate() error {
	if c.StudentID == "" {
		return shared.NewDomainError("sync", "Push", shared.ErrEmptyValue, "student ID is required")
	}
	if len(c.Events) == 0 {
		return shared.ErrEmptyBatch
	}
	for i, raw := range c.Events {
		if err := ascribe(raw, c.StudentID).Validate(); err != nil {
			return shared.WrapError("sync", "Push", shared.ErrValidation,
				fmt.Sprintf("event %d is malformed", i), err)
		}
	}
	return nil
}

// PushEventsResult reports how the batch was applied.
type PushEventsResult struct {
	// Inserted is the count of events stored for the first time.
	Inserted int

	// Updated is the count of events whose ID was already known and whose
	// row was overwritten (retries land here).
	Updated int

	// Skipped is the count of events rejected by the ownership guard.
	Skipped int

	// Total is the batch size.
	Total int

	// SyncedAt is the server time the batch was applied.
	SyncedAt time.Time
}

// ProfileInvalidator drops a student's cached performance profile. Pushed
// events change the profile, so the cache entry is dropped once a batch
// lands and the next recommendation recomputes from the store.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// PushEventsHandler handles the PushEventsCommand.
type PushEventsHandler struct {
	store    event.TxStore
	profiles ProfileInvalidator // may be nil
	logger   *logger.Logger
}

// NewPushEventsHandler creates a new PushEventsHandler. profiles may be nil
// to disable cache invalidation.
func NewPushEventsHandler(store event.TxStore, profiles ProfileInvalidator, log *logger.Logger) *PushEventsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &PushEventsHandler{
		store:    store,
		profiles: profiles,
		logger:   log.With(logger.Component("push_events")),
	}
}

// Handle applies the batch as one atomic unit: either every accepted event
// is durably stored or none are, so a retry after a mid-batch failure never
// double-counts. Replaying the same batch converges to the same state
// because upserts are keyed by event ID.
//
// Events whose ID collides with a row owned by another student are skipped
// and counted; they do not abort their siblings.
func (h *PushEventsHandler) Handle(ctx context.Context, cmd PushEventsCommand) (*PushEventsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &PushEventsResult{
		Total:    len(cmd.Events),
		SyncedAt: time.Now().UTC(),
	}

	err := h.store.WithinBatch(ctx, func(s event.Store) error {
		for _, raw := range cmd.Events {
			outcome, err := s.Upsert(ctx, ascribe(raw, cmd.StudentID))
			if err != nil {
				if shared.IsOwnershipViolation(err) {
					result.Skipped++
					h.logger.Warn("event skipped by ownership guard",
						logger.StudentID(cmd.StudentID),
						logger.EventID(raw.ID),
					)
					continue
				}
				return err
			}

			switch outcome {
			case event.OutcomeInserted:
				result.Inserted++
			case event.OutcomeUpdated:
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, shared.WrapError("sync", "Push", shared.ErrTransientIO, "batch failed", err)
	}

	if h.profiles != nil && result.Inserted+result.Updated > 0 {
		h.profiles.Invalidate(ctx, cmd.StudentID)
	}

	h.logger.Info("push applied",
		logger.StudentID(cmd.StudentID),
		logger.Int("inserted", result.Inserted),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
	)

	return result, nil
}

// ascribe builds a domain event owned by the authenticated student.
func ascribe(raw RawEvent, studentID string) *event.LearningEvent {
	return &event.LearningEvent{
		ID:          raw.ID,
		StudentID:   studentID,
		UnitID:      raw.UnitID,
		Score:       event.Score(raw.Score),
		TimeSpent:   raw.TimeSpent,
		Attempts:    raw.Attempts,
		CompletedAt: raw.CompletedAt,
		DeviceID:    raw.DeviceID,
	}
}
