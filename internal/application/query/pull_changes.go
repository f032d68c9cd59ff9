// Package query contains read operations (CQRS - Queries).
// Queries never mutate state; they assemble read models from the stores.
package query

import (
	"context"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PULL CHANGES QUERY
// Client half of the reconciliation protocol: returns everything that
// changed on the server since the client's watermark, partitioned into
// creates and updates so the client can apply them as inserts or merges.
// ══════════════════════════════════════════════════════════════════════════════

// PullChangesQuery requests a delta since the given watermark. LastPulledAt
// must be the watermark returned by the previous pull, verbatim; a zero
// value means "everything".
type PullChangesQuery struct {
	StudentID    string
	LastPulledAt time.Time
}

// Validate validates the query.
func (q PullChangesQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("sync", "Pull", shared.ErrEmptyValue, "student ID is required")
	}
	return nil
}

// UnitChanges partitions changed units. Deleted is always empty: this
// design has no tombstones, and the slice exists only so clients see a
// stable shape.
type UnitChanges struct {
	Created []*unit.LearningUnit
	Updated []*unit.LearningUnit
	Deleted []*unit.LearningUnit
}

// EventChanges partitions changed events for the requesting student.
type EventChanges struct {
	Created []*event.LearningEvent
	Updated []*event.LearningEvent
	Deleted []*event.LearningEvent
}

// PullChangesResult is the delta plus the next watermark.
type PullChangesResult struct {
	Units  UnitChanges
	Events EventChanges

	// Timestamp is the fresh server watermark. The client must persist it
	// and send it back verbatim on the next pull; substituting wall-clock
	// time would miss writes that land between fetch and response.
	Timestamp time.Time
}

// PullChangesHandler handles the PullChangesQuery.
type PullChangesHandler struct {
	events event.Store
	units  unit.Catalog
	logger *logger.Logger

	// now is the server clock; overridable in tests.
	now func() time.Time
}

// NewPullChangesHandler creates a new PullChangesHandler.
func NewPullChangesHandler(events event.Store, units unit.Catalog, log *logger.Logger) *PullChangesHandler {
	if log == nil {
		log = logger.Default()
	}
	return &PullChangesHandler{
		events: events,
		units:  units,
		logger: log.With(logger.Component("pull_changes")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle fetches and partitions the delta. The new watermark is captured
// before the store reads, so a row written while the queries run is
// reported again on the next pull rather than silently lost.
func (h *PullChangesHandler) Handle(ctx context.Context, q PullChangesQuery) (*PullChangesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	watermark := h.now()

	changedUnits, err := h.units.QueryUpdatedSince(ctx, q.LastPulledAt)
	if err != nil {
		return nil, shared.WrapError("sync", "Pull", shared.ErrTransientIO, "failed to query units", err)
	}

	changedEvents, err := h.events.QueryUpdatedSince(ctx, q.StudentID, q.LastPulledAt)
	if err != nil {
		return nil, shared.WrapError("sync", "Pull", shared.ErrTransientIO, "failed to query events", err)
	}

	result := &PullChangesResult{
		Units: UnitChanges{
			Created: make([]*unit.LearningUnit, 0),
			Updated: make([]*unit.LearningUnit, 0),
			Deleted: make([]*unit.LearningUnit, 0),
		},
		Events: EventChanges{
			Created: make([]*event.LearningEvent, 0),
			Updated: make([]*event.LearningEvent, 0),
			Deleted: make([]*event.LearningEvent, 0),
		},
		Timestamp: watermark,
	}

	for _, u := range changedUnits {
		if u.CreatedAt.After(q.LastPulledAt) {
			result.Units.Created = append(result.Units.Created, u)
		} else {
			result.Units.Updated = append(result.Units.Updated, u)
		}
	}

	for _, e := range changedEvents {
		if e.CreatedAt.After(q.LastPulledAt) {
			result.Events.Created = append(result.Events.Created, e)
		} else {
			result.Events.Updated = append(result.Events.Updated, e)
		}
	}

	h.logger.Debug("pull delta assembled",
		logger.StudentID(q.StudentID),
		logger.Int("units_created", len(result.Units.Created)),
		logger.Int("units_updated", len(result.Units.Updated)),
		logger.Int("events_created", len(result.Events.Created)),
		logger.Int("events_updated", len(result.Events.Updated)),
	)

	return result, nil
}
