package query

import (
	"context"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STATUS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetSyncStatusQuery requests a student's server-side sync summary.
type GetSyncStatusQuery struct {
	StudentID string
}

// SyncStatus summarizes what the server holds for a student.
type SyncStatus struct {
	TotalEvents int
	LastSyncAt  *time.Time
}

// GetSyncStatusHandler handles the GetSyncStatusQuery.
type GetSyncStatusHandler struct {
	events event.Store
}

// NewGetSyncStatusHandler creates a new GetSyncStatusHandler.
func NewGetSyncStatusHandler(events event.Store) *GetSyncStatusHandler {
	return &GetSyncStatusHandler{events: events}
}

// Handle returns the event count and last confirmed sync time.
func (h *GetSyncStatusHandler) Handle(ctx context.Context, q GetSyncStatusQuery) (*SyncStatus, error) {
	if q.StudentID == "" {
		return nil, shared.NewDomainError("sync", "Status", shared.ErrEmptyValue, "student ID is required")
	}

	count, last, err := h.events.CountByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, shared.WrapError("sync", "Status", shared.ErrTransientIO, "failed to count events", err)
	}

	return &SyncStatus{TotalEvents: count, LastSyncAt: last}, nil
}
