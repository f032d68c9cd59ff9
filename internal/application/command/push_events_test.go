package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/infrastructure/persistence/memory"
)

func rawEvent(id, unitID string, score int) RawEvent {
	return RawEvent{
		ID:          id,
		UnitID:      unitID,
		Score:       score,
		TimeSpent:   90,
		Attempts:    1,
		CompletedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DeviceID:    "tablet-1",
	}
}

func TestPushEvents_InsertBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	handler := NewPushEventsHandler(store, nil, nil)

	result, err := handler.Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70), rawEvent("e2", "u2", 85)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 2, result.Total)
	assert.False(t, result.SyncedAt.IsZero())
}

func TestPushEvents_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	handler := NewPushEventsHandler(store, nil, nil)

	cmd := PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70), rawEvent("e2", "u2", 85)},
	}

	_, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)

	// The client never got the response and retries the full batch.
	result, err := handler.Handle(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 2, store.Len())
}

func TestPushEvents_OwnerAscribedFromCaller(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	handler := NewPushEventsHandler(store, nil, nil)

	_, err := handler.Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70)},
	})
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.StudentID)
	assert.True(t, stored.IsSynced())
}

func TestPushEvents_OwnershipCollisionSkipsOnlyThatEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()
	handler := NewPushEventsHandler(store, nil, nil)

	_, err := handler.Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70)},
	})
	require.NoError(t, err)

	// Another student pushes a batch containing the colliding ID plus a
	// legitimate sibling.
	result, err := handler.Handle(ctx, PushEventsCommand{
		StudentID: "s2",
		Events:    []RawEvent{rawEvent("e1", "u1", 99), rawEvent("e9", "u2", 60)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Total)

	// The colliding row still belongs to the first student, untouched.
	stored, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.StudentID)
	assert.Equal(t, event.Score(70), stored.Score)
}

func TestPushEvents_Validation(t *testing.T) {
	ctx := context.Background()
	handler := NewPushEventsHandler(memory.NewEventStore(), nil, nil)

	_, err := handler.Handle(ctx, PushEventsCommand{StudentID: "s1"})
	assert.ErrorIs(t, err, shared.ErrEmptyBatch)

	_, err = handler.Handle(ctx, PushEventsCommand{
		Events: []RawEvent{rawEvent("e1", "u1", 70)},
	})
	assert.Error(t, err)

	bad := rawEvent("e1", "u1", 101)
	_, err = handler.Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{bad},
	})
	assert.True(t, shared.IsValidation(err))
}

type recordingInvalidator struct {
	students []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, studentID string) {
	r.students = append(r.students, studentID)
}

func TestPushEvents_InvalidatesProfileAfterBatch(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	handler := NewPushEventsHandler(memory.NewEventStore(), inv, nil)

	_, err := handler.Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, inv.students)
}

func TestPushEvents_FullySkippedBatchKeepsProfile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEventStore()

	_, err := NewPushEventsHandler(store, nil, nil).Handle(ctx, PushEventsCommand{
		StudentID: "s1",
		Events:    []RawEvent{rawEvent("e1", "u1", 70)},
	})
	require.NoError(t, err)

	inv := &recordingInvalidator{}
	result, err := NewPushEventsHandler(store, inv, nil).Handle(ctx, PushEventsCommand{
		StudentID: "s2",
		Events:    []RawEvent{rawEvent("e1", "u1", 99)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, inv.students)
}
