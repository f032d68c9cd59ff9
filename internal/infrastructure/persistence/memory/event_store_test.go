package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

func testEvent(id, studentID, unitID string, score int, completedAt time.Time) *event.LearningEvent {
	return &event.LearningEvent{
		ID:          id,
		StudentID:   studentID,
		UnitID:      unitID,
		Score:       event.Score(score),
		TimeSpent:   120,
		Attempts:    1,
		CompletedAt: completedAt,
		DeviceID:    "tablet-1",
	}
}

func TestEventStore_UpsertInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	outcome, err := store.Upsert(ctx, testEvent("e1", "s1", "u1", 70, base))
	require.NoError(t, err)
	assert.Equal(t, event.OutcomeInserted, outcome)

	stored, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, stored.IsSynced())
	assert.Equal(t, event.Score(70), stored.Score)

	// Same ID, better score: the row is overwritten in place.
	outcome, err = store.Upsert(ctx, testEvent("e1", "s1", "u1", 95, base))
	require.NoError(t, err)
	assert.Equal(t, event.OutcomeUpdated, outcome)

	stored, err = store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, event.Score(95), stored.Score)
	assert.Equal(t, 1, store.Len())
}

func TestEventStore_UpsertOwnershipGuard(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Upsert(ctx, testEvent("e1", "s1", "u1", 70, base))
	require.NoError(t, err)

	_, err = store.Upsert(ctx, testEvent("e1", "s2", "u1", 99, base))
	assert.True(t, shared.IsOwnershipViolation(err))

	// The original row is untouched.
	stored, err := store.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.StudentID)
	assert.Equal(t, event.Score(70), stored.Score)
}

func TestEventStore_QueryRecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		_, err := store.Upsert(ctx, testEvent(id, "s1", "u1", 50, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := store.Upsert(ctx, testEvent("other", "s2", "u1", 50, base))
	require.NoError(t, err)

	recent, err := store.QueryRecent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "e3", recent[0].ID)
	assert.Equal(t, "e2", recent[1].ID)
}

func TestEventStore_QueryUpdatedSinceIsStrict(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewEventStoreWithClock(func() time.Time { return clock })

	_, err := store.Upsert(ctx, testEvent("e1", "s1", "u1", 50, clock))
	require.NoError(t, err)

	// Exactly-at-watermark rows are excluded; only strictly-after rows
	// come back.
	changed, err := store.QueryUpdatedSince(ctx, "s1", clock)
	require.NoError(t, err)
	assert.Empty(t, changed)

	changed, err = store.QueryUpdatedSince(ctx, "s1", clock.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, changed, 1)
}

func TestEventStore_MasteredUnitIDs(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// u1 crossed the threshold once in an old attempt; the later weaker
	// attempt does not revoke mastery.
	_, err := store.Upsert(ctx, testEvent("e1", "s1", "u1", 85, base))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, testEvent("e2", "s1", "u1", 40, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, testEvent("e3", "s1", "u2", 79, base))
	require.NoError(t, err)

	mastered, err := store.MasteredUnitIDs(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, mastered)
}

func TestEventStore_QueryLowestScoreOldestTie(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Upsert(ctx, testEvent("newer", "s1", "u2", 40, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, testEvent("older", "s1", "u1", 40, base))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, testEvent("high", "s1", "u3", 90, base))
	require.NoError(t, err)

	weakest, err := store.QueryLowestScore(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "older", weakest.ID)

	_, err = store.QueryLowestScore(ctx, "nobody")
	assert.True(t, shared.IsNotFound(err))
}

func TestEventStore_WithinBatchRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewEventStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := store.WithinBatch(ctx, func(s event.Store) error {
		_, err := s.Upsert(ctx, testEvent("e1", "s1", "u1", 50, base))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())

	err = store.WithinBatch(ctx, func(s event.Store) error {
		_, err := s.Upsert(ctx, testEvent("e1", "s1", "u1", 50, base))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}
