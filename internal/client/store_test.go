package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

func localEvent(id string, score int) *event.LearningEvent {
	return &event.LearningEvent{
		ID:          id,
		StudentID:   "s1",
		UnitID:      "u1",
		Score:       event.Score(score),
		TimeSpent:   30,
		Attempts:    1,
		CompletedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DeviceID:    "tablet-1",
	}
}

func TestLocalStore_RecordAndQueue(t *testing.T) {
	store := NewLocalStore()

	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))
	require.NoError(t, store.RecordEvent(localEvent("e2", 80)))

	assert.Equal(t, 2, store.EventCount())
	assert.Equal(t, 2, store.PendingCount())

	pending := store.UnsyncedEvents()
	require.Len(t, pending, 2)
	// Recorded events are local-only until the server confirms them.
	for _, e := range pending {
		assert.False(t, e.IsSynced())
	}
}

func TestLocalStore_RecordRejectsInvalid(t *testing.T) {
	store := NewLocalStore()

	bad := localEvent("e1", 101)
	assert.Error(t, store.RecordEvent(bad))
	assert.Equal(t, 0, store.EventCount())
}

func TestLocalStore_MarkSyncedClearsQueue(t *testing.T) {
	store := NewLocalStore()
	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))

	syncedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkSynced([]string{"e1"}, syncedAt))

	assert.Equal(t, 0, store.PendingCount())
	stored, err := store.GetEvent("e1")
	require.NoError(t, err)
	require.NotNil(t, stored.SyncedAt)
	assert.Equal(t, syncedAt, *stored.SyncedAt)
}

func TestLocalStore_WatermarkStoredVerbatim(t *testing.T) {
	store := NewLocalStore()
	assert.True(t, store.Watermark().IsZero())

	// Deliberately not "now": the client must keep the server's clock,
	// not its own.
	wm := time.Date(2019, 7, 4, 3, 2, 1, 0, time.UTC)
	require.NoError(t, store.SetWatermark(wm))
	assert.Equal(t, wm, store.Watermark())
}

func TestLocalStore_ApplyChanges(t *testing.T) {
	store := NewLocalStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.ApplyUnitChanges(
		[]*unit.LearningUnit{
			{ID: "u2", Title: "Two", Category: "text", Difficulty: 2, CreatedAt: base, UpdatedAt: base},
		},
		[]*unit.LearningUnit{
			{ID: "u1", Title: "One v2", Category: "visual", Difficulty: 1, CreatedAt: base, UpdatedAt: base},
		},
	))

	units := store.Units()
	require.Len(t, units, 2)
	assert.Equal(t, "u1", units[0].ID)
	assert.Equal(t, "One v2", units[0].Title)

	// A pulled event overwrites the local copy: the server version is
	// already reconciled.
	local := localEvent("e1", 50)
	require.NoError(t, store.RecordEvent(local))

	serverCopy := localEvent("e1", 90)
	serverCopy.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, store.ApplyEventChanges(nil, []*event.LearningEvent{serverCopy}))

	stored, err := store.GetEvent("e1")
	require.NoError(t, err)
	assert.Equal(t, event.Score(90), stored.Score)
	assert.True(t, stored.IsSynced())
	assert.Equal(t, 0, store.PendingCount())
}

func TestPersistentStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	store, err := NewPersistentStore(path)
	require.NoError(t, err)

	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))
	wm := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetWatermark(wm))
	require.NoError(t, store.ApplyUnitChanges([]*unit.LearningUnit{
		{ID: "u1", Title: "One", Category: "visual", Difficulty: 1, CreatedAt: wm, UpdatedAt: wm},
	}, nil))

	// A new process opens the same snapshot.
	reopened, err := NewPersistentStore(path)
	require.NoError(t, err)

	assert.Equal(t, 1, reopened.EventCount())
	assert.Equal(t, 1, reopened.PendingCount())
	assert.Equal(t, wm, reopened.Watermark())
	require.Len(t, reopened.Units(), 1)

	stored, err := reopened.GetEvent("e1")
	require.NoError(t, err)
	assert.Equal(t, event.Score(70), stored.Score)
}

func TestPersistentStore_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	store, err := NewPersistentStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, store.EventCount())
	assert.True(t, store.Watermark().IsZero())
}
