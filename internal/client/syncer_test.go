package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// fakeAPI scripts server responses for the syncer.
type fakeAPI struct {
	mu sync.Mutex

	pushCalls  int
	pushedIDs  []string
	pushErr    error
	pushResult *PushResult

	pullCalls  int
	pullSince  []time.Time
	pullErr    error
	pullResult *PullResult

	block chan struct{} // when set, PushEvents waits on it
}

func (f *fakeAPI) PushEvents(ctx context.Context, events []*event.LearningEvent) (*PushResult, error) {
	f.mu.Lock()
	f.pushCalls++
	for _, e := range events {
		f.pushedIDs = append(f.pushedIDs, e.ID)
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	if f.pushResult != nil {
		return f.pushResult, nil
	}
	return &PushResult{
		Inserted: len(events),
		Total:    len(events),
		SyncedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeAPI) PullChanges(ctx context.Context, since time.Time) (*PullResult, error) {
	f.mu.Lock()
	f.pullCalls++
	f.pullSince = append(f.pullSince, since)
	f.mu.Unlock()

	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pullResult != nil {
		return f.pullResult, nil
	}
	return &PullResult{Timestamp: time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)}, nil
}

func TestSyncNow_FullCycle(t *testing.T) {
	store := NewLocalStore()
	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))

	serverTime := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	api := &fakeAPI{
		pushResult: &PushResult{Inserted: 1, Total: 1, SyncedAt: serverTime},
		pullResult: &PullResult{
			UnitsCreated: []*unit.LearningUnit{
				{ID: "u1", Title: "One", Category: "visual", Difficulty: 1, CreatedAt: serverTime, UpdatedAt: serverTime},
			},
			Timestamp: serverTime,
		},
	}

	syncer := NewSyncer(store, api, 0, nil)
	report, err := syncer.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.PulledUnits)
	assert.Equal(t, serverTime, report.Watermark)

	assert.Equal(t, 0, store.PendingCount())
	assert.Equal(t, serverTime, store.Watermark())
	assert.Len(t, store.Units(), 1)
}

func TestSyncNow_EmptyQueueSkipsPush(t *testing.T) {
	store := NewLocalStore()
	api := &fakeAPI{}

	syncer := NewSyncer(store, api, 0, nil)
	report, err := syncer.SyncNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Pushed)
	assert.Equal(t, 0, api.pushCalls)
	// The pull half still runs.
	assert.Equal(t, 1, api.pullCalls)
}

func TestSyncNow_FailedPushRetainsQueue(t *testing.T) {
	store := NewLocalStore()
	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))

	api := &fakeAPI{pushErr: errors.New("connection refused")}
	syncer := NewSyncer(store, api, 0, nil)

	_, err := syncer.SyncNow(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))

	// Nothing was confirmed, so the event goes out on the next cycle.
	assert.Equal(t, 1, store.PendingCount())
	assert.Equal(t, 0, api.pullCalls)

	api.pushErr = nil
	_, err = syncer.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, store.PendingCount())
}

func TestSyncNow_SendsStoredWatermark(t *testing.T) {
	store := NewLocalStore()
	wm := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetWatermark(wm))

	api := &fakeAPI{}
	syncer := NewSyncer(store, api, 0, nil)

	_, err := syncer.SyncNow(context.Background())
	require.NoError(t, err)

	require.Len(t, api.pullSince, 1)
	assert.Equal(t, wm, api.pullSince[0])
}

func TestSyncNow_RejectsConcurrentCycle(t *testing.T) {
	store := NewLocalStore()
	require.NoError(t, store.RecordEvent(localEvent("e1", 70)))

	block := make(chan struct{})
	api := &fakeAPI{block: block}
	syncer := NewSyncer(store, api, 0, nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := syncer.SyncNow(context.Background())
		done <- err
	}()

	<-started
	// Wait until the first cycle is inside the push call.
	require.Eventually(t, syncer.IsSyncing, time.Second, time.Millisecond)

	_, err := syncer.SyncNow(context.Background())
	assert.ErrorIs(t, err, shared.ErrSyncInFlight)

	close(block)
	require.NoError(t, <-done)

	// The guard releases once the cycle finishes.
	_, err = syncer.SyncNow(context.Background())
	require.NoError(t, err)
}
