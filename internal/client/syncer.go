package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// SyncAPI is the server surface the syncer needs. Satisfied by APIClient;
// tests substitute a fake.
type SyncAPI interface {
	PushEvents(ctx context.Context, events []*event.LearningEvent) (*PushResult, error)
	PullChanges(ctx context.Context, since time.Time) (*PullResult, error)
}

// SyncReport summarizes one completed sync cycle.
type SyncReport struct {
	Pushed   int
	Inserted int
	Updated  int
	Skipped  int

	PulledUnits  int
	PulledEvents int

	// Watermark is the server timestamp stored after the pull.
	Watermark time.Time

	StartedAt  time.Time
	FinishedAt time.Time
}

// Syncer runs push/pull cycles against the server. A cycle runs to
// completion or fails as a whole; a failed push leaves the local queue
// intact for the next cycle.
//
// The reentrancy guard is scoped to this instance. Two Syncer instances
// over the same store would race; a device runs exactly one.
type Syncer struct {
	store  *LocalStore
	api    SyncAPI
	logger *logger.Logger

	interval time.Duration
	syncing  atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSyncer creates a new Syncer. interval <= 0 disables the background
// loop; SyncNow still works.
func NewSyncer(store *LocalStore, api SyncAPI, interval time.Duration, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Default()
	}
	return &Syncer{
		store:    store,
		api:      api,
		logger:   log.With(logger.Component("syncer")),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SyncNow runs one full sync cycle: push the queue, mark confirmations,
// pull the delta, apply it, store the new watermark. Returns
// shared.ErrSyncInFlight if a cycle is already running.
func (s *Syncer) SyncNow(ctx context.Context) (*SyncReport, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil, shared.ErrSyncInFlight
	}
	defer s.syncing.Store(false)

	report := &SyncReport{StartedAt: time.Now().UTC()}

	if err := s.push(ctx, report); err != nil {
		return nil, err
	}
	if err := s.pull(ctx, report); err != nil {
		return nil, err
	}

	report.FinishedAt = time.Now().UTC()

	s.logger.Info("sync cycle complete",
		logger.Int("pushed", report.Pushed),
		logger.Int("pulled_events", report.PulledEvents),
		logger.Int("pulled_units", report.PulledUnits),
		logger.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// IsSyncing reports whether a cycle is currently running.
func (s *Syncer) IsSyncing() bool {
	return s.syncing.Load()
}

// push sends the unsynced queue. An empty queue skips the network call.
func (s *Syncer) push(ctx context.Context, report *SyncReport) error {
	pending := s.store.UnsyncedEvents()
	if len(pending) == 0 {
		return nil
	}

	result, err := s.api.PushEvents(ctx, pending)
	if err != nil {
		// Queue stays intact; the events go out on the next cycle.
		return shared.WrapError("sync", "Push", shared.ErrTransientIO, "push failed, queue retained", err)
	}

	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	if err := s.store.MarkSynced(ids, result.SyncedAt); err != nil {
		return shared.WrapError("sync", "Push", shared.ErrTransientIO, "failed to record confirmations", err)
	}

	report.Pushed = len(pending)
	report.Inserted = result.Inserted
	report.Updated = result.Updated
	report.Skipped = result.Skipped
	return nil
}

// pull fetches and applies the server delta, then stores the returned
// watermark verbatim.
func (s *Syncer) pull(ctx context.Context, report *SyncReport) error {
	result, err := s.api.PullChanges(ctx, s.store.Watermark())
	if err != nil {
		return shared.WrapError("sync", "Pull", shared.ErrTransientIO, "pull failed", err)
	}

	if err := s.store.ApplyUnitChanges(result.UnitsCreated, result.UnitsUpdated); err != nil {
		return shared.WrapError("sync", "Pull", shared.ErrTransientIO, "failed to apply unit changes", err)
	}
	if err := s.store.ApplyEventChanges(result.EventsCreated, result.EventsUpdated); err != nil {
		return shared.WrapError("sync", "Pull", shared.ErrTransientIO, "failed to apply event changes", err)
	}
	if err := s.store.SetWatermark(result.Timestamp); err != nil {
		return shared.WrapError("sync", "Pull", shared.ErrTransientIO, "failed to store watermark", err)
	}

	report.PulledUnits = len(result.UnitsCreated) + len(result.UnitsUpdated)
	report.PulledEvents = len(result.EventsCreated) + len(result.EventsUpdated)
	report.Watermark = result.Timestamp
	return nil
}

// Start runs the background sync loop until Stop is called or the context
// is cancelled. Failed cycles are logged and retried on the next tick.
func (s *Syncer) Start(ctx context.Context) {
	if s.interval <= 0 {
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.SyncNow(ctx); err != nil {
					if shared.IsTransient(err) {
						s.logger.Warn("sync cycle failed, will retry", logger.Err(err))
					} else {
						s.logger.Error("sync cycle failed", logger.Err(err))
					}
				}
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
