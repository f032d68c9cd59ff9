// Package memory provides in-memory implementations of the domain
// repositories. They back unit tests and the single-process development
// mode; semantics mirror the postgres implementations, including the
// ownership guard and atomic batches.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// EventStore is an in-memory event.TxStore.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]*event.LearningEvent
	now    func() time.Time
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{
		events: make(map[string]*event.LearningEvent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewEventStoreWithClock creates an EventStore with an injected clock.
func NewEventStoreWithClock(now func() time.Time) *EventStore {
	s := NewEventStore()
	s.now = now
	return s
}

// Upsert inserts or updates one event, guarded by ownership.
func (s *EventStore) Upsert(ctx context.Context, e *event.LearningEvent) (event.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(e)
}

func (s *EventStore) upsertLocked(e *event.LearningEvent) (event.UpsertOutcome, error) {
	now := s.now()

	existing, ok := s.events[e.ID]
	if !ok {
		stored := e.Clone()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		stored.MarkSynced(now)
		s.events[e.ID] = stored
		return event.OutcomeInserted, nil
	}

	if !existing.OwnedBy(e.StudentID) {
		return 0, shared.ErrEventOwnerMismatch
	}

	existing.Score = e.Score
	existing.TimeSpent = e.TimeSpent
	existing.Attempts = e.Attempts
	existing.CompletedAt = e.CompletedAt
	existing.DeviceID = e.DeviceID
	existing.UpdatedAt = now
	existing.MarkSynced(now)
	return event.OutcomeUpdated, nil
}

// GetByID returns a single event.
func (s *EventStore) GetByID(ctx context.Context, id string) (*event.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, shared.ErrEventNotFound
	}
	return e.Clone(), nil
}

// QueryRecent returns the student's events, newest completion first.
func (s *EventStore) QueryRecent(ctx context.Context, studentID string, limit int) ([]*event.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*event.LearningEvent, 0)
	for _, e := range s.events {
		if e.OwnedBy(studentID) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// QueryUpdatedSince returns the student's events written after the watermark.
func (s *EventStore) QueryUpdatedSince(ctx context.Context, studentID string, since time.Time) ([]*event.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*event.LearningEvent, 0)
	for _, e := range s.events {
		if e.OwnedBy(studentID) && e.UpdatedAt.After(since) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountByStudent returns the event count and last sync confirmation time.
func (s *EventStore) CountByStudent(ctx context.Context, studentID string) (int, *time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	var last *time.Time
	for _, e := range s.events {
		if !e.OwnedBy(studentID) {
			continue
		}
		count++
		if e.SyncedAt != nil && (last == nil || e.SyncedAt.After(*last)) {
			t := *e.SyncedAt
			last = &t
		}
	}
	return count, last, nil
}

// MasteredUnitIDs returns units the student has mastered at least once.
func (s *EventStore) MasteredUnitIDs(ctx context.Context, studentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.events {
		if e.OwnedBy(studentID) && e.Score.IsMastery() {
			seen[e.UnitID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// QueryLowestScore returns the student's weakest attempt across all history.
func (s *EventStore) QueryLowestScore(ctx context.Context, studentID string) (*event.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lowest *event.LearningEvent
	for _, e := range s.events {
		if !e.OwnedBy(studentID) {
			continue
		}
		if lowest == nil ||
			e.Score < lowest.Score ||
			(e.Score == lowest.Score && e.CompletedAt.Before(lowest.CompletedAt)) {
			lowest = e
		}
	}
	if lowest == nil {
		return nil, shared.ErrEventNotFound
	}
	return lowest.Clone(), nil
}

// AggregateByUnit returns classroom-wide per-unit aggregates.
func (s *EventStore) AggregateByUnit(ctx context.Context) ([]event.UnitAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		samples   int
		score     int
		attempts  int
		timeSpent int
	}
	byUnit := make(map[string]*acc)
	for _, e := range s.events {
		a, ok := byUnit[e.UnitID]
		if !ok {
			a = &acc{}
			byUnit[e.UnitID] = a
		}
		a.samples++
		a.score += int(e.Score)
		a.attempts += e.Attempts
		a.timeSpent += e.TimeSpent
	}

	out := make([]event.UnitAggregate, 0, len(byUnit))
	for unitID, a := range byUnit {
		n := float64(a.samples)
		out = append(out, event.UnitAggregate{
			UnitID:       unitID,
			Samples:      a.samples,
			AvgScore:     float64(a.score) / n,
			AvgAttempts:  float64(a.attempts) / n,
			AvgTimeSpent: float64(a.timeSpent) / n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

// WithinBatch executes fn against a staging copy and commits it only if fn
// returns nil. Readers never observe a half-applied batch.
func (s *EventStore) WithinBatch(ctx context.Context, fn func(event.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staging := &EventStore{
		events: make(map[string]*event.LearningEvent, len(s.events)),
		now:    s.now,
	}
	for id, e := range s.events {
		staging.events[id] = e.Clone()
	}

	if err := fn(staging); err != nil {
		return err
	}

	s.events = staging.events
	return nil
}

// Len returns the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
