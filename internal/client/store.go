// Package client implements the device-side half of the sync protocol:
// a local event store with an outbound queue, an API client hardened with
// retries and a circuit breaker, and a syncer that runs push/pull cycles.
// Everything here works fully offline; the server is only needed when a
// sync cycle actually runs.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// LocalStore holds the device's events and unit catalog. Events recorded
// locally stay queued (SyncedAt nil) until a push confirms them. The pull
// watermark is stored verbatim as returned by the server.
type LocalStore struct {
	mu        sync.RWMutex
	events    map[string]*event.LearningEvent
	units     map[string]*unit.LearningUnit
	watermark time.Time

	// path is the snapshot file; empty disables persistence.
	path string
}

// NewLocalStore creates an empty in-memory LocalStore.
func NewLocalStore() *LocalStore {
	return &LocalStore{
		events: make(map[string]*event.LearningEvent),
		units:  make(map[string]*unit.LearningUnit),
	}
}

// NewPersistentStore creates a LocalStore backed by a snapshot file.
// An existing snapshot is loaded; a missing file starts empty.
func NewPersistentStore(path string) (*LocalStore, error) {
	s := NewLocalStore()
	s.path = path
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordEvent stores a locally completed event and queues it for sync.
func (s *LocalStore) RecordEvent(e *event.LearningEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := e.Clone()
	stored.SyncedAt = nil
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.events[stored.ID] = stored

	return s.persistLocked()
}

// UnsyncedEvents returns the queue of events awaiting server confirmation,
// oldest completion first.
func (s *LocalStore) UnsyncedEvents() []*event.LearningEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*event.LearningEvent, 0)
	for _, e := range s.events {
		if !e.IsSynced() {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkSynced flags the given events as confirmed by the server.
func (s *LocalStore) MarkSynced(ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.events[id]; ok {
			e.MarkSynced(at)
		}
	}
	return s.persistLocked()
}

// Watermark returns the last pull watermark.
func (s *LocalStore) Watermark() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// SetWatermark stores the server-returned watermark verbatim.
func (s *LocalStore) SetWatermark(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermark = t
	return s.persistLocked()
}

// ApplyUnitChanges merges pulled unit creates and updates into the local
// catalog. Both are plain replacements keyed by ID.
func (s *LocalStore) ApplyUnitChanges(created, updated []*unit.LearningUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range append(append([]*unit.LearningUnit{}, created...), updated...) {
		cp := *u
		s.units[u.ID] = &cp
	}
	return s.persistLocked()
}

// ApplyEventChanges merges pulled event creates and updates. The server
// copy wins: a pulled event is by definition already reconciled.
func (s *LocalStore) ApplyEventChanges(created, updated []*event.LearningEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range append(append([]*event.LearningEvent{}, created...), updated...) {
		stored := e.Clone()
		if !stored.IsSynced() {
			stored.MarkSynced(stored.UpdatedAt)
		}
		s.events[stored.ID] = stored
	}
	return s.persistLocked()
}

// Units returns the local catalog, easiest first.
func (s *LocalStore) Units() []*unit.LearningUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*unit.LearningUnit, 0, len(s.units))
	for _, u := range s.units {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Difficulty != out[j].Difficulty {
			return out[i].Difficulty < out[j].Difficulty
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetEvent returns a single local event.
func (s *LocalStore) GetEvent(id string) (*event.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, shared.ErrEventNotFound
	}
	return e.Clone(), nil
}

// EventCount returns the number of locally stored events.
func (s *LocalStore) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// PendingCount returns the number of events awaiting sync.
func (s *LocalStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if !e.IsSynced() {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

type snapshot struct {
	Events    []*event.LearningEvent `json:"events"`
	Units     []*unit.LearningUnit   `json:"units"`
	Watermark time.Time              `json:"watermark"`
}

// persistLocked writes the snapshot file. Caller holds the write lock.
func (s *LocalStore) persistLocked() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{
		Events:    make([]*event.LearningEvent, 0, len(s.events)),
		Units:     make([]*unit.LearningUnit, 0, len(s.units)),
		Watermark: s.watermark,
	}
	for _, e := range s.events {
		snap.Events = append(snap.Events, e)
	}
	for _, u := range s.units {
		snap.Units = append(snap.Units, u)
	}
	sort.Slice(snap.Events, func(i, j int) bool { return snap.Events[i].ID < snap.Events[j].ID })
	sort.Slice(snap.Units, func(i, j int) bool { return snap.Units[i].ID < snap.Units[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("client: failed to encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("client: failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// load reads the snapshot file if it exists.
func (s *LocalStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("client: failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("client: failed to decode snapshot: %w", err)
	}

	for _, e := range snap.Events {
		s.events[e.ID] = e
	}
	for _, u := range snap.Units {
		s.units[u.ID] = u
	}
	s.watermark = snap.Watermark
	return nil
}
