package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT STORE
// PostgreSQL implementation of event.TxStore. All queries run through a
// Querier so the same store works standalone and inside a batch transaction.
// ══════════════════════════════════════════════════════════════════════════════

// EventStore is the PostgreSQL event store.
type EventStore struct {
	conn *Connection
	q    Querier
}

// NewEventStore creates a new EventStore backed by the connection pool.
func NewEventStore(conn *Connection) *EventStore {
	return &EventStore{conn: conn, q: conn.Pool()}
}

const eventColumns = `
	id, student_id, unit_id, score, time_spent, attempts,
	completed_at, device_id, synced_at, created_at, updated_at
`

// Upsert inserts a new event or updates the row it already owns.
//
// The lookup locks the row so concurrent pushes of the same id serialize and
// the last committer wins. A brand-new id can still race a concurrent insert,
// so the INSERT is ON CONFLICT DO NOTHING and a zero rows-affected result
// falls through to the locked update path. The ownership guard stays
// explicit: a conflicting ID owned by another student must surface as an
// ownership violation, not be silently swallowed by a conditional update
// matching zero rows.
func (s *EventStore) Upsert(ctx context.Context, e *event.LearningEvent) (event.UpsertOutcome, error) {
	ownerID, err := s.lockOwner(ctx, e.ID)
	if IsNoRows(err) {
		inserted, insErr := s.insert(ctx, e)
		if insErr != nil {
			return 0, insErr
		}
		if inserted {
			return event.OutcomeInserted, nil
		}
		// Lost a concurrent insert of the same id. The row exists now;
		// reacquire the lock and converge on an update.
		ownerID, err = s.lockOwner(ctx, e.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to look up event %s: %w", e.ID, err)
	}
	if ownerID != e.StudentID {
		return 0, shared.ErrEventOwnerMismatch
	}
	return s.update(ctx, e)
}

func (s *EventStore) lockOwner(ctx context.Context, id string) (string, error) {
	var ownerID string
	err := s.q.QueryRow(ctx,
		`SELECT student_id FROM learning_events WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&ownerID)
	return ownerID, err
}

func (s *EventStore) insert(ctx context.Context, e *event.LearningEvent) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO learning_events
			(id, student_id, unit_id, score, time_spent, attempts,
			 completed_at, device_id, synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.StudentID, e.UnitID, int(e.Score), e.TimeSpent, e.Attempts,
		e.CompletedAt, e.DeviceID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to insert event %s: %w", e.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *EventStore) update(ctx context.Context, e *event.LearningEvent) (event.UpsertOutcome, error) {
	_, err := s.q.Exec(ctx, `
		UPDATE learning_events
		SET score = $2,
		    time_spent = $3,
		    attempts = $4,
		    completed_at = $5,
		    device_id = $6,
		    synced_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND student_id = $7`,
		e.ID, int(e.Score), e.TimeSpent, e.Attempts, e.CompletedAt, e.DeviceID, e.StudentID,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to update event %s: %w", e.ID, err)
	}
	return event.OutcomeUpdated, nil
}

// GetByID returns a single event.
func (s *EventStore) GetByID(ctx context.Context, id string) (*event.LearningEvent, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM learning_events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if IsNoRows(err) {
		return nil, shared.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get event %s: %w", id, err)
	}
	return e, nil
}

// QueryRecent returns the student's events, newest completion first.
func (s *EventStore) QueryRecent(ctx context.Context, studentID string, limit int) ([]*event.LearningEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM learning_events
		 WHERE student_id = $1
		 ORDER BY completed_at DESC, id
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// QueryUpdatedSince returns the student's events written after the watermark.
func (s *EventStore) QueryUpdatedSince(ctx context.Context, studentID string, since time.Time) ([]*event.LearningEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM learning_events
		 WHERE student_id = $1 AND updated_at > $2
		 ORDER BY updated_at, id`,
		studentID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query updated events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountByStudent returns the event count and last sync confirmation time.
func (s *EventStore) CountByStudent(ctx context.Context, studentID string) (int, *time.Time, error) {
	var count int
	var lastSync *time.Time
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*), MAX(synced_at)
		 FROM learning_events
		 WHERE student_id = $1`,
		studentID,
	).Scan(&count, &lastSync)
	if err != nil {
		return 0, nil, fmt.Errorf("postgres: failed to count events: %w", err)
	}
	return count, lastSync, nil
}

// MasteredUnitIDs returns units the student has mastered at least once.
func (s *EventStore) MasteredUnitIDs(ctx context.Context, studentID string) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT DISTINCT unit_id
		 FROM learning_events
		 WHERE student_id = $1 AND score >= $2
		 ORDER BY unit_id`,
		studentID, int(event.MasteryThreshold),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query mastered units: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan unit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QueryLowestScore returns the student's weakest attempt across all history.
func (s *EventStore) QueryLowestScore(ctx context.Context, studentID string) (*event.LearningEvent, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM learning_events
		 WHERE student_id = $1
		 ORDER BY score, completed_at
		 LIMIT 1`,
		studentID,
	)

	e, err := scanEvent(row)
	if IsNoRows(err) {
		return nil, shared.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query lowest score: %w", err)
	}
	return e, nil
}

// AggregateByUnit returns classroom-wide per-unit aggregates.
func (s *EventStore) AggregateByUnit(ctx context.Context) ([]event.UnitAggregate, error) {
	rows, err := s.q.Query(ctx, `
		SELECT unit_id,
		       COUNT(*),
		       AVG(score),
		       AVG(attempts),
		       AVG(time_spent)
		FROM learning_events
		GROUP BY unit_id
		ORDER BY unit_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to aggregate events: %w", err)
	}
	defer rows.Close()

	var out []event.UnitAggregate
	for rows.Next() {
		var a event.UnitAggregate
		if err := rows.Scan(&a.UnitID, &a.Samples, &a.AvgScore, &a.AvgAttempts, &a.AvgTimeSpent); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// WithinBatch executes fn inside a single transaction. The fn receives a
// store view whose queries run through the transaction, so every upsert in
// the batch commits or rolls back together.
func (s *EventStore) WithinBatch(ctx context.Context, fn func(event.Store) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&EventStore{conn: s.conn, q: tx})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCAN HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func scanEvent(row pgx.Row) (*event.LearningEvent, error) {
	var e event.LearningEvent
	var score int
	err := row.Scan(
		&e.ID, &e.StudentID, &e.UnitID, &score, &e.TimeSpent, &e.Attempts,
		&e.CompletedAt, &e.DeviceID, &e.SyncedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Score = event.Score(score)
	return &e, nil
}

func scanEvents(rows pgx.Rows) ([]*event.LearningEvent, error) {
	var out []*event.LearningEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
