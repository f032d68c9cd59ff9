package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// scriptedQuerier replays a fixed sequence of row and exec results so the
// upsert convergence logic can be exercised without a live database.
type scriptedQuerier struct {
	rows  []scriptedRow
	tags  []pgconn.CommandTag
	sqls  []string
	rowIx int
	tagIx int
}

type scriptedRow struct {
	owner string
	err   error
}

func (q *scriptedQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	q.sqls = append(q.sqls, sql)
	row := q.rows[q.rowIx]
	q.rowIx++
	return row
}

func (q *scriptedQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q.sqls = append(q.sqls, sql)
	tag := q.tags[q.tagIx]
	q.tagIx++
	return tag, nil
}

func (q *scriptedQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not scripted")
}

func (r scriptedRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.owner
	return nil
}

func pgTestEvent(id, studentID string) *event.LearningEvent {
	return &event.LearningEvent{
		ID: id, StudentID: studentID, UnitID: "u1", Score: 70,
		TimeSpent: 30, Attempts: 1,
		CompletedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestUpsert_InsertsWhenRowIsNew(t *testing.T) {
	q := &scriptedQuerier{
		rows: []scriptedRow{{err: pgx.ErrNoRows}},
		tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 1")},
	}
	store := &EventStore{q: q}

	outcome, err := store.Upsert(context.Background(), pgTestEvent("e1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, event.OutcomeInserted, outcome)
	assert.Contains(t, q.sqls[0], "FOR UPDATE")
	assert.Contains(t, q.sqls[1], "ON CONFLICT (id) DO NOTHING")
}

func TestUpsert_ConvergesToUpdateOnLostInsertRace(t *testing.T) {
	// Both the lookup and the INSERT miss: a concurrent push of the same id
	// committed in between. The second lookup sees the survivor and the call
	// lands as an update instead of aborting the batch.
	q := &scriptedQuerier{
		rows: []scriptedRow{
			{err: pgx.ErrNoRows},
			{owner: "s1"},
		},
		tags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 0"),
			pgconn.NewCommandTag("UPDATE 1"),
		},
	}
	store := &EventStore{q: q}

	outcome, err := store.Upsert(context.Background(), pgTestEvent("e1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, event.OutcomeUpdated, outcome)
	require.Len(t, q.sqls, 4)
	assert.Contains(t, q.sqls[2], "FOR UPDATE")
	assert.Contains(t, q.sqls[3], "UPDATE learning_events")
}

func TestUpsert_LostRaceToAnotherOwnerIsViolation(t *testing.T) {
	q := &scriptedQuerier{
		rows: []scriptedRow{
			{err: pgx.ErrNoRows},
			{owner: "s2"},
		},
		tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")},
	}
	store := &EventStore{q: q}

	_, err := store.Upsert(context.Background(), pgTestEvent("e1", "s1"))
	require.Error(t, err)
	assert.True(t, shared.IsOwnershipViolation(err))
}

func TestUpsert_ExistingRowOwnedByAnotherStudent(t *testing.T) {
	q := &scriptedQuerier{
		rows: []scriptedRow{{owner: "s2"}},
	}
	store := &EventStore{q: q}

	_, err := store.Upsert(context.Background(), pgTestEvent("e1", "s1"))
	require.Error(t, err)
	assert.True(t, shared.IsOwnershipViolation(err))
}
