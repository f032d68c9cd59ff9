package postgres

// Embedded schema migrations. The event ID is client-generated and doubles
// as the sync idempotency key, so it is the primary key rather than a
// server-side serial.

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_learning_units",
			UpSQL:   migration001Up,
		},
		{
			Version: 2,
			Name:    "create_learning_events",
			UpSQL:   migration002Up,
		},
		{
			Version: 3,
			Name:    "create_recommendations",
			UpSQL:   migration003Up,
		},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS learning_units (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    category    TEXT NOT NULL,
    difficulty  INTEGER NOT NULL CHECK (difficulty >= 1),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_units_difficulty ON learning_units (difficulty);
CREATE INDEX IF NOT EXISTS idx_units_updated_at ON learning_units (updated_at);
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS learning_events (
    id           TEXT PRIMARY KEY,
    student_id   TEXT NOT NULL,
    unit_id      TEXT NOT NULL,
    score        INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
    time_spent   INTEGER NOT NULL DEFAULT 0 CHECK (time_spent >= 0),
    attempts     INTEGER NOT NULL DEFAULT 1 CHECK (attempts >= 1),
    completed_at TIMESTAMPTZ NOT NULL,
    device_id    TEXT NOT NULL DEFAULT '',
    synced_at    TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Pull queries scan by student and watermark
CREATE INDEX IF NOT EXISTS idx_events_student_updated
    ON learning_events (student_id, updated_at);

-- Recent-history and review queries scan by student and completion time
CREATE INDEX IF NOT EXISTS idx_events_student_completed
    ON learning_events (student_id, completed_at DESC);

-- Heatmap aggregates group by unit
CREATE INDEX IF NOT EXISTS idx_events_unit ON learning_events (unit_id);
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS recommendations (
    id          TEXT PRIMARY KEY,
    student_id  TEXT NOT NULL,
    unit_id     TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL CHECK (confidence BETWEEN 0 AND 1),
    reason      TEXT NOT NULL DEFAULT '',
    is_review   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_recommendations_student_created
    ON recommendations (student_id, created_at DESC);
`
