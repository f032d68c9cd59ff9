package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// UnitCatalog is the PostgreSQL unit catalog.
type UnitCatalog struct {
	conn *Connection
}

// NewUnitCatalog creates a new UnitCatalog.
func NewUnitCatalog(conn *Connection) *UnitCatalog {
	return &UnitCatalog{conn: conn}
}

const unitColumns = `id, title, category, difficulty, created_at, updated_at`

// GetByID returns a single unit.
func (c *UnitCatalog) GetByID(ctx context.Context, id string) (*unit.LearningUnit, error) {
	row := c.conn.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM learning_units WHERE id = $1`, id)

	u, err := scanUnit(row)
	if IsNoRows(err) {
		return nil, shared.ErrUnitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get unit %s: %w", id, err)
	}
	return u, nil
}

// GetAll returns every unit, easiest first.
func (c *UnitCatalog) GetAll(ctx context.Context) ([]*unit.LearningUnit, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT `+unitColumns+`
		 FROM learning_units
		 ORDER BY difficulty, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query units: %w", err)
	}
	defer rows.Close()

	return scanUnits(rows)
}

// QueryUpdatedSince returns units written after the watermark.
func (c *UnitCatalog) QueryUpdatedSince(ctx context.Context, since time.Time) ([]*unit.LearningUnit, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT `+unitColumns+`
		 FROM learning_units
		 WHERE updated_at > $1
		 ORDER BY updated_at, id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query updated units: %w", err)
	}
	defer rows.Close()

	return scanUnits(rows)
}

// Save inserts or replaces a unit.
func (c *UnitCatalog) Save(ctx context.Context, u *unit.LearningUnit) error {
	if err := u.Validate(); err != nil {
		return err
	}

	_, err := c.conn.Exec(ctx, `
		INSERT INTO learning_units (id, title, category, difficulty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    difficulty = EXCLUDED.difficulty,
		    updated_at = NOW()`,
		u.ID, u.Title, string(u.Category), u.Difficulty,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save unit %s: %w", u.ID, err)
	}
	return nil
}

func scanUnit(row pgx.Row) (*unit.LearningUnit, error) {
	var u unit.LearningUnit
	var category string
	err := row.Scan(&u.ID, &u.Title, &category, &u.Difficulty, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Category = unit.Category(category)
	return &u, nil
}

func scanUnits(rows pgx.Rows) ([]*unit.LearningUnit, error) {
	var out []*unit.LearningUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
