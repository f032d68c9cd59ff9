package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// UnitCatalog is an in-memory unit.Catalog.
type UnitCatalog struct {
	mu    sync.RWMutex
	units map[string]*unit.LearningUnit
}

// NewUnitCatalog creates an empty UnitCatalog.
func NewUnitCatalog() *UnitCatalog {
	return &UnitCatalog{units: make(map[string]*unit.LearningUnit)}
}

// NewUnitCatalogWith creates a catalog pre-populated with the given units.
func NewUnitCatalogWith(units ...*unit.LearningUnit) *UnitCatalog {
	c := NewUnitCatalog()
	for _, u := range units {
		cp := *u
		c.units[u.ID] = &cp
	}
	return c
}

// GetByID returns a single unit.
func (c *UnitCatalog) GetByID(ctx context.Context, id string) (*unit.LearningUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.units[id]
	if !ok {
		return nil, shared.ErrUnitNotFound
	}
	cp := *u
	return &cp, nil
}

// GetAll returns every unit, easiest first.
func (c *UnitCatalog) GetAll(ctx context.Context) ([]*unit.LearningUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*unit.LearningUnit, 0, len(c.units))
	for _, u := range c.units {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Difficulty != out[j].Difficulty {
			return out[i].Difficulty < out[j].Difficulty
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// QueryUpdatedSince returns units written after the watermark.
func (c *UnitCatalog) QueryUpdatedSince(ctx context.Context, since time.Time) ([]*unit.LearningUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*unit.LearningUnit, 0)
	for _, u := range c.units {
		if u.UpdatedAt.After(since) {
			cp := *u
			out = append(out, &cp)
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

// Save inserts or replaces a unit.
func (c *UnitCatalog) Save(ctx context.Context, u *unit.LearningUnit) error {
	if err := u.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	cp := *u
	if existing, ok := c.units[u.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	c.units[u.ID] = &cp
	return nil
}
