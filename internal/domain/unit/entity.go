// Package unit contains the learning unit domain model.
// Units are content items; they are created server-side, rarely edited and
// never deleted (no tombstones in this design).
package unit

import (
	"strings"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
)

// Category tags a unit with its content type (e.g. "visual", "text").
type Category string

// CategoryMixed is the sentinel preferred category used when a student has
// no history yet. It is never a valid category for a stored unit, so it
// cannot collide with real content types.
const CategoryMixed Category = "mixed"

// IsValid reports whether the category may be stored on a unit.
func (c Category) IsValid() bool {
	s := string(c)
	return len(s) > 0 && len(s) <= 50 && c != CategoryMixed
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// LearningUnit is a single content item students attempt.
type LearningUnit struct {
	ID         string
	Title      string
	Category   Category
	Difficulty int // ordered scalar, 1 is easiest
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the unit's invariants.
func (u *LearningUnit) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return shared.ErrInvalidUnitID
	}
	if !u.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	if u.Difficulty < 1 {
		return shared.ErrInvalidDifficulty
	}
	return nil
}
