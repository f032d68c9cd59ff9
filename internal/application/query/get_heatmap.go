package query

import (
	"context"
	"math"
	"sort"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSROOM HEATMAP QUERY
// Teacher-facing analytics: per-unit performance across all students,
// struggles first, so a teacher sees at a glance where the class is stuck.
// ══════════════════════════════════════════════════════════════════════════════

// MasteryStatus buckets a unit's classroom-wide average score.
type MasteryStatus string

const (
	// StatusStruggle means the average score is below 60.
	StatusStruggle MasteryStatus = "struggle"
	// StatusDeveloping means the average score is below 80.
	StatusDeveloping MasteryStatus = "developing"
	// StatusMastered means the average score is 80 or above.
	StatusMastered MasteryStatus = "mastered"
)

// statusFor buckets an average score.
func statusFor(avgScore float64) MasteryStatus {
	switch {
	case avgScore < 60:
		return StatusStruggle
	case avgScore < 80:
		return StatusDeveloping
	default:
		return StatusMastered
	}
}

// HeatmapCell is one unit's aggregated classroom performance.
type HeatmapCell struct {
	Unit         *unit.LearningUnit
	StudentCount int
	AvgScore     int     // rounded to whole points
	AvgAttempts  float64 // rounded to one decimal
	AvgTime      int     // seconds, rounded
	Status       MasteryStatus
}

// HeatmapCache is an optional cache for the computed heatmap. The heatmap
// aggregates every event in the store, so a snapshot within the TTL is
// served as-is.
type HeatmapCache interface {
	Get(ctx context.Context) ([]HeatmapCell, bool)
	Set(ctx context.Context, cells []HeatmapCell)
}

// GetHeatmapHandler handles the classroom heatmap query.
type GetHeatmapHandler struct {
	events event.Store
	units  unit.Catalog
	cache  HeatmapCache // may be nil
}

// NewGetHeatmapHandler creates a new GetHeatmapHandler. cache may be nil to
// disable snapshot caching.
func NewGetHeatmapHandler(events event.Store, units unit.Catalog, cache HeatmapCache) *GetHeatmapHandler {
	return &GetHeatmapHandler{events: events, units: units, cache: cache}
}

// Handle aggregates every unit with at least one attempt, sorted with the
// lowest average score first. Units nobody attempted are omitted.
func (h *GetHeatmapHandler) Handle(ctx context.Context) ([]HeatmapCell, error) {
	if h.cache != nil {
		if cells, ok := h.cache.Get(ctx); ok {
			return cells, nil
		}
	}

	aggregates, err := h.events.AggregateByUnit(ctx)
	if err != nil {
		return nil, shared.WrapError("analytics", "Heatmap", shared.ErrTransientIO, "failed to aggregate events", err)
	}

	cells := make([]HeatmapCell, 0, len(aggregates))
	for _, agg := range aggregates {
		u, err := h.units.GetByID(ctx, agg.UnitID)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return nil, shared.WrapError("analytics", "Heatmap", shared.ErrTransientIO, "failed to resolve unit", err)
		}

		cells = append(cells, HeatmapCell{
			Unit:         u,
			StudentCount: agg.Samples,
			AvgScore:     int(math.Round(agg.AvgScore)),
			AvgAttempts:  math.Round(agg.AvgAttempts*10) / 10,
			AvgTime:      int(math.Round(agg.AvgTimeSpent)),
			Status:       statusFor(agg.AvgScore),
		})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].AvgScore != cells[j].AvgScore {
			return cells[i].AvgScore < cells[j].AvgScore
		}
		return cells[i].Unit.ID < cells[j].Unit.ID
	})

	if h.cache != nil {
		h.cache.Set(ctx, cells)
	}
	return cells, nil
}
