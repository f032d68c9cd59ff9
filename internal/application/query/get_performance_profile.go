package query

import (
	"context"
	"sort"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERFORMANCE PROFILE QUERY
// Student-facing view of the same profile the policy exploits.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery requests a student's per-category performance profile.
type GetProfileQuery struct {
	StudentID string
}

// CategoryPreference is one category's aggregated performance.
type CategoryPreference struct {
	Category     unit.Category
	Attempts     int
	AverageScore float64
}

// ProfileResult is the student's learning profile.
type ProfileResult struct {
	Preferences   []CategoryPreference
	TotalAttempts int
}

// GetProfileHandler handles the GetProfileQuery.
type GetProfileHandler struct {
	events event.Store
	units  unit.Catalog
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(events event.Store, units unit.Catalog) *GetProfileHandler {
	return &GetProfileHandler{events: events, units: units}
}

// Handle analyzes the student's recent history, best categories first.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileResult, error) {
	if q.StudentID == "" {
		return nil, shared.NewDomainError("recommendation", "Profile", shared.ErrEmptyValue, "student ID is required")
	}

	recent, err := h.events.QueryRecent(ctx, q.StudentID, recommendation.RecentHistoryLimit)
	if err != nil {
		return nil, shared.WrapError("recommendation", "Profile", shared.ErrTransientIO, "failed to load history", err)
	}

	allUnits, err := h.units.GetAll(ctx)
	if err != nil {
		return nil, shared.WrapError("recommendation", "Profile", shared.ErrTransientIO, "failed to load catalog", err)
	}
	byID := make(map[string]*unit.LearningUnit, len(allUnits))
	for _, u := range allUnits {
		byID[u.ID] = u
	}

	samples := make([]recommendation.Sample, 0, len(recent))
	for _, e := range recent {
		if u, ok := byID[e.UnitID]; ok {
			samples = append(samples, recommendation.Sample{Category: u.Category, Score: e.Score})
		}
	}

	profile := recommendation.Analyze(samples)

	result := &ProfileResult{
		Preferences: make([]CategoryPreference, 0, len(profile)),
	}
	for cat, stats := range profile {
		result.Preferences = append(result.Preferences, CategoryPreference{
			Category:     cat,
			Attempts:     stats.Count,
			AverageScore: stats.AverageScore,
		})
		result.TotalAttempts += stats.Count
	}

	sort.Slice(result.Preferences, func(i, j int) bool {
		if result.Preferences[i].AverageScore != result.Preferences[j].AverageScore {
			return result.Preferences[i].AverageScore > result.Preferences[j].AverageScore
		}
		return result.Preferences[i].Category < result.Preferences[j].Category
	})

	return result, nil
}
