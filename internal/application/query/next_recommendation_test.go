package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/internal/infrastructure/persistence/memory"
)

func recTestCatalog() *memory.UnitCatalog {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return memory.NewUnitCatalogWith(
		&unit.LearningUnit{ID: "u-visual-1", Title: "Shapes", Category: "visual", Difficulty: 1, CreatedAt: base, UpdatedAt: base},
		&unit.LearningUnit{ID: "u-text-1", Title: "Reading", Category: "text", Difficulty: 2, CreatedAt: base, UpdatedAt: base},
		&unit.LearningUnit{ID: "u-audio-1", Title: "Listening", Category: "audio", Difficulty: 3, CreatedAt: base, UpdatedAt: base},
	)
}

func recTestEvent(id, unitID string, score int, completedAt time.Time) *event.LearningEvent {
	return &event.LearningEvent{
		ID:          id,
		StudentID:   "s1",
		UnitID:      unitID,
		Score:       event.Score(score),
		TimeSpent:   60,
		Attempts:    1,
		CompletedAt: completedAt,
	}
}

func greedyPolicy(t *testing.T) *recommendation.Policy {
	t.Helper()
	p, err := recommendation.NewPolicy(0)
	require.NoError(t, err)
	return p
}

func TestNextRecommendation_NoHistory(t *testing.T) {
	ctx := context.Background()
	events := memory.NewEventStore()
	recLog := memory.NewRecommendationLog()

	handler := NewNextRecommendationHandler(events, recTestCatalog(), recLog, greedyPolicy(t), nil, nil)

	result, err := handler.Handle(ctx, NextRecommendationQuery{StudentID: "s1"})
	require.NoError(t, err)

	require.NotNil(t, result.Unit)
	assert.Equal(t, "u-visual-1", result.Unit.ID)
	assert.False(t, result.IsReview)
	assert.False(t, result.Completed)
	assert.Equal(t, recommendation.ConfidenceFallback, result.Confidence)

	// Every decision is logged for offline audit.
	assert.Equal(t, 1, recLog.Len())
}

func TestNextRecommendation_PrefersStrongCategory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := memory.NewEventStore()

	_, err := events.Upsert(ctx, recTestEvent("e1", "u-text-1", 75, base))
	require.NoError(t, err)
	_, err = events.Upsert(ctx, recTestEvent("e2", "u-visual-1", 40, base))
	require.NoError(t, err)

	handler := NewNextRecommendationHandler(events, recTestCatalog(), memory.NewRecommendationLog(), greedyPolicy(t), nil, nil)

	result, err := handler.Handle(ctx, NextRecommendationQuery{StudentID: "s1"})
	require.NoError(t, err)

	// Text scored best but u-text-1 is not mastered, so it is recommended
	// again at matched confidence.
	require.NotNil(t, result.Unit)
	assert.Equal(t, "u-text-1", result.Unit.ID)
	assert.Equal(t, recommendation.ConfidenceMatched, result.Confidence)
}

func TestNextRecommendation_ExcludesMasteredUnits(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := memory.NewEventStore()

	_, err := events.Upsert(ctx, recTestEvent("e1", "u-visual-1", 95, base))
	require.NoError(t, err)

	handler := NewNextRecommendationHandler(events, recTestCatalog(), memory.NewRecommendationLog(), greedyPolicy(t), nil, nil)

	result, err := handler.Handle(ctx, NextRecommendationQuery{StudentID: "s1"})
	require.NoError(t, err)

	require.NotNil(t, result.Unit)
	assert.NotEqual(t, "u-visual-1", result.Unit.ID)
}

func TestNextRecommendation_AllMasteredFallsBackToReview(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := memory.NewEventStore()

	_, err := events.Upsert(ctx, recTestEvent("e1", "u-visual-1", 95, base))
	require.NoError(t, err)
	_, err = events.Upsert(ctx, recTestEvent("e2", "u-text-1", 82, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = events.Upsert(ctx, recTestEvent("e3", "u-audio-1", 88, base.Add(2*time.Hour)))
	require.NoError(t, err)

	handler := NewNextRecommendationHandler(events, recTestCatalog(), memory.NewRecommendationLog(), greedyPolicy(t), nil, nil)

	result, err := handler.Handle(ctx, NextRecommendationQuery{StudentID: "s1"})
	require.NoError(t, err)

	// The weakest historical score marks the review target.
	require.NotNil(t, result.Unit)
	assert.Equal(t, "u-text-1", result.Unit.ID)
	assert.True(t, result.IsReview)
	assert.False(t, result.Completed)
}

func TestNextRecommendation_EmptyCatalogMeansCompleted(t *testing.T) {
	ctx := context.Background()
	handler := NewNextRecommendationHandler(memory.NewEventStore(), memory.NewUnitCatalog(), memory.NewRecommendationLog(), greedyPolicy(t), nil, nil)

	result, err := handler.Handle(ctx, NextRecommendationQuery{StudentID: "s1"})
	require.NoError(t, err)

	assert.Nil(t, result.Unit)
	assert.True(t, result.Completed)
}

func TestNextRecommendation_RequiresStudent(t *testing.T) {
	handler := NewNextRecommendationHandler(memory.NewEventStore(), recTestCatalog(), memory.NewRecommendationLog(), greedyPolicy(t), nil, nil)
	_, err := handler.Handle(context.Background(), NextRecommendationQuery{})
	assert.Error(t, err)
}
