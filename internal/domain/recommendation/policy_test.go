package recommendation

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

func catalogUnits() []*unit.LearningUnit {
	return []*unit.LearningUnit{
		{ID: "u-visual-1", Title: "Shapes", Category: "visual", Difficulty: 1},
		{ID: "u-visual-2", Title: "Patterns", Category: "visual", Difficulty: 3},
		{ID: "u-text-1", Title: "Reading", Category: "text", Difficulty: 2},
		{ID: "u-audio-1", Title: "Listening", Category: "audio", Difficulty: 2},
	}
}

func TestNewPolicy_EpsilonBounds(t *testing.T) {
	_, err := NewPolicy(-0.1)
	assert.Error(t, err)

	_, err = NewPolicy(1.0)
	assert.Error(t, err)

	p, err := NewPolicy(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Epsilon())
}

func TestSelect_EmptyCandidates(t *testing.T) {
	p, err := NewPolicy(0)
	require.NoError(t, err)

	_, err = p.Select(nil, PerformanceProfile{})
	assert.Error(t, err)
}

func TestSelect_NoHistoryPicksEasiest(t *testing.T) {
	p, err := NewPolicy(0)
	require.NoError(t, err)

	decision, err := p.Select(catalogUnits(), PerformanceProfile{})
	require.NoError(t, err)

	assert.Equal(t, "u-visual-1", decision.Unit.ID)
	assert.Equal(t, BranchExploit, decision.Branch)
	assert.Equal(t, unit.CategoryMixed, decision.PreferredCategory)
	// No stored unit carries the mixed sentinel, so confidence is the
	// fallback level.
	assert.Equal(t, ConfidenceFallback, decision.Confidence)
	assert.Contains(t, decision.Reason, "no history")
}

func TestSelect_ExploitPrefersCategory(t *testing.T) {
	p, err := NewPolicy(0)
	require.NoError(t, err)

	profile := Analyze([]Sample{
		{Category: "text", Score: 90},
		{Category: "visual", Score: 40},
	})

	decision, err := p.Select(catalogUnits(), profile)
	require.NoError(t, err)

	assert.Equal(t, "u-text-1", decision.Unit.ID)
	assert.Equal(t, ConfidenceMatched, decision.Confidence)
	assert.Contains(t, decision.Reason, "text")
}

func TestSelect_ExploitFallsBackWhenNoCategoryMatch(t *testing.T) {
	p, err := NewPolicy(0)
	require.NoError(t, err)

	profile := Analyze([]Sample{{Category: "kinesthetic", Score: 95}})

	candidates := catalogUnits()
	decision, err := p.Select(candidates, profile)
	require.NoError(t, err)

	// Nothing in the catalog matches the preferred category, so the
	// easiest unit overall wins at fallback confidence.
	assert.Equal(t, "u-visual-1", decision.Unit.ID)
	assert.Equal(t, ConfidenceFallback, decision.Confidence)
}

func TestSelect_DifficultyTieBreaksByID(t *testing.T) {
	p, err := NewPolicy(0)
	require.NoError(t, err)

	candidates := []*unit.LearningUnit{
		{ID: "u-b", Category: "visual", Difficulty: 2},
		{ID: "u-a", Category: "visual", Difficulty: 2},
	}

	decision, err := p.Select(candidates, PerformanceProfile{})
	require.NoError(t, err)
	assert.Equal(t, "u-a", decision.Unit.ID)
}

func TestSelect_ExploreRate(t *testing.T) {
	p, err := NewPolicyWithSource(0.9, rand.NewSource(42))
	require.NoError(t, err)

	profile := Analyze([]Sample{{Category: "text", Score: 90}})

	explore := 0
	const draws = 500
	for i := 0; i < draws; i++ {
		decision, err := p.Select(catalogUnits(), profile)
		require.NoError(t, err)
		if decision.Branch == BranchExplore {
			explore++
		}
	}

	// With epsilon 0.9 the explore fraction over 500 fixed-seed draws sits
	// well inside this band.
	rate := float64(explore) / draws
	assert.Greater(t, rate, 0.8)
	assert.Less(t, rate, 1.0)
}

func TestSelect_ExploreStillReportsMatchedConfidence(t *testing.T) {
	p, err := NewPolicyWithSource(0.9, rand.NewSource(7))
	require.NoError(t, err)

	profile := Analyze([]Sample{{Category: "visual", Score: 90}})

	sawMatched := false
	sawFallback := false
	for i := 0; i < 200; i++ {
		decision, err := p.Select(catalogUnits(), profile)
		require.NoError(t, err)
		if decision.Branch != BranchExplore {
			continue
		}
		// Confidence follows the selected unit's category even on the
		// explore branch.
		if decision.Unit.Category == "visual" {
			assert.Equal(t, ConfidenceMatched, decision.Confidence)
			sawMatched = true
		} else {
			assert.Equal(t, ConfidenceFallback, decision.Confidence)
			sawFallback = true
		}
	}
	assert.True(t, sawMatched)
	assert.True(t, sawFallback)
}

func TestSelect_ConcurrentUse(t *testing.T) {
	p, err := NewPolicy(0.5)
	require.NoError(t, err)

	candidates := catalogUnits()
	profile := PerformanceProfile{"visual": {Count: 2, AverageScore: 80}}

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := p.Select(candidates, profile); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
}
