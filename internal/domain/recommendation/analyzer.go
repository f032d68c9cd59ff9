// Package recommendation contains the recommendation engine domain:
// performance analysis over recent learning events and the epsilon-greedy
// selection policy that picks the next learning unit.
package recommendation

import (
	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERFORMANCE ANALYSIS
// ══════════════════════════════════════════════════════════════════════════════

// Sample is one scored attempt joined with its unit's category.
// Events carry only a unit ID, so the caller resolves categories against the
// catalog before analysis.
type Sample struct {
	Category unit.Category
	Score    event.Score
}

// CategoryStats aggregates a student's attempts within one category.
type CategoryStats struct {
	Count        int
	AverageScore float64
}

// PerformanceProfile maps category to aggregated stats. Categories with no
// observations are absent, never synthesized as zero.
type PerformanceProfile map[unit.Category]CategoryStats

// Analyze computes per-category stats from the given samples. It is a pure
// function: no storage access, no mutation of its input. Callers typically
// supply the student's most recent events (RecentHistoryLimit of them).
func Analyze(samples []Sample) PerformanceProfile {
	sums := make(map[unit.Category]int)
	counts := make(map[unit.Category]int)

	for _, s := range samples {
		sums[s.Category] += int(s.Score)
		counts[s.Category]++
	}

	profile := make(PerformanceProfile, len(counts))
	for cat, n := range counts {
		profile[cat] = CategoryStats{
			Count:        n,
			AverageScore: float64(sums[cat]) / float64(n),
		}
	}
	return profile
}

// RecentHistoryLimit is how many of the most recent events feed the profile.
const RecentHistoryLimit = 50

// PreferredCategory returns the category with the highest average score, or
// the mixed sentinel when the profile is empty. Only a strictly positive
// average can displace the sentinel, mirroring the behaviour callers rely on
// for students whose every attempt scored zero.
func (p PerformanceProfile) PreferredCategory() unit.Category {
	best := unit.CategoryMixed
	bestScore := 0.0

	for cat, stats := range p {
		if stats.AverageScore > bestScore {
			best = cat
			bestScore = stats.AverageScore
		}
	}
	return best
}
