package recommendation

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
)

// ══════════════════════════════════════════════════════════════════════════════
// EPSILON-GREEDY POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Branch identifies which arm of the policy produced a decision.
type Branch string

const (
	// BranchExplore means the unit was drawn uniformly at random.
	BranchExplore Branch = "explore"
	// BranchExploit means the unit was chosen from the preferred category.
	BranchExploit Branch = "exploit"
)

// Confidence levels reported with each decision.
const (
	// ConfidenceMatched is reported when the selected unit's category
	// matches the student's preferred category.
	ConfidenceMatched = 0.8
	// ConfidenceFallback is reported otherwise.
	ConfidenceFallback = 0.5
)

// DefaultEpsilon is the default exploration rate.
const DefaultEpsilon = 0.2

// Decision is the outcome of one policy invocation.
type Decision struct {
	Unit              *unit.LearningUnit
	Branch            Branch
	Confidence        float64
	PreferredCategory unit.Category
	Reason            string
}

// Policy selects the next learning unit with an epsilon-greedy rule.
//
// The policy is deliberately memoryless: it holds no arm-value estimates and
// no decay, only the epsilon configuration. Every call recomputes from the
// supplied profile, so concurrent pushes at most make a decision slightly
// stale, never inconsistent.
type Policy struct {
	epsilon float64

	mu  sync.Mutex // guards rng; *rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewPolicy creates a policy with the given exploration rate.
// Epsilon must be in [0, 1); zero disables exploration entirely.
func NewPolicy(epsilon float64) (*Policy, error) {
	if epsilon < 0 || epsilon >= 1 {
		return nil, shared.NewDomainError("recommendation", "NewPolicy",
			shared.ErrValueOutOfRange, "epsilon must be in [0, 1)")
	}
	return &Policy{
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// NewPolicyWithSource creates a policy with a caller-supplied random source.
// Used by tests that need deterministic draws.
func NewPolicyWithSource(epsilon float64, src rand.Source) (*Policy, error) {
	p, err := NewPolicy(epsilon)
	if err != nil {
		return nil, err
	}
	p.rng = rand.New(src)
	return p, nil
}

// Epsilon returns the configured exploration rate.
func (p *Policy) Epsilon() float64 {
	return p.epsilon
}

// Select picks one unit from the candidate set.
//
// Candidates must be non-empty; the caller handles the all-mastered terminal
// state before invoking the policy. With probability epsilon the selection
// is uniform over all candidates (explore). Otherwise the candidates are
// filtered to the profile's preferred category and the lowest-difficulty
// match wins; when nothing matches, the lowest-difficulty candidate overall
// is used (exploit). Confidence compares the selected unit's category to the
// preferred category regardless of branch.
func (p *Policy) Select(candidates []*unit.LearningUnit, profile PerformanceProfile) (*Decision, error) {
	if len(candidates) == 0 {
		return nil, shared.NewDomainError("recommendation", "Select",
			shared.ErrEmptyValue, "candidate set is empty")
	}

	preferred := profile.PreferredCategory()

	var selected *unit.LearningUnit
	branch := BranchExploit

	p.mu.Lock()
	explore := p.rng.Float64() < p.epsilon
	var drawn int
	if explore {
		drawn = p.rng.Intn(len(candidates))
	}
	p.mu.Unlock()

	if explore {
		branch = BranchExplore
		selected = candidates[drawn]
	} else {
		matching := make([]*unit.LearningUnit, 0, len(candidates))
		for _, u := range candidates {
			if u.Category == preferred {
				matching = append(matching, u)
			}
		}
		if len(matching) > 0 {
			selected = easiest(matching)
		} else {
			selected = easiest(candidates)
		}
	}

	confidence := ConfidenceFallback
	if selected.Category == preferred {
		confidence = ConfidenceMatched
	}

	return &Decision{
		Unit:              selected,
		Branch:            branch,
		Confidence:        confidence,
		PreferredCategory: preferred,
		Reason:            buildReason(selected, preferred, branch, profile),
	}, nil
}

// easiest returns the unit with the lowest difficulty, breaking ties by ID
// for determinism.
func easiest(units []*unit.LearningUnit) *unit.LearningUnit {
	best := units[0]
	for _, u := range units[1:] {
		if u.Difficulty < best.Difficulty ||
			(u.Difficulty == best.Difficulty && u.ID < best.ID) {
			best = u
		}
	}
	return best
}

// buildReason summarizes the performance snapshot behind a decision. The log
// keeps these for offline audit, so the string carries both the student-
// facing rationale and the profile state the policy saw.
func buildReason(selected *unit.LearningUnit, preferred unit.Category, branch Branch, profile PerformanceProfile) string {
	var rationale string
	switch {
	case branch == BranchExplore:
		rationale = "trying something new to broaden your skills"
	case selected.Category == preferred:
		rationale = fmt.Sprintf("this %s unit matches your learning style", selected.Category)
	default:
		rationale = "trying a different approach to help you learn better"
	}
	return fmt.Sprintf("%s [%s: %s]", rationale, branch, formatProfile(profile))
}

// formatProfile renders the profile deterministically (sorted by category).
func formatProfile(profile PerformanceProfile) string {
	if len(profile) == 0 {
		return "no history"
	}

	cats := make([]string, 0, len(profile))
	for cat := range profile {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)

	parts := make([]string, 0, len(cats))
	for _, cat := range cats {
		stats := profile[unit.Category(cat)]
		parts = append(parts, fmt.Sprintf("%s avg=%.1f n=%d", cat, stats.AverageScore, stats.Count))
	}
	return strings.Join(parts, ", ")
}
