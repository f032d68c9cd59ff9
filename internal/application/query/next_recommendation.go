package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// NEXT RECOMMENDATION QUERY
// Orchestrates the recommendation pipeline: recent history → performance
// profile → epsilon-greedy selection → append-only decision log. When every
// unit is mastered, falls back to a review pick or a completion marker.
// ══════════════════════════════════════════════════════════════════════════════

// NextRecommendationQuery requests the next unit for a student.
type NextRecommendationQuery struct {
	StudentID string
}

// Validate validates the query.
func (q NextRecommendationQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("recommendation", "Next", shared.ErrEmptyValue, "student ID is required")
	}
	return nil
}

// NextRecommendationResult is one of three terminal shapes: a selected unit,
// a review unit (all mastered), or a completion marker (all mastered and no
// history to review).
type NextRecommendationResult struct {
	Unit       *unit.LearningUnit
	IsReview   bool
	Completed  bool
	Confidence float64
	Reason     string
}

// ProfileCache is an optional read-through cache for computed performance
// profiles. A stale profile within the TTL is acceptable: the policy is
// memoryless and a slightly old snapshot only shifts which branch wins.
type ProfileCache interface {
	Get(ctx context.Context, studentID string) (recommendation.PerformanceProfile, bool)
	Set(ctx context.Context, studentID string, profile recommendation.PerformanceProfile)
}

// NextRecommendationHandler handles the NextRecommendationQuery.
type NextRecommendationHandler struct {
	events   event.Store
	units    unit.Catalog
	log      recommendation.Log
	policy   *recommendation.Policy
	profiles ProfileCache // may be nil
	logger   *logger.Logger
}

// NewNextRecommendationHandler creates a new NextRecommendationHandler.
// profiles may be nil to disable caching.
func NewNextRecommendationHandler(
	events event.Store,
	units unit.Catalog,
	recLog recommendation.Log,
	policy *recommendation.Policy,
	profiles ProfileCache,
	log *logger.Logger,
) *NextRecommendationHandler {
	if log == nil {
		log = logger.Default()
	}
	return &NextRecommendationHandler{
		events:   events,
		units:    units,
		log:      recLog,
		policy:   policy,
		profiles: profiles,
		logger:   log.With(logger.Component("next_recommendation")),
	}
}

// Handle runs one recommendation request. The computation is read-mostly
// and lock-free; it may race with pushes from the same student, in which
// case it simply sees a slightly stale snapshot.
func (h *NextRecommendationHandler) Handle(ctx context.Context, q NextRecommendationQuery) (*NextRecommendationResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	allUnits, err := h.units.GetAll(ctx)
	if err != nil {
		return nil, shared.WrapError("recommendation", "Next", shared.ErrTransientIO, "failed to load catalog", err)
	}

	mastered, err := h.events.MasteredUnitIDs(ctx, q.StudentID)
	if err != nil {
		return nil, shared.WrapError("recommendation", "Next", shared.ErrTransientIO, "failed to load mastery set", err)
	}

	masteredSet := make(map[string]struct{}, len(mastered))
	for _, id := range mastered {
		masteredSet[id] = struct{}{}
	}

	candidates := make([]*unit.LearningUnit, 0, len(allUnits))
	byID := make(map[string]*unit.LearningUnit, len(allUnits))
	for _, u := range allUnits {
		byID[u.ID] = u
		if _, ok := masteredSet[u.ID]; !ok {
			candidates = append(candidates, u)
		}
	}

	// Terminal state: everything mastered. Fall back to reviewing the
	// weakest historical result, or report completion when there is no
	// history at all.
	if len(candidates) == 0 {
		return h.reviewFallback(ctx, q.StudentID, byID)
	}

	profile := h.loadProfile(ctx, q.StudentID, byID)

	decision, err := h.policy.Select(candidates, profile)
	if err != nil {
		return nil, err
	}

	rec := &recommendation.Recommendation{
		ID:         uuid.NewString(),
		StudentID:  q.StudentID,
		UnitID:     decision.Unit.ID,
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.log.Append(ctx, rec); err != nil {
		return nil, shared.WrapError("recommendation", "Next", shared.ErrTransientIO, "failed to log decision", err)
	}

	h.logger.Info("recommendation selected",
		logger.StudentID(q.StudentID),
		logger.UnitID(decision.Unit.ID),
		logger.String("branch", string(decision.Branch)),
		logger.Float64("confidence", decision.Confidence),
	)

	return &NextRecommendationResult{
		Unit:       decision.Unit,
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
	}, nil
}

// reviewFallback resolves the all-mastered terminal state.
func (h *NextRecommendationHandler) reviewFallback(ctx context.Context, studentID string, byID map[string]*unit.LearningUnit) (*NextRecommendationResult, error) {
	weakest, err := h.events.QueryLowestScore(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Mastered everything with no events means an empty catalog;
			// either way there is nothing left to recommend.
			return &NextRecommendationResult{Completed: true}, nil
		}
		return nil, shared.WrapError("recommendation", "Next", shared.ErrTransientIO, "failed to find review unit", err)
	}

	u, ok := byID[weakest.UnitID]
	if !ok {
		// The weakest event references a unit no longer in the catalog; the
		// catalog never deletes, so treat this as completion rather than
		// surfacing an internal inconsistency.
		return &NextRecommendationResult{Completed: true}, nil
	}

	h.logger.Info("all units mastered, recommending review",
		logger.StudentID(studentID),
		logger.UnitID(u.ID),
		logger.Int("lowest_score", int(weakest.Score)),
	)

	return &NextRecommendationResult{
		Unit:     u,
		IsReview: true,
	}, nil
}

// loadProfile computes (or fetches) the student's performance profile from
// the most recent events.
func (h *NextRecommendationHandler) loadProfile(ctx context.Context, studentID string, byID map[string]*unit.LearningUnit) recommendation.PerformanceProfile {
	if h.profiles != nil {
		if profile, ok := h.profiles.Get(ctx, studentID); ok {
			return profile
		}
	}

	recent, err := h.events.QueryRecent(ctx, studentID, recommendation.RecentHistoryLimit)
	if err != nil {
		// A missing profile only weakens the exploit branch; fall back to
		// the empty profile rather than failing the request.
		h.logger.Warn("failed to load recent history, using empty profile",
			logger.StudentID(studentID), logger.Err(err))
		return recommendation.PerformanceProfile{}
	}

	samples := make([]recommendation.Sample, 0, len(recent))
	for _, e := range recent {
		u, ok := byID[e.UnitID]
		if !ok {
			continue
		}
		samples = append(samples, recommendation.Sample{Category: u.Category, Score: e.Score})
	}

	profile := recommendation.Analyze(samples)
	if h.profiles != nil {
		h.profiles.Set(ctx, studentID, profile)
	}
	return profile
}
