package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
)

// RecommendationLog is an in-memory recommendation.Log.
type RecommendationLog struct {
	mu      sync.RWMutex
	entries []*recommendation.Recommendation
}

// NewRecommendationLog creates an empty RecommendationLog.
func NewRecommendationLog() *RecommendationLog {
	return &RecommendationLog{}
}

// Append records one decision.
func (l *RecommendationLog) Append(ctx context.Context, r *recommendation.Recommendation) error {
	if err := r.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *r
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, &cp)
	return nil
}

// ListByStudent returns a student's decisions, newest first.
func (l *RecommendationLog) ListByStudent(ctx context.Context, studentID string, limit int) ([]*recommendation.Recommendation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*recommendation.Recommendation, 0)
	for _, r := range l.entries {
		if r.StudentID == studentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of logged decisions.
func (l *RecommendationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
