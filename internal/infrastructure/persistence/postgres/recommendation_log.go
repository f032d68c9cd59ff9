package postgres

import (
	"context"
	"fmt"

	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
)

// RecommendationLog is the PostgreSQL recommendation log. Append-only.
type RecommendationLog struct {
	conn *Connection
}

// NewRecommendationLog creates a new RecommendationLog.
func NewRecommendationLog(conn *Connection) *RecommendationLog {
	return &RecommendationLog{conn: conn}
}

// Append records one decision.
func (l *RecommendationLog) Append(ctx context.Context, r *recommendation.Recommendation) error {
	if err := r.Validate(); err != nil {
		return err
	}

	_, err := l.conn.Exec(ctx, `
		INSERT INTO recommendations (id, student_id, unit_id, confidence, reason, is_review, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		r.ID, r.StudentID, r.UnitID, r.Confidence, r.Reason, r.IsReview,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to append recommendation %s: %w", r.ID, err)
	}
	return nil
}

// ListByStudent returns a student's decisions, newest first.
func (l *RecommendationLog) ListByStudent(ctx context.Context, studentID string, limit int) ([]*recommendation.Recommendation, error) {
	rows, err := l.conn.Query(ctx, `
		SELECT id, student_id, unit_id, confidence, reason, is_review, created_at
		FROM recommendations
		WHERE student_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var out []*recommendation.Recommendation
	for rows.Next() {
		var r recommendation.Recommendation
		if err := rows.Scan(&r.ID, &r.StudentID, &r.UnitID, &r.Confidence, &r.Reason, &r.IsReview, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan recommendation: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
