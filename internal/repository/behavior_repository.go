package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

const maxEventsPerQuery = 10000

// BehaviorRepository reads logged behaviour events. Writing events belongs to
// the logging application; this service only analyses them.
type BehaviorRepository struct {
	db *sqlx.DB
}

// NewBehaviorRepository constructs a new repository.
func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// ListEvents returns events joined with the student's name, newest first.
// Positive limits are capped at maxEventsPerQuery.
func (r *BehaviorRepository) ListEvents(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Since != nil {
		where = append(where, fmt.Sprintf("COALESCE(e.occurred_at, e.created_at) >= $%d", len(args)+1))
		args = append(args, *filter.Since)
	}
	// a zero limit reads the full history, which analysis runs need
	limitClause := ""
	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxEventsPerQuery {
			limit = maxEventsPerQuery
		}
		limitClause = fmt.Sprintf(" LIMIT %d", limit)
	}

	query := fmt.Sprintf(`SELECT e.id, COALESCE(e.student_id, '') AS student_id, COALESCE(s.full_name, '') AS student_name,
        e.category, COALESCE(e.subject, '') AS subject, COALESCE(e.time_of_day, '') AS time_of_day,
        COALESCE(e.severity, '') AS severity, COALESCE(e.notes, '') AS notes, e.occurred_at, e.created_at
FROM behavior_events e LEFT JOIN students s ON s.id = e.student_id
WHERE %s ORDER BY COALESCE(e.occurred_at, e.created_at) DESC NULLS LAST, e.id%s`, strings.Join(where, " AND "), limitClause)

	var events []models.BehaviorEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list behavior events: %w", err)
	}
	return events, nil
}
