package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

const insightColumns = `id, kind, signal, title, description, priority, category, confidence, actions, data_points, data_snapshot,
        student_ids, generated_at, applied, applied_action, applied_at, active, created_by, created_at`

// insightRow is the flattened storage shape of models.Insight.
type insightRow struct {
	ID            string         `db:"id"`
	Kind          string         `db:"kind"`
	Signal        string         `db:"signal"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Priority      string         `db:"priority"`
	Category      string         `db:"category"`
	Confidence    int            `db:"confidence"`
	Actions       types.JSONText `db:"actions"`
	DataPoints    types.JSONText `db:"data_points"`
	DataSnapshot  types.JSONText `db:"data_snapshot"`
	StudentIDs    types.JSONText `db:"student_ids"`
	GeneratedAt   time.Time      `db:"generated_at"`
	Applied       bool           `db:"applied"`
	AppliedAction sql.NullString `db:"applied_action"`
	AppliedAt     *time.Time     `db:"applied_at"`
	Active        bool           `db:"active"`
	CreatedBy     sql.NullString `db:"created_by"`
	CreatedAt     time.Time      `db:"created_at"`
}

// InsightRepository persists generated artifacts.
type InsightRepository struct {
	db *sqlx.DB
}

// NewInsightRepository constructs the repository.
func NewInsightRepository(db *sqlx.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

func (r *InsightRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an artifact, assigning a fresh id.
func (r *InsightRepository) Create(ctx context.Context, insight *models.Insight) error {
	if insight == nil {
		return fmt.Errorf("insight payload is nil")
	}
	insight.ID = uuid.NewString()
	now := time.Now().UTC()
	insight.CreatedAt = &now
	if insight.GeneratedAt.IsZero() {
		insight.GeneratedAt = now
	}
	row, err := toInsightRow(insight)
	if err != nil {
		return err
	}
	const query = `INSERT INTO insights (id, kind, signal, title, description, priority, category, confidence, actions, data_points, data_snapshot,
        student_ids, generated_at, applied, applied_action, applied_at, active, created_by, created_at)
VALUES (:id, :kind, :signal, :title, :description, :priority, :category, :confidence, :actions, :data_points, :data_snapshot,
        :student_ids, :generated_at, :applied, :applied_action, :applied_at, :active, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create insight: %w", err)
	}
	return nil
}

// FindByID loads an artifact. exec may be a transaction; FOR UPDATE is added when lock is set.
func (r *InsightRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Insight, error) {
	query := fmt.Sprintf("SELECT %s FROM insights WHERE id = $1", insightColumns)
	if lock {
		query += " FOR UPDATE"
	}
	var row insightRow
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// List returns artifacts newest first with the total count.
func (r *InsightRepository) List(ctx context.Context, filter models.InsightFilter) ([]models.Insight, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, string(filter.Kind))
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM insights WHERE %s ORDER BY generated_at DESC, id LIMIT %d OFFSET %d", insightColumns, whereClause, size, offset)
	var rows []insightRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list insights: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM insights WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count insights: %w", err)
	}

	insights := make([]models.Insight, 0, len(rows))
	for _, row := range rows {
		insight, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		insights = append(insights, *insight)
	}
	return insights, total, nil
}

// MarkApplied flags the artifact as applied with the chosen action.
func (r *InsightRepository) MarkApplied(ctx context.Context, exec sqlx.ExtContext, id, action string, appliedAt time.Time) error {
	const query = `UPDATE insights SET applied = TRUE, applied_action = $1, applied_at = $2 WHERE id = $3`
	return expectAffected(r.exec(exec).ExecContext(ctx, query, action, appliedAt, id))
}

// Deactivate retires an artifact without deleting it.
func (r *InsightRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE insights SET active = FALSE WHERE id = $1`
	return expectAffected(r.db.ExecContext(ctx, query, id))
}

func expectAffected(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func toInsightRow(insight *models.Insight) (*insightRow, error) {
	actions, err := marshalJSON(insight.Actions, `[]`)
	if err != nil {
		return nil, fmt.Errorf("encode insight actions: %w", err)
	}
	points, err := marshalJSON(insight.DataPoints, `[]`)
	if err != nil {
		return nil, fmt.Errorf("encode insight data points: %w", err)
	}
	snapshot, err := marshalJSON(insight.Snapshot, `{}`)
	if err != nil {
		return nil, fmt.Errorf("encode insight data snapshot: %w", err)
	}
	students, err := marshalJSON(insight.StudentIDs, `[]`)
	if err != nil {
		return nil, fmt.Errorf("encode insight students: %w", err)
	}
	row := &insightRow{
		ID:            insight.ID,
		Kind:          string(insight.Kind),
		Signal:        string(insight.Signal),
		Title:         insight.Title,
		Description:   insight.Description,
		Priority:      string(insight.Priority),
		Category:      insight.Category,
		Confidence:    insight.Confidence,
		Actions:       actions,
		DataPoints:    points,
		DataSnapshot:  snapshot,
		StudentIDs:    students,
		GeneratedAt:   insight.GeneratedAt,
		Applied:       insight.Applied,
		AppliedAction: sql.NullString{String: insight.AppliedAction, Valid: insight.AppliedAction != ""},
		AppliedAt:     insight.AppliedAt,
		Active:        insight.Active,
		CreatedBy:     sql.NullString{String: insight.CreatedBy, Valid: insight.CreatedBy != ""},
	}
	if insight.CreatedAt != nil {
		row.CreatedAt = *insight.CreatedAt
	}
	return row, nil
}

func (row insightRow) toModel() (*models.Insight, error) {
	insight := &models.Insight{
		ID:            row.ID,
		Kind:          models.InsightKind(row.Kind),
		Signal:        models.SignalKind(row.Signal),
		Title:         row.Title,
		Description:   row.Description,
		Priority:      models.Priority(row.Priority),
		Category:      row.Category,
		Confidence:    row.Confidence,
		GeneratedAt:   row.GeneratedAt,
		Applied:       row.Applied,
		AppliedAction: row.AppliedAction.String,
		AppliedAt:     row.AppliedAt,
		Active:        row.Active,
		CreatedBy:     row.CreatedBy.String,
	}
	if !row.CreatedAt.IsZero() {
		created := row.CreatedAt
		insight.CreatedAt = &created
	}
	if err := unmarshalJSON(row.Actions, &insight.Actions); err != nil {
		return nil, fmt.Errorf("decode insight %s actions: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.DataPoints, &insight.DataPoints); err != nil {
		return nil, fmt.Errorf("decode insight %s data points: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.DataSnapshot, &insight.Snapshot); err != nil {
		return nil, fmt.Errorf("decode insight %s data snapshot: %w", row.ID, err)
	}
	if err := unmarshalJSON(row.StudentIDs, &insight.StudentIDs); err != nil {
		return nil, fmt.Errorf("decode insight %s students: %w", row.ID, err)
	}
	return insight, nil
}

func marshalJSON(value interface{}, empty string) (types.JSONText, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return types.JSONText(empty), nil
	}
	return types.JSONText(raw), nil
}

func unmarshalJSON(raw types.JSONText, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return raw.Unmarshal(dest)
}
