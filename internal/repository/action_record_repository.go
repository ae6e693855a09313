package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

const actionRecordColumns = `id, insight_id, action, feedback, outcome_success, outcome_impact, created_by, created_at, updated_at`

type actionRecordRow struct {
	ID             string         `db:"id"`
	InsightID      string         `db:"insight_id"`
	Action         string         `db:"action"`
	Feedback       sql.NullString `db:"feedback"`
	OutcomeSuccess sql.NullBool   `db:"outcome_success"`
	OutcomeImpact  sql.NullString `db:"outcome_impact"`
	CreatedBy      sql.NullString `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (row actionRecordRow) toModel() models.ActionRecord {
	record := models.ActionRecord{
		ID:        row.ID,
		InsightID: row.InsightID,
		Action:    row.Action,
		Feedback:  row.Feedback.String,
		CreatedBy: row.CreatedBy.String,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.OutcomeSuccess.Valid {
		record.Outcome = &models.ActionOutcome{Success: row.OutcomeSuccess.Bool, Impact: row.OutcomeImpact.String}
	}
	return record
}

// ActionRecordRepository persists the actions users took on artifacts.
type ActionRecordRepository struct {
	db *sqlx.DB
}

// NewActionRecordRepository constructs the repository.
func NewActionRecordRepository(db *sqlx.DB) *ActionRecordRepository {
	return &ActionRecordRepository{db: db}
}

func (r *ActionRecordRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByInsightAction returns the record for an (insight, action) pair.
func (r *ActionRecordRepository) FindByInsightAction(ctx context.Context, exec sqlx.ExtContext, insightID, action string) (*models.ActionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM insight_action_records WHERE insight_id = $1 AND action = $2", actionRecordColumns)
	var row actionRecordRow
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, insightID, action); err != nil {
		return nil, err
	}
	record := row.toModel()
	return &record, nil
}

// FindByID loads a record.
func (r *ActionRecordRepository) FindByID(ctx context.Context, id string) (*models.ActionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM insight_action_records WHERE id = $1", actionRecordColumns)
	var row actionRecordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	record := row.toModel()
	return &record, nil
}

// Create inserts a record.
func (r *ActionRecordRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.ActionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	row := actionRecordRow{
		ID:        record.ID,
		InsightID: record.InsightID,
		Action:    record.Action,
		Feedback:  sql.NullString{String: record.Feedback, Valid: record.Feedback != ""},
		CreatedBy: sql.NullString{String: record.CreatedBy, Valid: record.CreatedBy != ""},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	const query = `INSERT INTO insight_action_records (id, insight_id, action, feedback, outcome_success, outcome_impact, created_by, created_at, updated_at)
VALUES (:id, :insight_id, :action, :feedback, :outcome_success, :outcome_impact, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create action record: %w", err)
	}
	return nil
}

// UpdateOutcome stores how the action worked out. Empty feedback keeps the existing feedback.
func (r *ActionRecordRepository) UpdateOutcome(ctx context.Context, id string, outcome models.ActionOutcome, feedback string) error {
	const query = `UPDATE insight_action_records SET outcome_success = $1, outcome_impact = $2, feedback = COALESCE(NULLIF($3, ''), feedback), updated_at = $4 WHERE id = $5`
	if err := expectAffected(r.db.ExecContext(ctx, query, outcome.Success, outcome.Impact, feedback, time.Now().UTC(), id)); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("update action outcome: %w", err)
	}
	return nil
}
