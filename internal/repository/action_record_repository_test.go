package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

var actionRecordRowColumns = []string{"id", "insight_id", "action", "feedback", "outcome_success", "outcome_impact", "created_by", "created_at", "updated_at"}

func TestActionRecordRepositoryFindByInsightAction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActionRecordRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM insight_action_records WHERE insight_id = $1 AND action = $2")).
		WithArgs("ins-1", "Check in").
		WillReturnRows(sqlmock.NewRows(actionRecordRowColumns).AddRow("rec-1", "ins-1", "Check in", nil, true, "calmer", "user-1", now, now))

	record, err := repo.FindByInsightAction(context.Background(), nil, "ins-1", "Check in")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	require.NotNil(t, record.Outcome)
	assert.True(t, record.Outcome.Success)
	assert.Equal(t, "calmer", record.Outcome.Impact)
	assert.Empty(t, record.Feedback)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRecordRepositoryFindByInsightActionMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActionRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM insight_action_records WHERE insight_id = $1 AND action = $2")).
		WithArgs("ins-1", "Check in").
		WillReturnRows(sqlmock.NewRows(actionRecordRowColumns))

	_, err := repo.FindByInsightAction(context.Background(), nil, "ins-1", "Check in")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRecordRepositoryCreateInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActionRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO insight_action_records").
		WithArgs(sqlmock.AnyArg(), "ins-1", "Check in", "worked", nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	record := &models.ActionRecord{InsightID: "ins-1", Action: "Check in", Feedback: "worked"}
	require.NoError(t, repo.Create(context.Background(), tx, record))
	require.NoError(t, tx.Commit())

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRecordRepositoryUpdateOutcome(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActionRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE insight_action_records SET outcome_success = $1, outcome_impact = $2, feedback = COALESCE(NULLIF($3, ''), feedback), updated_at = $4 WHERE id = $5")).
		WithArgs(false, "no change", "", sqlmock.AnyArg(), "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateOutcome(context.Background(), "rec-1", models.ActionOutcome{Success: false, Impact: "no change"}, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRecordRepositoryUpdateOutcomeMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActionRecordRepository(db)

	mock.ExpectExec("UPDATE insight_action_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOutcome(context.Background(), "missing", models.ActionOutcome{Success: true}, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
