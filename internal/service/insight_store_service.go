package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

type insightRepository interface {
	Create(ctx context.Context, insight *models.Insight) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Insight, error)
	List(ctx context.Context, filter models.InsightFilter) ([]models.Insight, int, error)
	MarkApplied(ctx context.Context, exec sqlx.ExtContext, id, action string, appliedAt time.Time) error
	Deactivate(ctx context.Context, id string) error
}

type actionRecordRepository interface {
	FindByInsightAction(ctx context.Context, exec sqlx.ExtContext, insightID, action string) (*models.ActionRecord, error)
	FindByID(ctx context.Context, id string) (*models.ActionRecord, error)
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.ActionRecord) error
	UpdateOutcome(ctx context.Context, id string, outcome models.ActionOutcome, feedback string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// InsightStoreService is the durable artifact store behind the /insights API.
type InsightStoreService struct {
	insights  insightRepository
	records   actionRecordRepository
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInsightStoreService constructs the service.
func NewInsightStoreService(insights insightRepository, records actionRecordRepository, tx txProvider, validate *validator.Validate, logger *zap.Logger) *InsightStoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &InsightStoreService{insights: insights, records: records, tx: tx, validator: validate, logger: logger}
	svc.validator.RegisterValidation("insight_kind", func(fl validator.FieldLevel) bool {
		switch models.InsightKind(fl.Field().String()) {
		case models.KindInsight, models.KindPrediction, models.KindSuggestion:
			return true
		default:
			return false
		}
	})
	svc.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.Priority(fl.Field().String()) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical:
			return true
		default:
			return false
		}
	})
	return svc
}

// Save stores a new artifact and returns it with its store id. Client-side
// ids and applied state are discarded.
func (s *InsightStoreService) Save(ctx context.Context, userID string, insight models.Insight) (*models.Insight, error) {
	if err := s.validator.Struct(insight); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid insight payload")
	}
	insight.ID = ""
	insight.Applied = false
	insight.AppliedAction = ""
	insight.AppliedAt = nil
	insight.IsLocal = false
	insight.Active = true
	insight.CreatedBy = userID
	if err := s.insights.Create(ctx, &insight); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save insight")
	}
	return &insight, nil
}

// StoreListRequest describes listing filters.
type StoreListRequest struct {
	Kind     string `form:"kind"`
	Active   *bool  `form:"active"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// List returns stored artifacts with pagination.
func (s *InsightStoreService) List(ctx context.Context, req StoreListRequest) ([]models.Insight, *models.Pagination, error) {
	filter := models.InsightFilter{
		Kind:     models.InsightKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Active:   req.Active,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Kind != "" {
		if err := s.validator.Var(string(filter.Kind), "insight_kind"); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown insight kind")
		}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	insights, total, err := s.insights.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list insights")
	}
	return insights, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single artifact.
func (s *InsightStoreService) Get(ctx context.Context, id string) (*models.Insight, error) {
	insight, err := s.insights.FindByID(ctx, nil, id, false)
	if err != nil {
		return nil, s.mapLookupError(err, "insight not found", "failed to load insight")
	}
	return insight, nil
}

// Apply records the chosen action. Re-applying the same action returns the
// existing record; otherwise the record is created and the artifact flagged as
// applied in one transaction.
func (s *InsightStoreService) Apply(ctx context.Context, userID, id string, req models.ApplyInsightRequest) (resp *models.ApplyInsightResponse, err error) {
	req.ChosenAction = strings.TrimSpace(req.ChosenAction)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "chosen action is required")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback apply insight", zap.Error(rbErr))
			}
		}
	}()

	insight, err := s.insights.FindByID(ctx, tx, id, true)
	if err != nil {
		err = s.mapLookupError(err, "insight not found", "failed to load insight")
		return nil, err
	}
	if !insight.Active {
		err = appErrors.Clone(appErrors.ErrConflict, "insight has been retired")
		return nil, err
	}

	existing, err := s.records.FindByInsightAction(ctx, tx, id, req.ChosenAction)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit apply")
			return nil, err
		}
		return &models.ApplyInsightResponse{Insight: *insight, Record: *existing}, nil
	case !errors.Is(err, sql.ErrNoRows):
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up action record")
		return nil, err
	}

	record := &models.ActionRecord{InsightID: id, Action: req.ChosenAction, Feedback: req.Feedback, CreatedBy: userID}
	if err = s.records.Create(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record action")
		return nil, err
	}
	if err = s.insights.MarkApplied(ctx, tx, id, req.ChosenAction, record.CreatedAt); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark insight applied")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit apply")
		return nil, err
	}

	appliedAt := record.CreatedAt
	insight.Applied = true
	insight.AppliedAction = req.ChosenAction
	insight.AppliedAt = &appliedAt
	s.logger.Info("insight applied", zap.String("insight_id", id), zap.String("record_id", record.ID))
	return &models.ApplyInsightResponse{Insight: *insight, Record: *record}, nil
}

// Retire hides an artifact from active listings. Artifacts are never deleted.
func (s *InsightStoreService) Retire(ctx context.Context, id string) error {
	if err := s.insights.Deactivate(ctx, id); err != nil {
		return s.mapLookupError(err, "insight not found", "failed to retire insight")
	}
	return nil
}

// RecordOutcome stores how an applied action worked out.
func (s *InsightStoreService) RecordOutcome(ctx context.Context, recordID string, req models.RecordOutcomeRequest) (*models.ActionRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "outcome success flag is required")
	}
	outcome := models.ActionOutcome{Success: *req.Success, Impact: strings.TrimSpace(req.Impact)}
	if err := s.records.UpdateOutcome(ctx, recordID, outcome, strings.TrimSpace(req.Feedback)); err != nil {
		return nil, s.mapLookupError(err, "action record not found", "failed to record outcome")
	}
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, s.mapLookupError(err, "action record not found", "failed to load action record")
	}
	return record, nil
}

func (s *InsightStoreService) mapLookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
