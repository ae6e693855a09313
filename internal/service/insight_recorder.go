package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

// ApplyRecorder records that a user acted on a persisted artifact. Applying the
// same action twice returns the first record without another store call.
type ApplyRecorder struct {
	store  InsightStore
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	records map[string]models.ActionRecord
}

// NewApplyRecorder constructs the recorder.
func NewApplyRecorder(store InsightStore, logger *zap.Logger) *ApplyRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplyRecorder{
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[string]models.ActionRecord),
	}
}

// Apply marks insight as applied with the chosen action. The insight is only
// mutated when the store accepted the action.
func (r *ApplyRecorder) Apply(ctx context.Context, token string, insight *models.Insight, action, feedback string) (*models.ActionRecord, error) {
	action = strings.TrimSpace(action)
	if insight == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "insight not found")
	}
	if action == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "chosen action is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(insight.ID, action)
	if insight.Applied && insight.AppliedAction == action {
		if record, ok := r.records[key]; ok {
			return &record, nil
		}
		record := models.ActionRecord{InsightID: insight.ID, Action: action, CreatedAt: r.appliedAt(insight)}
		record.UpdatedAt = record.CreatedAt
		return &record, nil
	}

	if !IsPersistedID(insight.ID) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "insight has not been saved to the store yet")
	}
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingCredential, "")
	}
	if r.store == nil {
		return nil, appErrors.Clone(appErrors.ErrStoreUnavailable, "")
	}

	resp, err := r.store.Apply(ctx, token, insight.ID, models.ApplyInsightRequest{ChosenAction: action, Feedback: feedback})
	if err != nil {
		r.logger.Warn("apply insight failed", zap.String("insight_id", insight.ID), zap.Error(err))
		return nil, err
	}
	if resp == nil {
		return nil, appErrors.Clone(appErrors.ErrStoreUnavailable, "insight store returned an empty apply response")
	}

	record := resp.Record
	if record.InsightID == "" {
		record.InsightID = insight.ID
	}
	if record.Action == "" {
		record.Action = action
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
		record.UpdatedAt = record.CreatedAt
	}
	appliedAt := record.CreatedAt
	if resp.Insight.AppliedAt != nil {
		appliedAt = *resp.Insight.AppliedAt
	}

	insight.Applied = true
	insight.AppliedAction = action
	insight.AppliedAt = &appliedAt
	r.records[key] = record
	return &record, nil
}

func (r *ApplyRecorder) appliedAt(insight *models.Insight) time.Time {
	if insight.AppliedAt != nil {
		return *insight.AppliedAt
	}
	return r.now()
}

func recordKey(insightID, action string) string {
	return insightID + "\x00" + action
}
