package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func behaviorEvent(id, studentID string, category models.BehaviorCategory, age time.Duration) models.BehaviorEvent {
	at := fixedNow.Add(-age)
	return models.BehaviorEvent{
		ID:          id,
		StudentID:   studentID,
		StudentName: "Student " + studentID,
		Category:    category,
		Subject:     "Math",
		TimeOfDay:   models.TimeMorning,
		Severity:    models.SeverityMedium,
		OccurredAt:  &at,
	}
}

func days(n float64) time.Duration {
	return time.Duration(n * float64(24*time.Hour))
}

// stubInsightStore records calls and answers from saveFn when set.
type stubInsightStore struct {
	mu         sync.Mutex
	saveFn     func(call int, insight models.Insight) (*models.Insight, error)
	saves      int
	tokens     []string
	applies    int
	applyErr   error
	emptyApply bool
	stored     map[string]models.Insight
}

func (s *stubInsightStore) Save(ctx context.Context, token string, insight models.Insight) (*models.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.tokens = append(s.tokens, token)
	if s.saveFn != nil {
		return s.saveFn(s.saves, insight)
	}
	insight.ID = fmt.Sprintf("ins-%d", s.saves)
	insight.IsLocal = false
	if s.stored == nil {
		s.stored = make(map[string]models.Insight)
	}
	s.stored[insight.ID] = insight
	return &insight, nil
}

func (s *stubInsightStore) Get(ctx context.Context, token, id string) (*models.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insight, ok := s.stored[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "insight not found")
	}
	return &insight, nil
}

func (s *stubInsightStore) Apply(ctx context.Context, token, id string, req models.ApplyInsightRequest) (*models.ApplyInsightResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies++
	if s.applyErr != nil || s.emptyApply {
		return nil, s.applyErr
	}
	at := fixedNow
	return &models.ApplyInsightResponse{
		Insight: models.Insight{ID: id, Applied: true, AppliedAction: req.ChosenAction, AppliedAt: &at},
		Record:  models.ActionRecord{ID: fmt.Sprintf("rec-%d", s.applies), InsightID: id, Action: req.ChosenAction, Feedback: req.Feedback, CreatedAt: at},
	}, nil
}

func (s *stubInsightStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func unauthorizedSave(int, models.Insight) (*models.Insight, error) {
	return nil, appErrors.Clone(appErrors.ErrSessionInvalid, "")
}

func unreachableSave(int, models.Insight) (*models.Insight, error) {
	return nil, appErrors.Wrap(fmt.Errorf("dial tcp: connection refused"), appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
}
