package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

// InsightStore is the remote artifact store. Every call carries the caller's
// bearer token explicitly; a rejected token surfaces as a 401 error.
type InsightStore interface {
	Save(ctx context.Context, token string, insight models.Insight) (*models.Insight, error)
	Get(ctx context.Context, token, id string) (*models.Insight, error)
	Apply(ctx context.Context, token, id string, req models.ApplyInsightRequest) (*models.ApplyInsightResponse, error)
}

// BatchResult pairs the saved artifacts with what happened to them. Insights
// always has the same length and order as the input batch.
type BatchResult struct {
	Insights []models.Insight
	Report   models.PersistenceReport
}

// PersistenceGateway saves artifact batches one by one, degrading to
// in-memory surrogates when the store fails.
type PersistenceGateway struct {
	store   InsightStore
	metrics *MetricsService
	logger  *zap.Logger
	newID   func() string
}

// NewPersistenceGateway constructs the gateway. A nil store means every batch is skipped.
func NewPersistenceGateway(store InsightStore, metrics *MetricsService, logger *zap.Logger) *PersistenceGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistenceGateway{store: store, metrics: metrics, logger: logger, newID: uuid.NewString}
}

// SaveBatch persists each artifact in order.
//
// Without a token nothing is attempted and the batch is returned as is. A 401
// from the store stops the batch: the artifacts not yet saved are returned
// unchanged and ErrSessionInvalid is reported so the caller can ask the user to
// sign in again. Any other failure replaces the artifact with a local
// surrogate and the batch continues.
func (g *PersistenceGateway) SaveBatch(ctx context.Context, token string, batch []models.Insight) (BatchResult, error) {
	result := BatchResult{Insights: make([]models.Insight, 0, len(batch))}
	if strings.TrimSpace(token) == "" || g.store == nil {
		result.Insights = append(result.Insights, batch...)
		result.Report.Skipped = true
		for range batch {
			g.metrics.RecordPersistOutcome(PersistOutcomeSkipped)
		}
		if len(batch) > 0 {
			g.logger.Info("artifact persistence skipped", zap.Int("artifacts", len(batch)))
		}
		return result, nil
	}

	for i, insight := range batch {
		result.Report.Attempted++
		saved, err := g.store.Save(ctx, token, insight)
		switch {
		case err == nil && saved != nil && strings.TrimSpace(saved.ID) != "":
			result.Insights = append(result.Insights, *saved)
			result.Report.Persisted++
			g.metrics.RecordPersistOutcome(PersistOutcomePersisted)
		case appErrors.IsUnauthorized(err):
			g.metrics.RecordPersistOutcome(PersistOutcomeSessionInvalid)
			result.Insights = append(result.Insights, batch[i:]...)
			result.Report.SessionInvalid = true
			g.logger.Warn("artifact store rejected session",
				zap.Int("saved", result.Report.Persisted+result.Report.Surrogates),
				zap.Int("unsaved", len(batch)-i),
			)
			return result, appErrors.Clone(appErrors.ErrSessionInvalid, "")
		default:
			if err == nil {
				err = appErrors.Clone(appErrors.ErrStoreUnavailable, "store returned an artifact without id")
			}
			g.logger.Warn("artifact kept as local surrogate", zap.String("title", insight.Title), zap.Error(err))
			result.Insights = append(result.Insights, g.surrogate(insight))
			result.Report.Surrogates++
			g.metrics.RecordPersistOutcome(PersistOutcomeSurrogate)
		}
	}
	return result, nil
}

func (g *PersistenceGateway) surrogate(insight models.Insight) models.Insight {
	insight.ID = SurrogateIDPrefix + g.newID()
	insight.IsLocal = true
	return insight
}
