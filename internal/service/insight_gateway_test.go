package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

func candidateBatch(n int) []models.Insight {
	batch := make([]models.Insight, n)
	for i := range batch {
		batch[i] = models.Insight{
			ID:      fmt.Sprintf("cand-%d", i),
			Kind:    models.KindInsight,
			Title:   fmt.Sprintf("artifact %d", i),
			Actions: []string{"act"},
			Active:  true,
		}
	}
	return batch
}

func TestSaveBatchReplacesCandidateIDs(t *testing.T) {
	store := &stubInsightStore{}
	gateway := NewPersistenceGateway(store, NewMetricsService(), nil)

	result, err := gateway.SaveBatch(context.Background(), "tok", candidateBatch(3))

	require.NoError(t, err)
	require.Len(t, result.Insights, 3)
	for i, insight := range result.Insights {
		assert.Equal(t, fmt.Sprintf("ins-%d", i+1), insight.ID)
		assert.Equal(t, fmt.Sprintf("artifact %d", i), insight.Title)
		assert.False(t, insight.IsLocal)
	}
	assert.Equal(t, models.PersistenceReport{Attempted: 3, Persisted: 3}, result.Report)
	assert.Equal(t, []string{"tok", "tok", "tok"}, store.tokens)
}

func TestSaveBatchUnauthorizedAbortsBatch(t *testing.T) {
	store := &stubInsightStore{saveFn: unauthorizedSave}
	gateway := NewPersistenceGateway(store, NewMetricsService(), nil)
	batch := candidateBatch(4)

	result, err := gateway.SaveBatch(context.Background(), "expired", batch)

	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrSessionInvalid)
	assert.Equal(t, 1, store.saveCount())
	assert.True(t, result.Report.SessionInvalid)
	assert.Equal(t, 0, result.Report.Surrogates)
	require.Len(t, result.Insights, 4)
	assert.Equal(t, batch, result.Insights)
}

func TestSaveBatchUnauthorizedMidBatchKeepsSaved(t *testing.T) {
	store := &stubInsightStore{}
	store.saveFn = func(call int, insight models.Insight) (*models.Insight, error) {
		if call == 2 {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
		}
		insight.ID = "ins-ok"
		return &insight, nil
	}
	gateway := NewPersistenceGateway(store, nil, nil)

	result, err := gateway.SaveBatch(context.Background(), "tok", candidateBatch(3))

	assert.ErrorIs(t, err, appErrors.ErrSessionInvalid)
	require.Len(t, result.Insights, 3)
	assert.Equal(t, "ins-ok", result.Insights[0].ID)
	assert.Equal(t, "cand-1", result.Insights[1].ID)
	assert.Equal(t, "cand-2", result.Insights[2].ID)
	assert.Equal(t, 1, result.Report.Persisted)
}

func TestSaveBatchUnreachableStoreYieldsSurrogates(t *testing.T) {
	store := &stubInsightStore{saveFn: unreachableSave}
	metrics := NewMetricsService()
	gateway := NewPersistenceGateway(store, metrics, nil)

	result, err := gateway.SaveBatch(context.Background(), "tok", candidateBatch(5))

	require.NoError(t, err)
	assert.Equal(t, 5, store.saveCount())
	require.Len(t, result.Insights, 5)
	seen := make(map[string]struct{})
	for _, insight := range result.Insights {
		assert.True(t, insight.IsLocal)
		assert.Contains(t, insight.ID, SurrogateIDPrefix)
		seen[insight.ID] = struct{}{}
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 5, result.Report.Surrogates)
	assert.Equal(t, uint64(5), metrics.Snapshot().ArtifactSurrogates)
}

func TestSaveBatchMalformedResponseIsSurrogate(t *testing.T) {
	store := &stubInsightStore{saveFn: func(int, models.Insight) (*models.Insight, error) {
		return &models.Insight{}, nil
	}}
	gateway := NewPersistenceGateway(store, nil, nil)

	result, err := gateway.SaveBatch(context.Background(), "tok", candidateBatch(1))

	require.NoError(t, err)
	require.Len(t, result.Insights, 1)
	assert.True(t, result.Insights[0].IsLocal)
	assert.Equal(t, "artifact 0", result.Insights[0].Title)
}

func TestSaveBatchWithoutTokenSkipsPersistence(t *testing.T) {
	store := &stubInsightStore{}
	gateway := NewPersistenceGateway(store, nil, nil)
	batch := candidateBatch(2)

	result, err := gateway.SaveBatch(context.Background(), " ", batch)

	require.NoError(t, err)
	assert.Equal(t, 0, store.saveCount())
	assert.True(t, result.Report.Skipped)
	assert.Equal(t, batch, result.Insights)
	for _, insight := range result.Insights {
		assert.False(t, insight.IsLocal)
	}
}

func TestSaveBatchPreservesCount(t *testing.T) {
	outcomes := []func(int, models.Insight) (*models.Insight, error){
		nil,
		unauthorizedSave,
		unreachableSave,
		func(call int, insight models.Insight) (*models.Insight, error) {
			switch call % 3 {
			case 0:
				return unreachableSave(call, insight)
			case 1:
				insight.ID = fmt.Sprintf("ins-%d", call)
				return &insight, nil
			default:
				return nil, fmt.Errorf("malformed json")
			}
		},
	}
	for i, outcome := range outcomes {
		for _, size := range []int{0, 1, 7} {
			store := &stubInsightStore{saveFn: outcome}
			gateway := NewPersistenceGateway(store, nil, nil)
			result, _ := gateway.SaveBatch(context.Background(), "tok", candidateBatch(size))
			assert.Len(t, result.Insights, size, "outcome %d size %d", i, size)
		}
	}
}
