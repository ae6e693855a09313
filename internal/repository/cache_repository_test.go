package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), server
}

func TestCacheRepositorySetGet(t *testing.T) {
	repo, server := newCacheRepo(t)
	ctx := context.Background()

	risk := models.RiskSummary{Percentage: 42.5, Level: models.RiskMedium, Generation: 3}
	require.NoError(t, repo.Set(ctx, "insights:risk:current", risk, time.Minute))
	assert.True(t, server.Exists("insights:risk:current"))
	assert.Equal(t, time.Minute, server.TTL("insights:risk:current"))

	var cached models.RiskSummary
	require.NoError(t, repo.Get(ctx, "insights:risk:current", &cached))
	assert.Equal(t, risk.Percentage, cached.Percentage)
	assert.Equal(t, models.RiskMedium, cached.Level)
	assert.Equal(t, uint64(3), cached.Generation)
}

func TestCacheRepositoryMissAndExpiry(t *testing.T) {
	repo, server := newCacheRepo(t)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "missing", &dest), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "short", map[string]string{"a": "b"}, time.Second))
	server.FastForward(2 * time.Second)
	assert.ErrorIs(t, repo.Get(ctx, "short", &dest), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest int
	assert.ErrorIs(t, repo.Get(ctx, "any", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "any", 1, time.Minute))
}
