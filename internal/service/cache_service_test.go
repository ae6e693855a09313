package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCacheRepo struct {
	*memoryCacheRepo
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("connection reset")
}

func TestCacheServiceNamespacesKeys(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, "insights-api", time.Minute, nil, true)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "insights:latest", map[string]int{"generation": 4}, 0))
	_, stored := repo.items["insights-api:insights:latest"]
	assert.True(t, stored)

	var out map[string]int
	hit, err := svc.Get(ctx, "insights:latest", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, out["generation"])

	hit, err = svc.Get(ctx, "insights:missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, "ns", time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", 1, 0))
	assert.Empty(t, repo.items)
	var out int
	hit, err := svc.Get(ctx, "k", &out)
	assert.NoError(t, err)
	assert.False(t, hit)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.NoError(t, nilSvc.Set(ctx, "k", 1, 0))
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := &failingCacheRepo{memoryCacheRepo: newMemoryCacheRepo()}
	svc := NewCacheService(repo, nil, "", time.Minute, nil, true)

	var out int
	hit, err := svc.Get(context.Background(), "k", &out)

	assert.Error(t, err)
	assert.False(t, hit)
}
