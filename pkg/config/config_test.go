package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Insights.Enabled)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.Insights.StoreURL)
	assert.Equal(t, 10*time.Second, cfg.Insights.StoreTimeout)
	assert.Equal(t, 2*time.Second, cfg.Insights.TriggerDebounce)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INSIGHTS_STORE_URL", "https://store.example.com/api/v1/")
	t.Setenv("INSIGHTS_STORE_TIMEOUT", "not-a-duration")
	t.Setenv("INSIGHTS_STORE_RETRIES", "-4")
	t.Setenv("JWT_AUDIENCE", "teachers, ,insights")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("DB_MIGRATIONS_PATH", "/srv/insights/migrations")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://store.example.com/api/v1", cfg.Insights.StoreURL)
	assert.Equal(t, 10*time.Second, cfg.Insights.StoreTimeout)
	assert.Equal(t, 0, cfg.Insights.StoreRetries)
	assert.Equal(t, []string{"teachers", "insights"}, cfg.JWT.Audience)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "/srv/insights/migrations", cfg.Database.MigrationsPath)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
