package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	CORS     CORSConfig
	Insights InsightsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	// AutoMigrate applies pending migrations from MigrationsPath on startup.
	AutoMigrate    bool
	MigrationsPath string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// InsightsConfig wires the analysis engine to the artifact store.
type InsightsConfig struct {
	Enabled bool
	// StoreURL is the base URL of the artifact store API, including the API prefix.
	StoreURL        string
	StoreTimeout    time.Duration
	StoreRetries    int
	TriggerDebounce time.Duration
	CurrentRiskTTL  time.Duration
	LatestCacheTTL  time.Duration
	// StoreEnabled mounts the Postgres-backed artifact store endpoints on this process.
	StoreEnabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:    v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.JWT.Audience = splitAndTrim(v.GetString("JWT_AUDIENCE"))

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	retries := v.GetInt("INSIGHTS_STORE_RETRIES")
	if retries < 0 {
		retries = 0
	}
	cfg.Insights = InsightsConfig{
		Enabled:         v.GetBool("ENABLE_INSIGHTS"),
		StoreURL:        strings.TrimRight(v.GetString("INSIGHTS_STORE_URL"), "/"),
		StoreTimeout:    parseDuration(v.GetString("INSIGHTS_STORE_TIMEOUT"), 10*time.Second),
		StoreRetries:    retries,
		TriggerDebounce: parseDuration(v.GetString("INSIGHTS_TRIGGER_DEBOUNCE"), 2*time.Second),
		CurrentRiskTTL:  parseDuration(v.GetString("INSIGHTS_CURRENT_RISK_TTL"), 15*time.Minute),
		LatestCacheTTL:  parseDuration(v.GetString("INSIGHTS_LATEST_CACHE_TTL"), 15*time.Minute),
		StoreEnabled:    v.GetBool("ENABLE_INSIGHT_STORE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "behavior_insights")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_PATH", "migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("ENABLE_INSIGHTS", true)
	v.SetDefault("INSIGHTS_STORE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("INSIGHTS_STORE_TIMEOUT", "10s")
	v.SetDefault("INSIGHTS_STORE_RETRIES", 0)
	v.SetDefault("INSIGHTS_TRIGGER_DEBOUNCE", "2s")
	v.SetDefault("INSIGHTS_CURRENT_RISK_TTL", "15m")
	v.SetDefault("INSIGHTS_LATEST_CACHE_TTL", "15m")
	v.SetDefault("ENABLE_INSIGHT_STORE", true)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
