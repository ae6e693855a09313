package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	"github.com/noah-isme/sma-behavior-insights/internal/service"
	"github.com/noah-isme/sma-behavior-insights/pkg/insightstore"
)

type fixture struct {
	Students []models.Student       `json:"students"`
	Events   []models.BehaviorEvent `json:"events"`
}

func (f *fixture) ListEvents(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, error) {
	return f.Events, nil
}

func (f *fixture) ListEntities(ctx context.Context) ([]models.Student, error) {
	return f.Students, nil
}

func (f *fixture) FindByID(ctx context.Context, id string) (*models.Student, error) {
	for _, student := range f.Students {
		if student.ID == id {
			found := student
			return &found, nil
		}
	}
	return nil, fmt.Errorf("student %s not in fixture", id)
}

func main() {
	var (
		eventsPath string
		storeURL   string
		token      string
		jwtSecret  string
		jwtIssuer  string
		timeout    time.Duration
		verbose    bool
	)

	flag.StringVar(&eventsPath, "events", filepath.Join("scripts", "analyze_events", "events.json"), "Path to JSON file with students and events")
	flag.StringVar(&storeURL, "store-url", "", "Insight store base URL; artifacts stay local when empty")
	flag.StringVar(&token, "token", os.Getenv("INSIGHTS_TOKEN"), "Bearer token for the insight store")
	flag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Mint a short-lived teacher token with this secret when -token is empty")
	flag.StringVar(&jwtIssuer, "jwt-issuer", os.Getenv("JWT_ISSUER"), "Issuer for minted tokens")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Insight store timeout")
	flag.BoolVar(&verbose, "v", false, "Log pipeline progress to stderr")
	flag.Parse()

	data, err := loadFixture(eventsPath)
	if err != nil {
		log.Fatalf("failed to load events: %v", err)
	}

	logr := zap.NewNop()
	if verbose {
		if logr, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("failed to init logger: %v", err)
		}
		defer logr.Sync() //nolint:errcheck
	}

	if token == "" && jwtSecret != "" {
		tokens := service.NewTokenService(service.TokenConfig{Secret: jwtSecret, Issuer: jwtIssuer})
		if token, err = tokens.IssueToken("analyze-events", models.RoleTeacher, 15*time.Minute); err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
	}

	var store service.InsightStore
	if storeURL != "" {
		store = insightstore.New(insightstore.Config{BaseURL: storeURL, Timeout: timeout, Retries: 1}, logr)
	}

	svc := service.NewInsightService(data, data, store, nil, nil, service.InsightServiceConfig{}, logr)
	run, runErr := svc.Run(context.Background(), token)
	if run == nil {
		log.Fatalf("analysis failed: %v", runErr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Artifacts: %d, Persisted: %d, Surrogates: %d, Risk: %.1f%% (%s)\n",
		len(run.Insights), run.Persistence.Persisted, run.Persistence.Surrogates, run.Risk.Percentage, run.Risk.Level)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "persistence error: %v\n", runErr)
		os.Exit(1)
	}
}

func loadFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f.Events) == 0 {
		return nil, fmt.Errorf("no events defined in %s", path)
	}
	return &f, nil
}
