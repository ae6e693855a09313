package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/jobs"
	"github.com/noah-isme/sma-behavior-insights/pkg/logger"
)

const (
	latestRunCacheKey   = "insights:latest"
	currentRiskCacheKey = "insights:risk:current"
	analysisJobKey      = "analysis"
	analysisJobType     = "analysis.run"
)

type behaviorEventReader interface {
	ListEvents(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, error)
}

type rosterReader interface {
	ListEntities(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// InsightServiceConfig tunes publishing and background triggers.
type InsightServiceConfig struct {
	TriggerDebounce time.Duration
	TriggerRetries  int
	CurrentRiskTTL  time.Duration
	LatestCacheTTL  time.Duration
}

// SuggestionResult is the outcome of analysing a single event.
type SuggestionResult struct {
	Insight     *models.Insight          `json:"insight"`
	Persistence models.PersistenceReport `json:"persistence"`
}

type triggerPayload struct {
	token  string
	reason string
}

// InsightService runs the analysis pipeline and publishes its results.
type InsightService struct {
	events    behaviorEventReader
	roster    rosterReader
	gateway   *PersistenceGateway
	recorder  *ApplyRecorder
	store     InsightStore
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       InsightServiceConfig
	detectors []Detector
	assembler *Assembler
	now       func() time.Time

	generation atomic.Uint64
	runMu      sync.Mutex

	mu          sync.RWMutex
	latest      *models.AnalysisRun
	currentRisk *models.RiskSummary
	adhoc       map[string]models.Insight

	queue *jobs.Queue
}

// NewInsightService wires the pipeline. store may be nil, in which case
// artifacts are generated but never persisted.
func NewInsightService(events behaviorEventReader, roster rosterReader, store InsightStore, cache *CacheService, metrics *MetricsService, cfg InsightServiceConfig, logger *zap.Logger) *InsightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightService{
		events:    events,
		roster:    roster,
		gateway:   NewPersistenceGateway(store, metrics, logger),
		recorder:  NewApplyRecorder(store, logger),
		store:     store,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		detectors: DefaultDetectors(),
		assembler: NewAssembler(),
		now:       func() time.Time { return time.Now().UTC() },
		adhoc:     make(map[string]models.Insight),
	}
}

// Run executes one analysis generation synchronously.
func (s *InsightService) Run(ctx context.Context, token string) (*models.AnalysisRun, error) {
	return s.run(ctx, token, "manual")
}

func (s *InsightService) run(ctx context.Context, token, reason string) (*models.AnalysisRun, error) {
	generation := s.generation.Add(1)
	log := logger.ForRun(s.logger, generation, reason)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.now()
	run := &models.AnalysisRun{Generation: generation, Reason: reason, StartedAt: started}

	loadStart := time.Now()
	events, err := s.events.ListEvents(ctx, models.BehaviorEventFilter{})
	s.metrics.ObserveDBQuery("behavior_events", time.Since(loadStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load behavior events")
	}
	var students []models.Student
	if s.roster != nil {
		loadStart = time.Now()
		students, err = s.roster.ListEntities(ctx)
		s.metrics.ObserveDBQuery("students", time.Since(loadStart))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student roster")
		}
	}

	aggregate := Aggregate(events, started)
	risk := ScoreRisk(aggregate.Recent, started)
	risk.Generation = generation

	candidates, failures := RunDetectors(s.detectors, DetectorInput{
		Snapshot: aggregate.Snapshot,
		Recent:   aggregate.Recent,
		Previous: aggregate.Previous,
		Students: students,
		Risk:     risk,
	})
	for _, failure := range failures {
		log.Error("detector failed", zap.String("signal", string(failure.Signal)), zap.String("reason", failure.Reason))
		s.metrics.RecordDetectorFailure(failure.Signal)
	}

	insights := s.assembler.Assemble(candidates, AssemblyContext{
		Snapshot:      aggregate.Snapshot,
		RecentCount:   len(aggregate.Recent),
		PreviousCount: len(aggregate.Previous),
		StudentCount:  len(students),
	})
	s.metrics.RecordArtifacts(insights)
	run.Risk = risk
	if len(insights) > 0 {
		run.Snapshot = insights[0].Snapshot
	} else {
		run.Snapshot = models.DataSnapshot{
			StudentCount:  len(students),
			EventCount:    aggregate.Snapshot.Total,
			RecentCount:   len(aggregate.Recent),
			PreviousCount: len(aggregate.Previous),
			RangeStart:    aggregate.Snapshot.RangeStart,
			RangeEnd:      aggregate.Snapshot.RangeEnd,
		}
	}

	var persistErr error
	if s.superseded(generation) {
		run.Insights = insights
		run.Persistence = models.PersistenceReport{Skipped: true}
		log.Info("run superseded before persistence")
	} else {
		result, err := s.gateway.SaveBatch(ctx, token, insights)
		run.Insights = result.Insights
		run.Persistence = result.Report
		persistErr = err
	}

	run.CompletedAt = s.now()
	run.Stale = s.superseded(generation)
	s.metrics.ObserveAnalysis(run.CompletedAt.Sub(started), risk, run.Stale)
	if run.Stale {
		log.Info("analysis run is stale, result not published")
	} else {
		s.publish(ctx, run)
	}

	log.Info("analysis run completed",
		zap.Int("events", aggregate.Snapshot.Total),
		zap.Int("artifacts", len(run.Insights)),
		zap.Int("persisted", run.Persistence.Persisted),
		zap.Int("surrogates", run.Persistence.Surrogates),
		zap.Bool("stale", run.Stale),
		zap.Float64("risk_percentage", risk.Percentage),
	)
	return run, persistErr
}

func (s *InsightService) superseded(generation uint64) bool {
	return s.generation.Load() != generation
}

func (s *InsightService) publish(ctx context.Context, run *models.AnalysisRun) {
	risk := run.Risk
	s.mu.Lock()
	s.latest = run
	s.currentRisk = &risk
	s.mu.Unlock()

	if err := s.cache.Set(ctx, latestRunCacheKey, run, s.cfg.LatestCacheTTL); err != nil {
		s.logger.Warn("failed to cache latest run", zap.Error(err))
	}
	if err := s.cache.Set(ctx, currentRiskCacheKey, risk, s.cfg.CurrentRiskTTL); err != nil {
		s.logger.Warn("failed to cache current risk", zap.Error(err))
	}
}

// Latest returns the most recent published run. The flag reports whether it
// came from the shared cache rather than this process.
func (s *InsightService) Latest(ctx context.Context) (*models.AnalysisRun, bool, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		copied := *latest
		copied.Insights = append([]models.Insight(nil), latest.Insights...)
		return &copied, false, nil
	}

	var cached models.AnalysisRun
	hit, err := s.cache.Get(ctx, latestRunCacheKey, &cached)
	if err == nil && hit {
		return &cached, true, nil
	}
	return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no analysis has been run yet")
}

// CurrentRisk returns the risk summary published by the newest non-stale run.
func (s *InsightService) CurrentRisk(ctx context.Context) (*models.RiskSummary, bool, error) {
	s.mu.RLock()
	current := s.currentRisk
	s.mu.RUnlock()
	if current != nil {
		copied := *current
		return &copied, false, nil
	}

	var cached models.RiskSummary
	hit, err := s.cache.Get(ctx, currentRiskCacheKey, &cached)
	if err == nil && hit {
		return &cached, true, nil
	}
	return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no risk summary available")
}

// SuggestForEvent checks a single newly logged event for a situation needing
// an immediate response and persists the suggestion if there is one.
func (s *InsightService) SuggestForEvent(ctx context.Context, token string, event models.BehaviorEvent) (*SuggestionResult, error) {
	name := event.StudentName
	if strings.TrimSpace(name) == "" && event.StudentID != "" && s.roster != nil {
		student, err := s.roster.FindByID(ctx, event.StudentID)
		if err != nil {
			s.logger.Warn("failed to resolve student for suggestion", zap.String("student_id", event.StudentID), zap.Error(err))
		} else {
			name = student.FullName
		}
	}

	candidate := DetectImmediateResponse(event, name)
	if candidate == nil {
		return &SuggestionResult{}, nil
	}
	snapshot := Aggregate([]models.BehaviorEvent{event}, s.now()).Snapshot
	insights := s.assembler.Assemble([]Candidate{*candidate}, AssemblyContext{
		Snapshot:     snapshot,
		RecentCount:  1,
		StudentCount: 1,
	})
	s.metrics.RecordArtifacts(insights)

	result, err := s.gateway.SaveBatch(ctx, token, insights)
	out := &SuggestionResult{Persistence: result.Report}
	if len(result.Insights) > 0 {
		suggestion := result.Insights[0]
		out.Insight = &suggestion
		s.mu.Lock()
		s.adhoc[suggestion.ID] = suggestion
		s.mu.Unlock()
	}
	return out, err
}

// Apply records that the user acted on an artifact. Artifacts produced by this
// process are looked up locally; anything else is fetched from the store.
func (s *InsightService) Apply(ctx context.Context, token, insightID, action, feedback string) (*models.ActionRecord, *models.Insight, error) {
	insight, local := s.lookup(insightID)
	if !local {
		if !IsPersistedID(insightID) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "insight not found")
		}
		if strings.TrimSpace(token) == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrMissingCredential, "")
		}
		if s.store == nil {
			return nil, nil, appErrors.Clone(appErrors.ErrStoreUnavailable, "")
		}
		fetched, err := s.store.Get(ctx, token, insightID)
		if err != nil {
			return nil, nil, err
		}
		insight = *fetched
	}

	record, err := s.recorder.Apply(ctx, token, &insight, action, feedback)
	if err != nil {
		return nil, nil, err
	}
	if local {
		s.replace(ctx, insight)
	}
	return record, &insight, nil
}

func (s *InsightService) lookup(id string) (models.Insight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest != nil {
		for _, insight := range s.latest.Insights {
			if insight.ID == id {
				return insight, true
			}
		}
	}
	insight, ok := s.adhoc[id]
	return insight, ok
}

// replace swaps in the applied copy and refreshes the shared latest-run entry.
func (s *InsightService) replace(ctx context.Context, updated models.Insight) {
	s.mu.Lock()
	if _, ok := s.adhoc[updated.ID]; ok {
		s.adhoc[updated.ID] = updated
	}
	var latest *models.AnalysisRun
	if s.latest != nil {
		for i := range s.latest.Insights {
			if s.latest.Insights[i].ID == updated.ID {
				s.latest.Insights[i] = updated
				copied := *s.latest
				copied.Insights = append([]models.Insight(nil), s.latest.Insights...)
				latest = &copied
				break
			}
		}
	}
	s.mu.Unlock()

	if latest == nil {
		return
	}
	if err := s.cache.Set(ctx, latestRunCacheKey, latest, s.cfg.LatestCacheTTL); err != nil {
		s.logger.Warn("failed to refresh cached latest run", zap.Error(err))
	}
}

// StartTriggers starts the background worker that serves Trigger.
func (s *InsightService) StartTriggers(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil {
		s.queue = jobs.NewQueue("insights", s.handleTrigger, jobs.QueueConfig{
			Workers:    1,
			MaxRetries: s.cfg.TriggerRetries,
			Debounce:   s.cfg.TriggerDebounce,
			Logger:     s.logger,
		})
	}
	queue := s.queue
	s.mu.Unlock()
	queue.Start(ctx)
}

// StopTriggers stops the background worker.
func (s *InsightService) StopTriggers() {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()
	if queue != nil {
		queue.Stop()
	}
}

// Trigger schedules a background run after a data change. Triggers arriving
// while one is waiting collapse into a single run using the newest token.
func (s *InsightService) Trigger(token, reason string) (bool, error) {
	s.mu.RLock()
	queue := s.queue
	s.mu.RUnlock()
	if queue == nil {
		return false, appErrors.Clone(appErrors.ErrStoreUnavailable, "analysis triggers are not running")
	}
	if reason == "" {
		reason = "data_change"
	}
	coalesced, err := queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Key:     analysisJobKey,
		Type:    analysisJobType,
		Payload: triggerPayload{token: token, reason: reason},
	})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule analysis")
	}
	return coalesced, nil
}

func (s *InsightService) handleTrigger(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(triggerPayload)
	if !ok {
		s.logger.Error("unexpected analysis job payload", zap.String("job_id", job.ID))
		return nil
	}
	_, err := s.run(ctx, payload.token, payload.reason)
	if err != nil && errors.Is(err, appErrors.ErrSessionInvalid) {
		// Retrying with the same token cannot succeed.
		return nil
	}
	return err
}
