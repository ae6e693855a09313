package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

// Persistence outcomes recorded per artifact.
const (
	PersistOutcomePersisted      = "persisted"
	PersistOutcomeSurrogate      = "surrogate"
	PersistOutcomeSessionInvalid = "session_invalid"
	PersistOutcomeSkipped        = "skipped"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec
	artifacts        *prometheus.CounterVec
	persistOutcomes  *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	currentRisk      prometheus.Gauge
	detectorFailures *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	analysisRunCount     uint64
	persistedCount       uint64
	surrogateCount       uint64
	sessionInvalidCount  uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	artifacts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_artifacts_generated_total",
		Help: "Artifacts produced by analysis runs",
	}, []string{"kind"})

	persistOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_persist_outcomes_total",
		Help: "Outcome of each artifact save attempt",
	}, []string{"outcome"})

	analysisDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_analysis_duration_seconds",
		Help:    "Duration of complete analysis runs",
		Buckets: prometheus.DefBuckets,
	})

	currentRisk := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "insight_current_risk_percentage",
		Help: "Aggregate risk percentage published by the latest run",
	})

	detectorFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_detector_failures_total",
		Help: "Detectors that failed during a run",
	}, []string{"signal"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration,
		artifacts, persistOutcomes, analysisDuration, currentRisk, detectorFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		artifacts:        artifacts,
		persistOutcomes:  persistOutcomes,
		analysisDuration: analysisDuration,
		currentRisk:      currentRisk,
		detectorFailures: detectorFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordArtifacts counts generated artifacts by kind.
func (m *MetricsService) RecordArtifacts(insights []models.Insight) {
	if m == nil {
		return
	}
	for _, insight := range insights {
		m.artifacts.WithLabelValues(string(insight.Kind)).Inc()
	}
}

// RecordPersistOutcome counts one save attempt outcome.
func (m *MetricsService) RecordPersistOutcome(outcome string) {
	if m == nil {
		return
	}
	m.persistOutcomes.WithLabelValues(outcome).Inc()
	switch outcome {
	case PersistOutcomePersisted:
		atomic.AddUint64(&m.persistedCount, 1)
	case PersistOutcomeSurrogate:
		atomic.AddUint64(&m.surrogateCount, 1)
	case PersistOutcomeSessionInvalid:
		atomic.AddUint64(&m.sessionInvalidCount, 1)
	}
}

// ObserveAnalysis records a completed run and, unless stale, its published risk.
func (m *MetricsService) ObserveAnalysis(duration time.Duration, risk models.RiskSummary, stale bool) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.analysisRunCount, 1)
	if !stale {
		m.currentRisk.Set(risk.Percentage)
	}
}

// RecordDetectorFailure counts a detector that failed.
func (m *MetricsService) RecordDetectorFailure(signal models.SignalKind) {
	if m == nil {
		return
	}
	m.detectorFailures.WithLabelValues(string(signal)).Inc()
}

// Snapshot returns aggregated metrics suitable for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		AnalysisRuns:             atomic.LoadUint64(&m.analysisRunCount),
		ArtifactsPersisted:       atomic.LoadUint64(&m.persistedCount),
		ArtifactSurrogates:       atomic.LoadUint64(&m.surrogateCount),
		SessionRejections:        atomic.LoadUint64(&m.sessionInvalidCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
