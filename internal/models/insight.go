package models

import "time"

// InsightKind is the artifact family produced by analysis.
type InsightKind string

const (
	KindInsight    InsightKind = "insight"
	KindPrediction InsightKind = "prediction"
	KindSuggestion InsightKind = "suggestion"
)

// Priority orders artifacts for attention.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SignalKind names the rule that produced an artifact. Presentation layers map
// it to icons or colours; the engine never does.
type SignalKind string

const (
	SignalFrequency         SignalKind = "frequency_pattern"
	SignalRepeatIncidents   SignalKind = "repeat_incidents"
	SignalContextChallenge  SignalKind = "context_challenge"
	SignalTemporalCluster   SignalKind = "temporal_cluster"
	SignalSeverityAlert     SignalKind = "severity_alert"
	SignalPositiveTrend     SignalKind = "positive_reinforcement"
	SignalEscalation        SignalKind = "escalation"
	SignalRiskConcentration SignalKind = "risk_concentration"
	SignalImmediateResponse SignalKind = "immediate_response"
)

// DataPoint is one piece of numeric evidence behind an artifact.
type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// DataSnapshot records the totals an artifact was derived from.
type DataSnapshot struct {
	StudentCount  int        `json:"student_count"`
	EventCount    int        `json:"event_count"`
	RecentCount   int        `json:"recent_count"`
	PreviousCount int        `json:"previous_count"`
	RangeStart    *time.Time `json:"range_start,omitempty"`
	RangeEnd      *time.Time `json:"range_end,omitempty"`
}

// Insight is a generated insight, prediction or suggestion. Once stored it only
// changes to record that it was applied or to retire it.
type Insight struct {
	ID            string       `json:"id"`
	Kind          InsightKind  `json:"kind" validate:"required,insight_kind"`
	Signal        SignalKind   `json:"signal" validate:"required"`
	Title         string       `json:"title" validate:"required"`
	Description   string       `json:"description" validate:"required"`
	Priority      Priority     `json:"priority" validate:"required,priority"`
	Category      string       `json:"category"`
	Confidence    int          `json:"confidence" validate:"min=0,max=100"`
	Actions       []string     `json:"actions" validate:"min=1,dive,required"`
	DataPoints    []DataPoint  `json:"data_points"`
	Snapshot      DataSnapshot `json:"data_snapshot"`
	StudentIDs    []string     `json:"student_ids,omitempty"`
	GeneratedAt   time.Time    `json:"generated_at"`
	Applied       bool         `json:"applied"`
	AppliedAction string       `json:"applied_action,omitempty"`
	AppliedAt     *time.Time   `json:"applied_at,omitempty"`
	Active        bool         `json:"active"`
	// IsLocal marks a surrogate kept in memory because the store could not be reached.
	IsLocal   bool       `json:"is_local"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// InsightFilter scopes stored artifact listings.
type InsightFilter struct {
	Kind     InsightKind
	Active   *bool
	Page     int
	PageSize int
}

// ApplyInsightRequest is the payload accepted when a user acts on an artifact.
type ApplyInsightRequest struct {
	ChosenAction string `json:"chosen_action" validate:"required"`
	Feedback     string `json:"feedback"`
}

// ApplyInsightResponse is returned by the store for an apply call.
type ApplyInsightResponse struct {
	Insight Insight      `json:"insight"`
	Record  ActionRecord `json:"record"`
}
