package models

import "time"

// PersistenceReport summarises what happened to a batch on its way to the store.
type PersistenceReport struct {
	Attempted      int  `json:"attempted"`
	Persisted      int  `json:"persisted"`
	Surrogates     int  `json:"surrogates"`
	Skipped        bool `json:"skipped"`
	SessionInvalid bool `json:"session_invalid"`
}

// AnalysisRun is the output of one generation of the analysis pipeline.
type AnalysisRun struct {
	Generation  uint64            `json:"generation"`
	Reason      string            `json:"reason,omitempty"`
	Stale       bool              `json:"stale"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Snapshot    DataSnapshot      `json:"data_snapshot"`
	Risk        RiskSummary       `json:"risk"`
	Insights    []Insight         `json:"insights"`
	Persistence PersistenceReport `json:"persistence"`
}
