package models

import "time"

// RiskLevel labels the aggregate risk of the recent window.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskSnapshot is the per-student outcome of risk scoring.
type RiskSnapshot struct {
	StudentID          string `json:"student_id"`
	StudentName        string `json:"student_name"`
	Score              int    `json:"score"`
	WeightSum          int    `json:"weight_sum"`
	EventCount         int    `json:"event_count"`
	NegativeCount      int    `json:"negative_count"`
	DaysSinceLastEvent int    `json:"days_since_last_event"`
}

// RiskSummary is the labelled aggregate for the recent window. The latest one is
// published as the current risk until the next run replaces it.
type RiskSummary struct {
	Percentage float64        `json:"percentage"`
	Level      RiskLevel      `json:"level"`
	EventCount int            `json:"event_count"`
	WeightSum  int            `json:"weight_sum"`
	ScoreSum   int            `json:"score_sum"`
	Students   []RiskSnapshot `json:"students"`
	Generation uint64         `json:"generation"`
	ComputedAt time.Time      `json:"computed_at"`
}
