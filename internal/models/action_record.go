package models

import "time"

// ActionOutcome describes how an applied action worked out.
type ActionOutcome struct {
	Success bool   `json:"success"`
	Impact  string `json:"impact,omitempty"`
}

// ActionRecord is the durable trace that a user acted on an artifact. Only the
// outcome and feedback change after creation.
type ActionRecord struct {
	ID        string         `json:"id"`
	InsightID string         `json:"insight_id"`
	Action    string         `json:"action"`
	Feedback  string         `json:"feedback,omitempty"`
	Outcome   *ActionOutcome `json:"outcome,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RecordOutcomeRequest updates the outcome of an action record.
type RecordOutcomeRequest struct {
	Success  *bool  `json:"success" validate:"required"`
	Impact   string `json:"impact"`
	Feedback string `json:"feedback"`
}
