package models

import (
	"strings"
	"time"
)

// BehaviorCategory is the enumerated behaviour type recorded by teachers.
type BehaviorCategory string

const (
	CategoryParticipation  BehaviorCategory = "Participation"
	CategoryOnTask         BehaviorCategory = "On Task"
	CategoryHelpingOthers  BehaviorCategory = "Helping Others"
	CategoryKindness       BehaviorCategory = "Kindness"
	CategoryLeadership     BehaviorCategory = "Leadership"
	CategoryImprovement    BehaviorCategory = "Improvement"
	CategoryAggression     BehaviorCategory = "Aggression"
	CategoryBullying       BehaviorCategory = "Bullying"
	CategorySafetyConcern  BehaviorCategory = "Safety Concern"
	CategoryDefiance       BehaviorCategory = "Defiance"
	CategoryDisrespect     BehaviorCategory = "Disrespect"
	CategoryDisruption     BehaviorCategory = "Disruption"
	CategoryOffTask        BehaviorCategory = "Off Task"
	CategoryTardiness      BehaviorCategory = "Tardiness"
	CategoryIncompleteWork BehaviorCategory = "Incomplete Work"
	CategoryObservation    BehaviorCategory = "Observation"
)

// Polarity partitions categories into positive, negative and neutral.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// RiskTier ranks negative categories by how much they contribute to risk.
type RiskTier int

const (
	TierNone RiskTier = iota
	TierMinor
	TierMild
	TierElevated
	TierCritical
)

var tierWeights = map[RiskTier]int{
	TierNone:     0,
	TierMinor:    1,
	TierMild:     2,
	TierElevated: 3,
	TierCritical: 5,
}

type categoryTraits struct {
	polarity Polarity
	tier     RiskTier
}

// categoryTable is the only place categories are classified. The aggregator,
// the risk scorer and every detector read it through the methods below.
var categoryTable = map[BehaviorCategory]categoryTraits{
	CategoryParticipation:  {PolarityPositive, TierNone},
	CategoryOnTask:         {PolarityPositive, TierNone},
	CategoryHelpingOthers:  {PolarityPositive, TierNone},
	CategoryKindness:       {PolarityPositive, TierNone},
	CategoryLeadership:     {PolarityPositive, TierNone},
	CategoryImprovement:    {PolarityPositive, TierNone},
	CategoryAggression:     {PolarityNegative, TierCritical},
	CategoryBullying:       {PolarityNegative, TierCritical},
	CategorySafetyConcern:  {PolarityNegative, TierCritical},
	CategoryDefiance:       {PolarityNegative, TierElevated},
	CategoryDisrespect:     {PolarityNegative, TierElevated},
	CategoryDisruption:     {PolarityNegative, TierMild},
	CategoryOffTask:        {PolarityNegative, TierMild},
	CategoryTardiness:      {PolarityNegative, TierMinor},
	CategoryIncompleteWork: {PolarityNegative, TierMinor},
}

// Normalize trims surrounding whitespace so every lookup sees the same label.
func (c BehaviorCategory) Normalize() BehaviorCategory {
	return BehaviorCategory(strings.TrimSpace(string(c)))
}

// Polarity classifies the category; unknown labels are neutral.
func (c BehaviorCategory) Polarity() Polarity {
	if traits, ok := categoryTable[c.Normalize()]; ok {
		return traits.polarity
	}
	return PolarityNeutral
}

// IsPositive reports membership in the positive set.
func (c BehaviorCategory) IsPositive() bool { return c.Polarity() == PolarityPositive }

// IsNegative reports membership in the negative set.
func (c BehaviorCategory) IsNegative() bool { return c.Polarity() == PolarityNegative }

// Tier returns the risk tier of the category.
func (c BehaviorCategory) Tier() RiskTier {
	return categoryTable[c.Normalize()].tier
}

// IsCritical reports membership in the critical subset that demands an immediate response.
func (c BehaviorCategory) IsCritical() bool { return c.Tier() == TierCritical }

// RiskWeight is the per-event contribution of the category to a risk score.
func (c BehaviorCategory) RiskWeight() int { return tierWeights[c.Tier()] }

// MaxRiskWeight is the largest per-event weight any category carries.
func MaxRiskWeight() int { return tierWeights[TierCritical] }

// Severity is the teacher-assigned seriousness of a single event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// TimeOfDay buckets when an event happened during the school day.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "Morning"
	TimeMidday    TimeOfDay = "Midday"
	TimeAfternoon TimeOfDay = "Afternoon"
)

// Labels substituted for missing optional fields.
const (
	UnknownLabel   = "Unknown"
	NoSubjectLabel = "No Subject"
)

// BehaviorEvent is one observed classroom occurrence. Events are created by the
// logging surface and are read-only to the analysis engine.
type BehaviorEvent struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Category    BehaviorCategory `db:"category" json:"category" validate:"required"`
	Subject     string           `db:"subject" json:"subject"`
	TimeOfDay   TimeOfDay        `db:"time_of_day" json:"time_of_day"`
	Severity    Severity         `db:"severity" json:"severity"`
	Notes       string           `db:"notes" json:"notes,omitempty"`
	OccurredAt  *time.Time       `db:"occurred_at" json:"occurred_at,omitempty"`
	CreatedAt   *time.Time       `db:"created_at" json:"created_at,omitempty"`
}

// Timestamp returns the primary timestamp, falling back to CreatedAt.
func (e BehaviorEvent) Timestamp() (time.Time, bool) {
	if e.OccurredAt != nil && !e.OccurredAt.IsZero() {
		return *e.OccurredAt, true
	}
	if e.CreatedAt != nil && !e.CreatedAt.IsZero() {
		return *e.CreatedAt, true
	}
	return time.Time{}, false
}

// BehaviorEventFilter scopes event reads. A zero Limit reads every matching event.
type BehaviorEventFilter struct {
	StudentID string
	Since     *time.Time
	Limit     int
}
