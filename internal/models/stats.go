package models

import "time"

// ContextBalance counts events per polarity for one context bucket.
type ContextBalance struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Total returns the number of events in the bucket.
func (b ContextBalance) Total() int { return b.Positive + b.Negative + b.Neutral }

// StatSnapshot is the aggregated view of an event collection. It is recomputed
// on every analysis run and never persisted.
type StatSnapshot struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`

	ByCategory  map[BehaviorCategory]int  `json:"by_category"`
	ByStudent   map[string]int            `json:"by_student"`
	BySubject   map[string]ContextBalance `json:"by_subject"`
	ByTimeOfDay map[string]int            `json:"by_time_of_day"`
	BySeverity  map[string]int            `json:"by_severity"`

	// StudentNames resolves ids seen in events to display names.
	StudentNames map[string]string `json:"student_names"`

	RangeStart *time.Time `json:"range_start,omitempty"`
	RangeEnd   *time.Time `json:"range_end,omitempty"`
}

// Empty reports whether no events were aggregated.
func (s StatSnapshot) Empty() bool { return s.Total == 0 }
