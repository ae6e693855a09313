package service

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

// AggregateResult is the aggregator output: lifetime statistics plus the two
// time slices trend detectors compare.
type AggregateResult struct {
	Snapshot models.StatSnapshot
	Recent   []models.BehaviorEvent
	Previous []models.BehaviorEvent
}

// Aggregate turns raw events into categorical statistics. Events without any
// timestamp count towards lifetime totals but are left out of both windows.
// Missing optional fields are bucketed under placeholder labels.
func Aggregate(events []models.BehaviorEvent, now time.Time) AggregateResult {
	snapshot := models.StatSnapshot{
		ByCategory:   make(map[models.BehaviorCategory]int),
		ByStudent:    make(map[string]int),
		BySubject:    make(map[string]models.ContextBalance),
		ByTimeOfDay:  make(map[string]int),
		BySeverity:   make(map[string]int),
		StudentNames: make(map[string]string),
	}
	result := AggregateResult{}
	recentStart := now.Add(-recentWindow)
	previousStart := now.Add(-previousWindow)

	for _, event := range events {
		snapshot.Total++
		category := event.Category.Normalize()
		if category == "" {
			category = models.BehaviorCategory(models.UnknownLabel)
		}
		snapshot.ByCategory[category]++

		studentID := studentKey(event)
		snapshot.ByStudent[studentID]++
		if _, named := snapshot.StudentNames[studentID]; !named || snapshot.StudentNames[studentID] == models.UnknownLabel {
			snapshot.StudentNames[studentID] = labelOr(event.StudentName, models.UnknownLabel)
		}

		subject := labelOr(event.Subject, models.NoSubjectLabel)
		balance := snapshot.BySubject[subject]
		switch category.Polarity() {
		case models.PolarityPositive:
			snapshot.Positive++
			balance.Positive++
		case models.PolarityNegative:
			snapshot.Negative++
			balance.Negative++
		default:
			snapshot.Neutral++
			balance.Neutral++
		}
		snapshot.BySubject[subject] = balance

		snapshot.ByTimeOfDay[labelOr(string(event.TimeOfDay), models.UnknownLabel)]++
		snapshot.BySeverity[labelOr(strings.ToLower(string(event.Severity)), models.UnknownLabel)]++

		ts, ok := event.Timestamp()
		if !ok {
			continue
		}
		trackRange(&snapshot, ts)
		switch {
		case ts.After(recentStart):
			result.Recent = append(result.Recent, event)
		case ts.After(previousStart):
			result.Previous = append(result.Previous, event)
		}
	}

	result.Snapshot = snapshot
	return result
}

func trackRange(snapshot *models.StatSnapshot, ts time.Time) {
	if snapshot.RangeStart == nil || ts.Before(*snapshot.RangeStart) {
		start := ts
		snapshot.RangeStart = &start
	}
	if snapshot.RangeEnd == nil || ts.After(*snapshot.RangeEnd) {
		end := ts
		snapshot.RangeEnd = &end
	}
}

func studentKey(event models.BehaviorEvent) string {
	if id := strings.TrimSpace(event.StudentID); id != "" {
		return id
	}
	return models.UnknownLabel
}

func labelOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
