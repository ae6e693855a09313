package service

import (
	"sort"
	"time"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

type riskAccumulator struct {
	snapshot models.RiskSnapshot
	last     time.Time
}

// ScoreRisk computes per-student risk over the recent window. Each event adds
// its category weight; a student with any weighted event also earns a recency
// bonus from their most recent event. The aggregate percentage compares the
// sum of student scores, bonuses included, with the maximum category weight
// for the window's event count.
func ScoreRisk(recent []models.BehaviorEvent, now time.Time) models.RiskSummary {
	perStudent := make(map[string]*riskAccumulator)
	summary := models.RiskSummary{ComputedAt: now}

	for _, event := range recent {
		id := studentKey(event)
		acc, ok := perStudent[id]
		if !ok {
			acc = &riskAccumulator{snapshot: models.RiskSnapshot{
				StudentID:   id,
				StudentName: labelOr(event.StudentName, models.UnknownLabel),
			}}
			perStudent[id] = acc
		}
		weight := event.Category.RiskWeight()
		acc.snapshot.EventCount++
		acc.snapshot.WeightSum += weight
		if event.Category.IsNegative() {
			acc.snapshot.NegativeCount++
		}
		if ts, ok := event.Timestamp(); ok && ts.After(acc.last) {
			acc.last = ts
		}

		summary.EventCount++
		summary.WeightSum += weight
	}

	summary.Students = make([]models.RiskSnapshot, 0, len(perStudent))
	for _, acc := range perStudent {
		snap := acc.snapshot
		snap.Score = snap.WeightSum
		if !acc.last.IsZero() {
			age := now.Sub(acc.last)
			if age < 0 {
				age = 0
			}
			snap.DaysSinceLastEvent = int(age / (24 * time.Hour))
			if snap.WeightSum > 0 {
				snap.Score += recencyBonusFor(age)
			}
		}
		summary.ScoreSum += snap.Score
		summary.Students = append(summary.Students, snap)
	}
	sort.Slice(summary.Students, func(i, j int) bool {
		a, b := summary.Students[i], summary.Students[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.StudentID < b.StudentID
	})

	summary.Percentage = clampFloat(safePercent(float64(summary.ScoreSum), float64(summary.EventCount*models.MaxRiskWeight())), 0, 100)
	summary.Level = riskLevelFor(summary.Percentage)
	return summary
}

func recencyBonusFor(age time.Duration) int {
	bonus := 0
	if age < recencyBonusWindow {
		bonus += recencyBonus
	}
	if age < freshRecencyWindow {
		bonus += freshRecencyBonus
	}
	return bonus
}

func riskLevelFor(percentage float64) models.RiskLevel {
	switch {
	case percentage > riskHighThreshold:
		return models.RiskHigh
	case percentage > riskMediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// safePercent returns 100*part/whole, or 0 when whole is not positive.
func safePercent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * part / whole
}

func clampFloat(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
