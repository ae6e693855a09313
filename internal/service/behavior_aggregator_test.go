package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

func TestAggregateEmpty(t *testing.T) {
	result := Aggregate(nil, fixedNow)

	assert.True(t, result.Snapshot.Empty())
	assert.Empty(t, result.Snapshot.ByCategory)
	assert.Empty(t, result.Recent)
	assert.Empty(t, result.Previous)
	assert.Nil(t, result.Snapshot.RangeStart)
}

func TestAggregateCountsAndWindows(t *testing.T) {
	events := []models.BehaviorEvent{
		behaviorEvent("e1", "s-1", models.CategoryDisruption, days(1)),
		behaviorEvent("e2", "s-1", models.CategoryParticipation, days(2)),
		behaviorEvent("e3", "s-2", models.CategoryObservation, days(9)),
		behaviorEvent("e4", "s-2", models.CategoryDefiance, days(20)),
	}
	events[1].Subject = "Science"
	events[1].TimeOfDay = models.TimeAfternoon
	events[3].Severity = models.SeverityHigh

	result := Aggregate(events, fixedNow)
	snap := result.Snapshot

	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1, snap.Positive)
	assert.Equal(t, 2, snap.Negative)
	assert.Equal(t, 1, snap.Neutral)
	assert.Equal(t, 2, snap.ByStudent["s-1"])
	assert.Equal(t, models.ContextBalance{Negative: 2, Neutral: 1}, snap.BySubject["Math"])
	assert.Equal(t, models.ContextBalance{Positive: 1}, snap.BySubject["Science"])
	assert.Equal(t, 3, snap.ByTimeOfDay["Morning"])
	assert.Equal(t, 1, snap.BySeverity["high"])
	assert.Equal(t, "Student s-2", snap.StudentNames["s-2"])

	require.Len(t, result.Recent, 2)
	require.Len(t, result.Previous, 1)
	assert.Equal(t, "e3", result.Previous[0].ID)
	require.NotNil(t, snap.RangeStart)
	assert.Equal(t, fixedNow.Add(-days(20)), *snap.RangeStart)
	assert.Equal(t, fixedNow.Add(-days(1)), *snap.RangeEnd)
}

func TestAggregateUntimedEventsOnlyCountLifetime(t *testing.T) {
	event := models.BehaviorEvent{ID: "e1", Category: models.CategoryBullying}

	result := Aggregate([]models.BehaviorEvent{event}, fixedNow)

	assert.Equal(t, 1, result.Snapshot.Total)
	assert.Empty(t, result.Recent)
	assert.Empty(t, result.Previous)
	assert.Equal(t, 1, result.Snapshot.ByStudent[models.UnknownLabel])
	assert.Equal(t, 1, result.Snapshot.BySubject[models.NoSubjectLabel].Negative)
	assert.Equal(t, 1, result.Snapshot.ByTimeOfDay[models.UnknownLabel])
	assert.Equal(t, 1, result.Snapshot.BySeverity[models.UnknownLabel])
}

func TestAggregateFallsBackToCreatedAt(t *testing.T) {
	created := fixedNow.Add(-days(10))
	event := models.BehaviorEvent{ID: "e1", StudentID: "s-1", Category: models.CategoryTardiness, CreatedAt: &created}

	result := Aggregate([]models.BehaviorEvent{event}, fixedNow)

	require.Len(t, result.Previous, 1)
	assert.Empty(t, result.Recent)
}

func TestAggregateUnknownCategoryIsNeutral(t *testing.T) {
	events := []models.BehaviorEvent{
		behaviorEvent("e1", "s-1", "Juggling", days(1)),
		behaviorEvent("e2", "s-1", "", days(1)),
	}

	snap := Aggregate(events, fixedNow).Snapshot

	assert.Equal(t, 2, snap.Neutral)
	assert.Equal(t, 1, snap.ByCategory["Juggling"])
	assert.Equal(t, 1, snap.ByCategory[models.UnknownLabel])
}
