package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

// DetectorInput is everything a detector may look at. Detectors must treat it
// as read-only.
type DetectorInput struct {
	Snapshot models.StatSnapshot
	Recent   []models.BehaviorEvent
	Previous []models.BehaviorEvent
	Students []models.Student
	Risk     models.RiskSummary
}

// Candidate is a detector's raw proposal before assembly.
type Candidate struct {
	Kind        models.InsightKind
	Signal      models.SignalKind
	Title       string
	Description string
	Priority    models.Priority
	Category    string
	Confidence  float64
	Actions     []string
	DataPoints  []models.DataPoint
	StudentIDs  []string
	// Support is the number of events backing the candidate.
	Support int
}

// Detector is a pure rule that proposes at most one candidate.
type Detector struct {
	Signal models.SignalKind
	Detect func(DetectorInput) *Candidate
}

// DetectorFailure reports a detector that panicked during a run.
type DetectorFailure struct {
	Signal models.SignalKind
	Reason string
}

func (f DetectorFailure) Error() string {
	return fmt.Sprintf("detector %s failed: %s", f.Signal, f.Reason)
}

// DefaultDetectors returns the batch detectors in presentation order.
func DefaultDetectors() []Detector {
	return []Detector{
		{Signal: models.SignalFrequency, Detect: detectFrequencyPattern},
		{Signal: models.SignalRepeatIncidents, Detect: detectRepeatIncidents},
		{Signal: models.SignalContextChallenge, Detect: detectContextChallenge},
		{Signal: models.SignalTemporalCluster, Detect: detectTemporalCluster},
		{Signal: models.SignalSeverityAlert, Detect: detectSeverityAlert},
		{Signal: models.SignalPositiveTrend, Detect: detectPositiveReinforcement},
		{Signal: models.SignalEscalation, Detect: detectEscalation},
		{Signal: models.SignalRiskConcentration, Detect: detectRiskConcentration},
	}
}

// RunDetectors evaluates every detector independently. A detector that panics
// is reported as a failure and yields nothing; the others still run.
// Candidates without supporting events or actions are discarded.
func RunDetectors(detectors []Detector, in DetectorInput) ([]Candidate, []DetectorFailure) {
	candidates := make([]Candidate, 0, len(detectors))
	var failures []DetectorFailure
	for _, detector := range detectors {
		candidate, failure := runDetector(detector, in)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		if candidate == nil || candidate.Support <= 0 || len(candidate.Actions) == 0 {
			continue
		}
		candidates = append(candidates, *candidate)
	}
	return candidates, failures
}

func runDetector(detector Detector, in DetectorInput) (candidate *Candidate, failure *DetectorFailure) {
	defer func() {
		if r := recover(); r != nil {
			candidate = nil
			failure = &DetectorFailure{Signal: detector.Signal, Reason: fmt.Sprint(r)}
		}
	}()
	if detector.Detect == nil {
		return nil, nil
	}
	return detector.Detect(in), nil
}

// DetectImmediateResponse is the single-event detector: a critical category
// demands a same-day response regardless of history.
func DetectImmediateResponse(event models.BehaviorEvent, studentName string) *Candidate {
	if !event.Category.IsCritical() {
		return nil
	}
	name := labelOr(studentName, labelOr(event.StudentName, "the student"))
	category := string(event.Category.Normalize())
	lower := strings.ToLower(category)
	subject := labelOr(event.Subject, models.NoSubjectLabel)

	candidate := &Candidate{
		Kind:        models.KindSuggestion,
		Signal:      models.SignalImmediateResponse,
		Title:       fmt.Sprintf("Immediate response needed: %s", category),
		Description: fmt.Sprintf("%s was logged for %s during %s. Incidents in this category need follow-up today.", category, name, subject),
		Priority:    models.PriorityCritical,
		Category:    "intervention",
		Confidence:  immediateResponseConfidence,
		Actions: []string{
			"Make sure everyone involved is safe and separate the students if needed",
			fmt.Sprintf("Notify an administrator about the %s incident before the end of the day", lower),
			fmt.Sprintf("Contact %s's family today to explain what happened", name),
			"Write down what happened, who was present and the follow-up given",
		},
		DataPoints: []models.DataPoint{
			{Label: "risk_weight", Value: float64(event.Category.RiskWeight()), Unit: "points"},
		},
		Support: 1,
	}
	if event.StudentID != "" {
		candidate.StudentIDs = []string{event.StudentID}
	}
	if event.Severity != "" {
		candidate.Description += fmt.Sprintf(" Reported severity: %s.", event.Severity)
	}
	return candidate
}

func detectFrequencyPattern(in DetectorInput) *Candidate {
	snap := in.Snapshot
	if snap.Empty() {
		return nil
	}
	top := topCounts(categoryCounts(snap.ByCategory), frequencyTopN)
	if len(top) == 0 || top[0].count == 0 {
		return nil
	}
	leader := top[0]
	share := safePercent(float64(leader.count), float64(snap.Total))
	priority := models.PriorityMedium
	if share >= frequencyHighShare {
		priority = models.PriorityHigh
	}

	points := make([]models.DataPoint, 0, len(top)*2)
	others := make([]string, 0, len(top)-1)
	for i, entry := range top {
		points = append(points,
			models.DataPoint{Label: entry.label + "_count", Value: float64(entry.count), Unit: "events"},
			models.DataPoint{Label: entry.label + "_share", Value: roundTo(safePercent(float64(entry.count), float64(snap.Total)), 1), Unit: "%"},
		)
		if i > 0 {
			others = append(others, fmt.Sprintf("%s (%d)", entry.label, entry.count))
		}
	}

	description := fmt.Sprintf("%s accounts for %.0f%% of %d logged events.", leader.label, share, snap.Total)
	if len(others) > 0 {
		description += " Next most common: " + strings.Join(others, ", ") + "."
	}

	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalFrequency,
		Title:       fmt.Sprintf("Most frequent behavior: %s", leader.label),
		Description: description,
		Priority:    priority,
		Category:    "behavior_pattern",
		Confidence:  math.Min(frequencyConfidenceCap, frequencyConfidenceBase+share),
		Actions:     frequencyActions(models.BehaviorCategory(leader.label)),
		DataPoints:  points,
		Support:     leader.count,
	}
}

func frequencyActions(category models.BehaviorCategory) []string {
	label := strings.ToLower(string(category))
	switch category.Polarity() {
	case models.PolarityNegative:
		return []string{
			fmt.Sprintf("Note what happens right before each %s incident for the next two weeks", label),
			fmt.Sprintf("State the expectation that replaces %s at the start of each lesson", label),
			fmt.Sprintf("Agree on one consistent response to %s with everyone who teaches this class", label),
		}
	case models.PolarityPositive:
		return []string{
			fmt.Sprintf("Name %s specifically when giving praise so students know what to repeat", label),
			fmt.Sprintf("Share the routines that produce %s with colleagues", label),
		}
	default:
		return []string{
			fmt.Sprintf("Add detail to %s entries so patterns become visible", label),
			fmt.Sprintf("Check whether %s entries belong under a more specific category", label),
		}
	}
}

func detectRepeatIncidents(in DetectorInput) *Candidate {
	names := rosterNames(in)
	var repeated []countEntry
	for _, entry := range topCounts(mapCounts(in.Snapshot.ByStudent), 0) {
		// events without a student id share one bucket
		if entry.label == models.UnknownLabel {
			continue
		}
		if entry.count > repeatIncidentThreshold {
			repeated = append(repeated, entry)
		}
	}
	if len(repeated) == 0 {
		return nil
	}
	first := repeated[0]
	firstName := displayName(names, first.label)

	ids := make([]string, 0, len(repeated))
	listed := make([]string, 0, len(repeated))
	points := make([]models.DataPoint, 0, len(repeated))
	support := 0
	for _, entry := range repeated {
		ids = append(ids, entry.label)
		name := displayName(names, entry.label)
		listed = append(listed, fmt.Sprintf("%s (%d)", name, entry.count))
		points = append(points, models.DataPoint{Label: name, Value: float64(entry.count), Unit: "events"})
		support += entry.count
	}

	title := fmt.Sprintf("Repeated incidents: %s", firstName)
	if len(repeated) > 1 {
		title = fmt.Sprintf("Repeated incidents: %s and %d more", firstName, len(repeated)-1)
	}
	actions := []string{
		fmt.Sprintf("Schedule a one-on-one check-in with %s this week", firstName),
		fmt.Sprintf("Contact %s's family to share the pattern and agree on a plan", firstName),
		fmt.Sprintf("Set one daily behavior goal with %s and review it at the end of each day", firstName),
	}
	if len(repeated) > 1 {
		actions = append(actions, "Bring the students listed here to the next student support team meeting")
	}

	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalRepeatIncidents,
		Title:       title,
		Description: fmt.Sprintf("%d students have more than %d logged events: %s.", len(repeated), repeatIncidentThreshold, strings.Join(listed, ", ")),
		Priority:    models.PriorityHigh,
		Category:    "student_support",
		Confidence:  math.Min(repeatConfidenceCap, repeatConfidenceBase+repeatConfidencePerEvent*float64(first.count)),
		Actions:     actions,
		DataPoints:  points,
		StudentIDs:  ids,
		Support:     support,
	}
}

func detectContextChallenge(in DetectorInput) *Candidate {
	subjects := make([]string, 0, len(in.Snapshot.BySubject))
	for subject, balance := range in.Snapshot.BySubject {
		if balance.Negative > balance.Positive {
			subjects = append(subjects, subject)
		}
	}
	if len(subjects) == 0 {
		return nil
	}
	sort.Slice(subjects, func(i, j int) bool {
		a, b := in.Snapshot.BySubject[subjects[i]], in.Snapshot.BySubject[subjects[j]]
		gapA, gapB := a.Negative-a.Positive, b.Negative-b.Positive
		if gapA != gapB {
			return gapA > gapB
		}
		return subjects[i] < subjects[j]
	})
	worst := subjects[0]
	balance := in.Snapshot.BySubject[worst]

	description := fmt.Sprintf("%s has %d negative and %d positive events.", worst, balance.Negative, balance.Positive)
	if len(subjects) > 1 {
		description += fmt.Sprintf(" %d other contexts also lean negative: %s.", len(subjects)-1, strings.Join(subjects[1:], ", "))
	}

	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalContextChallenge,
		Title:       fmt.Sprintf("Challenging context: %s", worst),
		Description: description,
		Priority:    models.PriorityMedium,
		Category:    "classroom_context",
		Confidence:  contextChallengeConfidence,
		Actions: []string{
			fmt.Sprintf("Review the seating plan used during %s", worst),
			fmt.Sprintf("Split %s work into shorter tasks with a movement break between them", worst),
			fmt.Sprintf("Restate %s expectations at the start of the lesson and again halfway through", worst),
		},
		DataPoints: []models.DataPoint{
			{Label: "negative_events", Value: float64(balance.Negative), Unit: "events"},
			{Label: "positive_events", Value: float64(balance.Positive), Unit: "events"},
			{Label: "negative_share", Value: roundTo(safePercent(float64(balance.Negative), float64(balance.Total())), 1), Unit: "%"},
		},
		Support: balance.Negative,
	}
}

func detectTemporalCluster(in DetectorInput) *Candidate {
	buckets := make(map[string]int, len(in.Snapshot.ByTimeOfDay))
	for bucket, count := range in.Snapshot.ByTimeOfDay {
		if bucket == models.UnknownLabel {
			continue
		}
		buckets[bucket] = count
	}
	top := topCounts(mapCounts(buckets), 1)
	if len(top) == 0 || top[0].count == 0 {
		return nil
	}
	peak := top[0]
	share := safePercent(float64(peak.count), float64(in.Snapshot.Total))
	label := strings.ToLower(peak.label)

	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalTemporalCluster,
		Title:       fmt.Sprintf("Most events happen in the %s", label),
		Description: fmt.Sprintf("%d of %d events (%.0f%%) were logged in the %s.", peak.count, in.Snapshot.Total, share, label),
		Priority:    models.PriorityMedium,
		Category:    "timing",
		Confidence:  temporalClusterConfidence,
		Actions: []string{
			fmt.Sprintf("Plan a structured, low-transition activity for the %s block", label),
			fmt.Sprintf("Arrange an extra adult or check-in during the %s", label),
			fmt.Sprintf("Compare %s routines with the calmest part of the day", label),
		},
		DataPoints: []models.DataPoint{
			{Label: "events_in_window", Value: float64(peak.count), Unit: "events"},
			{Label: "share_of_total", Value: roundTo(share, 1), Unit: "%"},
		},
		Support: peak.count,
	}
}

func detectSeverityAlert(in DetectorInput) *Candidate {
	high := in.Snapshot.BySeverity[string(models.SeverityHigh)]
	if high <= 0 {
		return nil
	}
	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalSeverityAlert,
		Title:       fmt.Sprintf("%d high-severity incidents logged", high),
		Description: fmt.Sprintf("%d of %d events were marked high severity.", high, in.Snapshot.Total),
		Priority:    models.PriorityHigh,
		Category:    "safety",
		Confidence:  severityAlertConfidence,
		Actions: []string{
			"Debrief each high-severity incident with the students involved within 24 hours",
			"Share the list of high-severity incidents with the counselor or an administrator",
			"Record a follow-up step for every high-severity incident",
		},
		DataPoints: []models.DataPoint{
			{Label: "high_severity_events", Value: float64(high), Unit: "events"},
			{Label: "share_of_total", Value: roundTo(safePercent(float64(high), float64(in.Snapshot.Total)), 1), Unit: "%"},
		},
		Support: high,
	}
}

func detectPositiveReinforcement(in DetectorInput) *Candidate {
	positive := in.Snapshot.Positive
	if positive <= 0 {
		return nil
	}
	share := safePercent(float64(positive), float64(in.Snapshot.Total))
	positives := make(map[string]int)
	for category, count := range in.Snapshot.ByCategory {
		if category.IsPositive() {
			positives[string(category)] = count
		}
	}
	leader := strings.ToLower(topCounts(mapCounts(positives), 1)[0].label)

	return &Candidate{
		Kind:        models.KindInsight,
		Signal:      models.SignalPositiveTrend,
		Title:       fmt.Sprintf("%d positive behaviors to build on", positive),
		Description: fmt.Sprintf("%.0f%% of logged events are positive; %s is the most common.", share, leader),
		Priority:    models.PriorityLow,
		Category:    "recognition",
		Confidence:  math.Min(positiveConfidenceCap, positiveConfidenceBase+share/2),
		Actions: []string{
			fmt.Sprintf("Recognize %s publicly in class this week", leader),
			"Send a short positive note home for students with positive entries",
			fmt.Sprintf("Pair students who show %s with classmates who need a model", leader),
		},
		DataPoints: []models.DataPoint{
			{Label: "positive_events", Value: float64(positive), Unit: "events"},
			{Label: "positive_share", Value: roundTo(share, 1), Unit: "%"},
		},
		Support: positive,
	}
}

func detectEscalation(in DetectorInput) *Candidate {
	recent := countNegative(in.Recent)
	previous := countNegative(in.Previous)
	if recent <= previous {
		return nil
	}
	increase := safePercent(float64(recent-previous), float64(previous))
	priority := models.PriorityMedium
	level := models.RiskMedium
	if increase > escalationHighIncrease {
		priority = models.PriorityHigh
		level = models.RiskHigh
	}

	description := fmt.Sprintf("Negative events rose from %d in the previous 7 days to %d in the last 7 days", previous, recent)
	if previous > 0 {
		description += fmt.Sprintf(" (+%.0f%%).", increase)
	} else {
		description += "."
	}

	return &Candidate{
		Kind:        models.KindPrediction,
		Signal:      models.SignalEscalation,
		Title:       fmt.Sprintf("Negative behavior is trending up (%s risk)", level),
		Description: description,
		Priority:    priority,
		Category:    "trend",
		Confidence:  math.Min(escalationConfidenceCap, escalationConfidenceBase+escalationConfidenceSlope*increase),
		Actions: []string{
			"Hold a short class meeting to reset expectations this week",
			"Aim for four positive acknowledgements for every correction over the next week",
			"Identify which students account for the increase and plan individual check-ins",
			"Check whether recent schedule or seating changes line up with the increase",
		},
		DataPoints: []models.DataPoint{
			{Label: "recent_negative_events", Value: float64(recent), Unit: "events"},
			{Label: "previous_negative_events", Value: float64(previous), Unit: "events"},
			{Label: "increase", Value: roundTo(increase, 1), Unit: "%"},
		},
		Support: recent,
	}
}

func detectRiskConcentration(in DetectorInput) *Candidate {
	names := rosterNames(in)
	var flagged []models.RiskSnapshot
	for _, student := range in.Risk.Students {
		if student.Score >= riskConcentrationScore {
			flagged = append(flagged, student)
		}
	}
	if len(flagged) == 0 {
		return nil
	}

	ids := make([]string, 0, len(flagged))
	listed := make([]string, 0, len(flagged))
	points := make([]models.DataPoint, 0, len(flagged))
	support := 0
	for _, student := range flagged {
		name := displayName(names, student.StudentID)
		if name == student.StudentID && student.StudentName != models.UnknownLabel {
			name = student.StudentName
		}
		ids = append(ids, student.StudentID)
		listed = append(listed, fmt.Sprintf("%s (score %d)", name, student.Score))
		points = append(points, models.DataPoint{Label: name, Value: float64(student.Score), Unit: "points"})
		support += student.NegativeCount
	}
	lead := strings.SplitN(listed[0], " (", 2)[0]

	return &Candidate{
		Kind:        models.KindPrediction,
		Signal:      models.SignalRiskConcentration,
		Title:       fmt.Sprintf("%d students at elevated risk", len(flagged)),
		Description: fmt.Sprintf("Recent behavior puts these students at or above a risk score of %d: %s.", riskConcentrationScore, strings.Join(listed, ", ")),
		Priority:    models.PriorityHigh,
		Category:    "risk",
		Confidence:  riskConcentrationConfidence,
		Actions: []string{
			fmt.Sprintf("Draft a support plan for %s with one clear daily goal", lead),
			"Inform the student support team about the students listed here",
			"Greet and check in with these students at the start of each day this week",
		},
		DataPoints: points,
		StudentIDs: ids,
		Support:    support,
	}
}

type countEntry struct {
	label string
	count int
}

// topCounts orders entries by count descending then label ascending, keeping
// the first n (all when n <= 0).
func topCounts(entries []countEntry, n int) []countEntry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].label < entries[j].label
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func mapCounts(counts map[string]int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for label, count := range counts {
		entries = append(entries, countEntry{label: label, count: count})
	}
	return entries
}

func categoryCounts(counts map[models.BehaviorCategory]int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for category, count := range counts {
		entries = append(entries, countEntry{label: string(category), count: count})
	}
	return entries
}

func countNegative(events []models.BehaviorEvent) int {
	total := 0
	for _, event := range events {
		if event.Category.IsNegative() {
			total++
		}
	}
	return total
}

// rosterNames resolves display names, preferring the roster over names copied onto events.
func rosterNames(in DetectorInput) map[string]string {
	names := make(map[string]string, len(in.Snapshot.StudentNames)+len(in.Students))
	for id, name := range in.Snapshot.StudentNames {
		if name != models.UnknownLabel {
			names[id] = name
		}
	}
	for _, student := range in.Students {
		if strings.TrimSpace(student.FullName) != "" {
			names[student.ID] = student.FullName
		}
	}
	return names
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
