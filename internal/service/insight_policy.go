package service

import "time"

// Windows used for trend comparisons.
const (
	recentWindow   = 7 * 24 * time.Hour
	previousWindow = 14 * 24 * time.Hour
)

// Risk scoring policy. The weights per category live in the shared category
// table in models; these are the thresholds applied on top of them.
const (
	recencyBonusWindow     = 3 * 24 * time.Hour
	recencyBonus           = 2
	freshRecencyWindow     = 24 * time.Hour
	freshRecencyBonus      = 3
	riskHighThreshold      = 60.0
	riskMediumThreshold    = 30.0
	riskConcentrationScore = 5
)

// Detector policy.
const (
	frequencyTopN           = 3
	frequencyHighShare      = 30.0
	frequencyConfidenceBase = 50.0
	frequencyConfidenceCap  = 90.0

	repeatIncidentThreshold  = 2
	repeatConfidenceBase     = 50.0
	repeatConfidencePerEvent = 10.0
	repeatConfidenceCap      = 90.0

	contextChallengeConfidence = 70.0
	temporalClusterConfidence  = 65.0
	severityAlertConfidence    = 90.0

	positiveConfidenceBase = 50.0
	positiveConfidenceCap  = 95.0

	escalationHighIncrease    = 50.0
	escalationConfidenceBase  = 60.0
	escalationConfidenceSlope = 0.5
	escalationConfidenceCap   = 85.0

	riskConcentrationConfidence = 80.0
	immediateResponseConfidence = 95.0

	maxActionsPerInsight = 5
)
