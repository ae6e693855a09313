package service

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

// Id prefixes for artifacts the store has not issued an id for.
const (
	CandidateIDPrefix = "cand-"
	SurrogateIDPrefix = "local-"
)

// AssemblyContext carries the run-level facts stamped onto every artifact.
type AssemblyContext struct {
	Snapshot      models.StatSnapshot
	RecentCount   int
	PreviousCount int
	StudentCount  int
}

// Assembler turns detector candidates into artifacts.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// NewAssembler builds an assembler using the wall clock and random ids.
func NewAssembler() *Assembler {
	return &Assembler{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Assemble converts candidates in order. Candidates without actions or
// supporting events never become artifacts.
func (a *Assembler) Assemble(candidates []Candidate, actx AssemblyContext) []models.Insight {
	generatedAt := a.now()
	snapshot := models.DataSnapshot{
		StudentCount:  actx.StudentCount,
		EventCount:    actx.Snapshot.Total,
		RecentCount:   actx.RecentCount,
		PreviousCount: actx.PreviousCount,
		RangeStart:    actx.Snapshot.RangeStart,
		RangeEnd:      actx.Snapshot.RangeEnd,
	}
	if snapshot.StudentCount == 0 {
		snapshot.StudentCount = len(actx.Snapshot.ByStudent)
	}

	insights := make([]models.Insight, 0, len(candidates))
	for _, candidate := range candidates {
		actions := cleanActions(candidate.Actions)
		if candidate.Support <= 0 || len(actions) == 0 {
			continue
		}
		insights = append(insights, models.Insight{
			ID:          CandidateIDPrefix + a.newID(),
			Kind:        candidate.Kind,
			Signal:      candidate.Signal,
			Title:       candidate.Title,
			Description: candidate.Description,
			Priority:    candidate.Priority,
			Category:    candidate.Category,
			Confidence:  clampConfidence(candidate.Confidence),
			Actions:     actions,
			DataPoints:  candidate.DataPoints,
			Snapshot:    snapshot,
			StudentIDs:  candidate.StudentIDs,
			GeneratedAt: generatedAt,
			Active:      true,
		})
	}
	return insights
}

func clampConfidence(value float64) int {
	if math.IsNaN(value) {
		return 0
	}
	return int(math.Round(clampFloat(value, 0, 100)))
}

func cleanActions(actions []string) []string {
	cleaned := make([]string, 0, len(actions))
	for _, action := range actions {
		if trimmed := strings.TrimSpace(action); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
		if len(cleaned) == maxActionsPerInsight {
			break
		}
	}
	return cleaned
}

// IsPersistedID reports whether id was issued by the artifact store.
func IsPersistedID(id string) bool {
	return id != "" && !strings.HasPrefix(id, CandidateIDPrefix) && !strings.HasPrefix(id, SurrogateIDPrefix)
}
