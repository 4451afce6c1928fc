package core

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a unit of work finished. Every instrument and
// composition execution yields exactly one of the four values.
type Outcome string

const (
	// OutcomeComplete indicates the work converged on a confident answer.
	OutcomeComplete Outcome = "complete"
	// OutcomeSaturated indicates further rounds stopped producing new findings.
	OutcomeSaturated Outcome = "saturated"
	// OutcomeBounded indicates the iteration ceiling was reached first.
	OutcomeBounded Outcome = "bounded"
	// OutcomeInconclusive indicates the work could not settle on an answer,
	// stalled, or failed in a recoverable way (see InstrumentResult.Discrepancy).
	OutcomeInconclusive Outcome = "inconclusive"
)

// Finding is one atomic piece of evidence produced during execution. Findings
// carry their own confidence and source so downstream merge steps can weigh
// and attribute them independently.
type Finding struct {
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFinding constructs a Finding stamped with the current UTC time.
func NewFinding(content, source string, confidence float64) Finding {
	return Finding{
		Content:    content,
		Source:     source,
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
	}
}

// InstrumentResult is the value returned by any instrument or composition.
// Results are produced fresh by each execution and never mutated afterwards;
// compositions build new results by aggregating child results.
type InstrumentResult struct {
	Outcome            Outcome   `json:"outcome"`
	Findings           []Finding `json:"findings,omitempty"`
	Summary            string    `json:"summary"`
	Confidence         float64   `json:"confidence"`
	Iterations         int       `json:"iterations"`
	SourcesConsulted   []string  `json:"sources_consulted,omitempty"`
	Discrepancy        string    `json:"discrepancy,omitempty"`
	SuggestedFollowups []string  `json:"suggested_followups,omitempty"`
}

// Serialize renders the result as JSON for use as a downstream stage's input.
// Sequential steps and merge instruments consume prior-stage results in this
// form through TaskContext.InputResults.
func (r *InstrumentResult) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NormalizeSources deduplicates and sorts a source set for output. The
// returned slice is always freshly allocated; nil input yields nil.
func NormalizeSources(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NewID generates a new unique identifier for requests and findings.
func NewID() string { return uuid.NewString() }
