// Package termination decides when a multi-round processing loop has
// converged, saturated, or must stop. The Evaluator is a pure function over
// accumulated loop state; it holds two tunables and no mutable state, so a
// single instance is safe to share across concurrent loop executions.
package termination

import (
	"fmt"

	"github.com/maestrohq/maestro/core"
)

// Default tunables. A confidence at or above DefaultConfidenceThreshold is
// treated as a confident answer; a round-over-round delta below
// DefaultConfidenceDeltaThreshold is treated as a stall.
const (
	DefaultConfidenceThreshold      = 0.8
	DefaultConfidenceDeltaThreshold = 0.05
)

// Decision is the evaluator's verdict for one completed round.
type Decision struct {
	ShouldTerminate bool
	// Outcome is only meaningful when ShouldTerminate is true.
	Outcome core.Outcome
	Reason  string
}

// Evaluator holds the loop-termination tunables.
type Evaluator struct {
	ConfidenceThreshold      float64
	ConfidenceDeltaThreshold float64
}

// NewEvaluator constructs an Evaluator with the default tunables.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		ConfidenceThreshold:      DefaultConfidenceThreshold,
		ConfidenceDeltaThreshold: DefaultConfidenceDeltaThreshold,
	}
}

// Evaluate decides whether the loop that just completed round `iteration`
// should stop. Checks run in strict order, first match wins:
//
//  1. Bounds: the iteration ceiling was reached.
//  2. Convergence: the confidence trajectory flattened — complete if it
//     flattened high, stalled (inconclusive) if it flattened low twice in a
//     row.
//  3. Saturation: the round produced no new findings.
//
// confidenceHistory carries one entry per completed round, oldest first.
// previousFindingCount is the finding count before the most recent round.
func (e *Evaluator) Evaluate(findings []core.Finding, iteration, maxIterations int, confidenceHistory []float64, previousFindingCount int) Decision {
	if iteration >= maxIterations {
		return Decision{
			ShouldTerminate: true,
			Outcome:         core.OutcomeBounded,
			Reason:          fmt.Sprintf("reached iteration limit (%d)", maxIterations),
		}
	}

	if n := len(confidenceHistory); n >= 2 {
		delta := abs(confidenceHistory[n-1] - confidenceHistory[n-2])
		if delta < e.ConfidenceDeltaThreshold {
			if confidenceHistory[n-1] >= e.ConfidenceThreshold {
				return Decision{
					ShouldTerminate: true,
					Outcome:         core.OutcomeComplete,
					Reason:          fmt.Sprintf("confidence converged at %.2f", confidenceHistory[n-1]),
				}
			}
			// A single low-confidence stall is not conclusive; two
			// consecutive stalls are.
			if n >= 3 && abs(confidenceHistory[n-2]-confidenceHistory[n-3]) < e.ConfidenceDeltaThreshold {
				return Decision{
					ShouldTerminate: true,
					Outcome:         core.OutcomeInconclusive,
					Reason:          "confidence stalled below threshold",
				}
			}
		}
	}

	if iteration > 1 && len(findings) <= previousFindingCount {
		return Decision{
			ShouldTerminate: true,
			Outcome:         core.OutcomeSaturated,
			Reason:          "no new findings in last iteration",
		}
	}

	return Decision{Reason: "continuing"}
}

// CalculateConfidence scores accumulated findings on a [0,1] scale. It is the
// sole numeric model driving loop termination:
//
//	base 0.3
//	+ up to 0.2 for finding volume   (count * 0.05)
//	+ up to 0.2 for source diversity (distinct sources * 0.04)
//	+ 0.2 when a candidate answer exists
//	+ average finding confidence * 0.1
//
// capped at 1.0. No findings short-circuits to 0.0.
func (e *Evaluator) CalculateConfidence(findings []core.Finding, distinctSourceCount int, hasAnswer bool) float64 {
	if len(findings) == 0 {
		return 0.0
	}

	confidence := 0.3

	volume := float64(len(findings)) * 0.05
	if volume > 0.2 {
		volume = 0.2
	}
	confidence += volume

	diversity := float64(distinctSourceCount) * 0.04
	if diversity > 0.2 {
		diversity = 0.2
	}
	confidence += diversity

	if hasAnswer {
		confidence += 0.2
	}

	var sum float64
	for _, f := range findings {
		sum += f.Confidence
	}
	confidence += sum / float64(len(findings)) * 0.1

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
