package termination

import (
	"testing"

	"github.com/maestrohq/maestro/core"
	"github.com/stretchr/testify/assert"
)

func findingsWithConfidence(n int, confidence float64) []core.Finding {
	out := make([]core.Finding, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.NewFinding("fact", "web", confidence))
	}
	return out
}

func TestEvaluate_BoundsAlwaysWins(t *testing.T) {
	e := NewEvaluator()

	// Even a perfectly converged high-confidence history yields Bounded when
	// the iteration ceiling is hit; bounds is checked first.
	d := e.Evaluate(findingsWithConfidence(3, 0.9), 5, 5, []float64{0.85, 0.86}, 1)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, core.OutcomeBounded, d.Outcome)

	d = e.Evaluate(nil, 7, 5, nil, 0)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, core.OutcomeBounded, d.Outcome)
}

func TestEvaluate_ConvergenceComplete(t *testing.T) {
	e := NewEvaluator()

	d := e.Evaluate(findingsWithConfidence(4, 0.9), 2, 5, []float64{0.85, 0.86}, 1)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, core.OutcomeComplete, d.Outcome)
	assert.Contains(t, d.Reason, "converged")
}

func TestEvaluate_SingleLowStallContinues(t *testing.T) {
	e := NewEvaluator()

	// Delta below threshold but confidence low and only one stall: the
	// saturation rule still applies, so grow the finding count to continue.
	d := e.Evaluate(findingsWithConfidence(4, 0.5), 2, 5, []float64{0.3, 0.5, 0.52}, 2)
	assert.False(t, d.ShouldTerminate)
}

func TestEvaluate_TwoConsecutiveStallsInconclusive(t *testing.T) {
	e := NewEvaluator()

	d := e.Evaluate(findingsWithConfidence(5, 0.5), 3, 10, []float64{0.50, 0.52, 0.53}, 2)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, core.OutcomeInconclusive, d.Outcome)
	assert.Contains(t, d.Reason, "stalled")
}

func TestEvaluate_Saturation(t *testing.T) {
	e := NewEvaluator()

	// Finding count did not grow versus the previous round.
	d := e.Evaluate(findingsWithConfidence(3, 0.5), 2, 10, []float64{0.4}, 3)
	assert.True(t, d.ShouldTerminate)
	assert.Equal(t, core.OutcomeSaturated, d.Outcome)

	// First iteration never saturates.
	d = e.Evaluate(findingsWithConfidence(3, 0.5), 1, 10, []float64{0.4}, 3)
	assert.False(t, d.ShouldTerminate)
}

func TestEvaluate_Continue(t *testing.T) {
	e := NewEvaluator()

	d := e.Evaluate(findingsWithConfidence(4, 0.5), 2, 10, []float64{0.3, 0.6}, 2)
	assert.False(t, d.ShouldTerminate)
	assert.Equal(t, core.Outcome(""), d.Outcome)
}

func TestCalculateConfidence_EmptyShortCircuit(t *testing.T) {
	e := NewEvaluator()
	assert.Equal(t, 0.0, e.CalculateConfidence(nil, 0, false))
	assert.Equal(t, 0.0, e.CalculateConfidence([]core.Finding{}, 5, true))
}

func TestCalculateConfidence_Saturates(t *testing.T) {
	e := NewEvaluator()

	// base 0.3 + volume 0.2 (5*0.05 capped) + diversity 0.2 (5*0.04) +
	// answer 0.2 + avg confidence 1.0*0.1 = 1.0
	got := e.CalculateConfidence(findingsWithConfidence(5, 1.0), 5, true)
	assert.InDelta(t, 1.0, got, 1e-9)

	// Oversized inputs stay capped.
	got = e.CalculateConfidence(findingsWithConfidence(50, 1.0), 50, true)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCalculateConfidence_Weighted(t *testing.T) {
	e := NewEvaluator()

	// base 0.3 + volume 2*0.05 + diversity 1*0.04 + no answer + avg 0.5*0.1
	got := e.CalculateConfidence(findingsWithConfidence(2, 0.5), 1, false)
	assert.InDelta(t, 0.3+0.1+0.04+0.05, got, 1e-9)
}
