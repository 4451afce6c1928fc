package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/termination"
)

// DefaultMaxIterations bounds an iterative run when no override is given.
const DefaultMaxIterations = 5

// RoundOutput is what one loop round produces: the findings discovered this
// round and, optionally, a candidate answer.
type RoundOutput struct {
	Findings []core.Finding
	// Answer is the current best answer; empty while the loop has none yet.
	Answer string
}

// RoundFunc performs one round of an iterative loop. It receives the round
// number (1-based) and the findings accumulated so far; the slice is
// read-only.
type RoundFunc func(ctx context.Context, query string, taskCtx *core.TaskContext, round int, accumulated []core.Finding) (*RoundOutput, error)

// IterativeInstrument runs a round function repeatedly until the termination
// evaluator decides the loop converged, saturated, stalled or hit its bound.
// The working set (findings, confidence history, iteration counter, previous
// finding count) is owned exclusively by the run, so a single instrument
// instance is safe to execute concurrently.
//
// After every round the instrument reports progress through the context's
// checkpoint callback; checkpoint failures are swallowed, never fatal.
type IterativeInstrument struct {
	BaseInstrument
	round         RoundFunc
	evaluator     *termination.Evaluator
	maxIterations int
}

// IterativeOption customizes an IterativeInstrument.
type IterativeOption func(*IterativeInstrument)

// WithMaxIterations sets the loop's iteration ceiling.
func WithMaxIterations(n int) IterativeOption {
	return func(l *IterativeInstrument) { l.maxIterations = n }
}

// WithEvaluator replaces the default termination evaluator.
func WithEvaluator(e *termination.Evaluator) IterativeOption {
	return func(l *IterativeInstrument) { l.evaluator = e }
}

// WithIterativeCapabilities sets the required capability metadata.
func WithIterativeCapabilities(required ...string) IterativeOption {
	return func(l *IterativeInstrument) { l.required = required }
}

// NewIterative constructs an iterative loop instrument around a round
// function. Defaults: DefaultMaxIterations rounds, default evaluator
// tunables.
func NewIterative(name string, round RoundFunc, opts ...IterativeOption) *IterativeInstrument {
	l := &IterativeInstrument{
		BaseInstrument: NewBaseInstrument(name, nil, nil),
		round:          round,
		evaluator:      termination.NewEvaluator(),
		maxIterations:  DefaultMaxIterations,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Configured implements core.ConfigurableInstrument: it returns an
// independent copy with the step overrides applied, leaving the receiver
// untouched.
func (l *IterativeInstrument) Configured(cfg core.StepConfig) core.Instrument {
	clone := *l
	evaluator := *l.evaluator
	clone.evaluator = &evaluator

	if cfg.MaxIterations != nil {
		clone.maxIterations = *cfg.MaxIterations
	}
	if cfg.ConfidenceThreshold != nil {
		clone.evaluator.ConfidenceThreshold = *cfg.ConfidenceThreshold
	}
	if cfg.ConfidenceDeltaThreshold != nil {
		clone.evaluator.ConfidenceDeltaThreshold = *cfg.ConfidenceDeltaThreshold
	}
	return &clone
}

// Execute implements core.Instrument, running rounds until termination.
func (l *IterativeInstrument) Execute(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
	var (
		findings          []core.Finding
		confidenceHistory []float64
		answer            string
	)

	for iteration := 1; ; iteration++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := time.Now()
		previousCount := len(findings)

		out, err := l.round(ctx, query, taskCtx, iteration, findings)
		if err != nil {
			return nil, fmt.Errorf("iteration %d of %s: %w", iteration, l.Name(), err)
		}
		findings = append(findings, out.Findings...)
		if out.Answer != "" {
			answer = out.Answer
		}

		confidence := l.evaluator.CalculateConfidence(findings, distinctSourceCount(findings), answer != "")
		confidenceHistory = append(confidenceHistory, confidence)

		taskCtx.EmitCheckpoint(iteration, "round", query,
			fmt.Sprintf("%d findings, confidence %.2f", len(findings), confidence), time.Since(start))

		decision := l.evaluator.Evaluate(findings, iteration, l.maxIterations, confidenceHistory, previousCount)
		if !decision.ShouldTerminate {
			continue
		}

		result := &core.InstrumentResult{
			Outcome:          decision.Outcome,
			Findings:         findings,
			Summary:          answer,
			Confidence:       confidence,
			Iterations:       iteration,
			SourcesConsulted: sourcesOf(findings),
		}
		if result.Summary == "" {
			result.Summary = decision.Reason
		}
		if decision.Outcome == core.OutcomeInconclusive {
			result.Discrepancy = decision.Reason
		}
		return result, nil
	}
}

func distinctSourceCount(findings []core.Finding) int {
	seen := map[string]struct{}{}
	for _, f := range findings {
		if f.Source != "" {
			seen[f.Source] = struct{}{}
		}
	}
	return len(seen)
}

func sourcesOf(findings []core.Finding) []string {
	sources := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Source != "" {
			sources = append(sources, f.Source)
		}
	}
	return core.NormalizeSources(sources)
}
