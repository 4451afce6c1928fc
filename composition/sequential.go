package composition

import (
	"context"
	"errors"
	"fmt"

	"github.com/maestrohq/maestro/core"
)

// SequentialStep names one pipeline stage and optionally overrides the
// instrument's tuning for this stage only.
type SequentialStep struct {
	Instrument string
	Config     *core.StepConfig
}

// Sequential executes instruments one after another, feeding each step the
// serialized result of the previous one. Step N's output is visible as step
// N+1's input (strict happens-before); the first step sees the composition's
// original input results, if any.
//
// A step whose outcome is Inconclusive terminates the pipeline early: later
// steps do not run and the pipeline returns that step's result (with
// iterations and sources accumulated over the steps that did run).
type Sequential struct {
	name  string
	steps []SequentialStep
}

// NewSequential constructs a sequential pipeline. At least one step is
// required.
func NewSequential(name string, steps ...SequentialStep) (*Sequential, error) {
	if len(steps) == 0 {
		return nil, errors.New("sequential composition requires at least one step")
	}
	return &Sequential{name: name, steps: steps}, nil
}

// Name returns the composition's name.
func (s *Sequential) Name() string { return s.name }

// Execute implements core.Composition. A step error propagates to the caller;
// there is no automatic retry at this layer.
func (s *Sequential) Execute(ctx context.Context, query string, taskCtx *core.TaskContext, lookup core.InstrumentLookup) (*core.InstrumentResult, error) {
	inputs := taskCtx.Clone().InputResults

	var last *core.InstrumentResult
	totalIterations := 0
	var sources []string

	for i, step := range s.steps {
		inst, err := lookup(step.Instrument)
		if err != nil {
			return nil, err
		}
		if step.Config != nil {
			if configurable, ok := inst.(core.ConfigurableInstrument); ok {
				// Per-step overrides apply to an independent instrument
				// copy; the shared instance is never mutated.
				inst = configurable.Configured(*step.Config)
			}
		}

		stepCtx := taskCtx.Clone()
		stepCtx.InputResults = inputs

		result, err := inst.Execute(ctx, query, stepCtx)
		if err != nil {
			return nil, fmt.Errorf("sequential step %d (%s): %w", i+1, step.Instrument, err)
		}

		totalIterations += result.Iterations
		sources = append(sources, result.SourcesConsulted...)
		last = result

		if result.Outcome == core.OutcomeInconclusive {
			break
		}

		serialized, err := result.Serialize()
		if err != nil {
			return nil, fmt.Errorf("sequential step %d (%s): serialize result: %w", i+1, step.Instrument, err)
		}
		inputs = []string{serialized}
	}

	// Confidence, summary, discrepancy and followups come from the last step
	// actually executed; iterations and sources aggregate across all of them.
	final := *last
	final.Iterations = totalIterations
	final.SourcesConsulted = core.NormalizeSources(sources)
	return &final, nil
}
