package composition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maestrohq/maestro/core"
)

// Parallel launches every branch instrument concurrently against an identical
// cloned context and merges the successful results through a dedicated merge
// instrument. Branches provide no ordering between each other, but the merge
// step's inputs follow branch declaration order with failed branches simply
// omitted.
type Parallel struct {
	name          string
	branches      []string
	merge         string
	branchTimeout time.Duration
}

// ParallelOptions configures optional fan-out behavior.
type ParallelOptions struct {
	// BranchTimeout bounds each branch individually. Zero means unbounded.
	// A timed-out branch counts as failed without affecting its siblings.
	BranchTimeout time.Duration
}

// NewParallel constructs a parallel fan-out/fan-in over the named branch
// instruments. At least one branch and a merge instrument are required.
func NewParallel(name string, branches []string, merge string, optFns ...func(o *ParallelOptions)) (*Parallel, error) {
	if len(branches) == 0 {
		return nil, errors.New("parallel composition requires at least one branch")
	}
	if merge == "" {
		return nil, errors.New("parallel composition requires a merge instrument")
	}
	opts := ParallelOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Parallel{name: name, branches: branches, merge: merge, branchTimeout: opts.BranchTimeout}, nil
}

// Name returns the composition's name.
func (p *Parallel) Name() string { return p.name }

// Execute implements core.Composition. All branch and merge instrument names
// are validated before any branch launches; an unknown branch name yields
// UnknownInstrumentError, an unknown merge name UnknownMergeInstrumentError.
func (p *Parallel) Execute(ctx context.Context, query string, taskCtx *core.TaskContext, lookup core.InstrumentLookup) (*core.InstrumentResult, error) {
	instruments := make([]core.Instrument, len(p.branches))
	for i, name := range p.branches {
		inst, err := lookup(name)
		if err != nil {
			return nil, err
		}
		instruments[i] = inst
	}
	mergeInst, err := lookup(p.merge)
	if err != nil {
		return nil, &core.UnknownMergeInstrumentError{Name: p.merge}
	}

	outcomes := p.runBranches(ctx, query, taskCtx, instruments)

	successes, failures := partitionBranches(outcomes)
	if len(successes) == 0 {
		return allBranchesFailedResult(len(p.branches), failures), nil
	}

	merged, err := p.runMerge(ctx, query, taskCtx, mergeInst, successes)
	if err != nil {
		return nil, fmt.Errorf("parallel merge (%s): %w", p.merge, err)
	}

	// Iterations and sources aggregate across all successful branches plus
	// the merge step; everything else comes from the merge step.
	final := *merged
	var sources []string
	for _, s := range successes {
		final.Iterations += s.result.Iterations
		sources = append(sources, s.result.SourcesConsulted...)
	}
	sources = append(sources, merged.SourcesConsulted...)
	final.SourcesConsulted = core.NormalizeSources(sources)
	final.Discrepancy = combineDiscrepancy(failures, merged.Discrepancy)
	return &final, nil
}

// runBranches executes every branch concurrently and joins all of them.
// Outcomes keep branch declaration order.
func (p *Parallel) runBranches(ctx context.Context, query string, taskCtx *core.TaskContext, instruments []core.Instrument) []branchOutcome {
	outcomes := make([]branchOutcome, len(instruments))

	var wg sync.WaitGroup
	for i, inst := range instruments {
		wg.Add(1)
		go func(i int, inst core.Instrument) {
			defer wg.Done()

			branchCtx := ctx
			if p.branchTimeout > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(ctx, p.branchTimeout)
				defer cancel()
			}

			// Each branch gets an isolated clone with no chained inputs.
			cloned := taskCtx.Clone()
			cloned.InputResults = nil

			result, err := inst.Execute(branchCtx, query, cloned)
			outcomes[i] = branchOutcome{name: inst.Name(), result: result, err: err}
		}(i, inst)
	}
	wg.Wait()

	return outcomes
}

// runMerge feeds the serialized successful branch results to the merge
// instrument, in branch declaration order.
func (p *Parallel) runMerge(ctx context.Context, query string, taskCtx *core.TaskContext, mergeInst core.Instrument, successes []branchOutcome) (*core.InstrumentResult, error) {
	inputs := make([]string, 0, len(successes))
	for _, s := range successes {
		serialized, err := s.result.Serialize()
		if err != nil {
			return nil, fmt.Errorf("serialize branch %s result: %w", s.name, err)
		}
		inputs = append(inputs, serialized)
	}

	mergeCtx := taskCtx.Clone()
	mergeCtx.InputResults = inputs
	return mergeInst.Execute(ctx, query, mergeCtx)
}
