package composition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/instrument"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParallel_Validation(t *testing.T) {
	_, err := NewParallel("fanout", nil, "merge")
	assert.Error(t, err)

	_, err = NewParallel("fanout", []string{"a"}, "")
	assert.Error(t, err)
}

func TestParallel_MergesSuccessfulBranches(t *testing.T) {
	var mu sync.Mutex
	started := map[string]bool{}
	var mergeInputs []string

	mkBranch := func(name, source string, iterations int) *instrument.FuncInstrument {
		return instrument.NewFunc(name, func(_ context.Context, _ string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
			mu.Lock()
			started[name] = true
			mu.Unlock()
			// Branches never see chained inputs.
			assert.Empty(t, taskCtx.InputResults)
			return &core.InstrumentResult{
				Outcome:          core.OutcomeComplete,
				Summary:          "summary from " + name,
				Iterations:       iterations,
				SourcesConsulted: []string{source},
			}, nil
		})
	}
	merge := instrument.NewFunc("merge", func(_ context.Context, _ string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
		mergeInputs = taskCtx.InputResults
		return &core.InstrumentResult{
			Outcome:          core.OutcomeComplete,
			Summary:          "merged",
			Confidence:       0.9,
			Iterations:       1,
			SourcesConsulted: []string{"merge"},
		}, nil
	})

	p, err := NewParallel("fanout", []string{"a", "b"}, "merge")
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(mkBranch("a", "web", 2), mkBranch("b", "docs", 3), merge))
	require.NoError(t, err)

	assert.True(t, started["a"])
	assert.True(t, started["b"])

	// Merge inputs follow branch declaration order.
	require.Len(t, mergeInputs, 2)
	assert.Contains(t, mergeInputs[0], "summary from a")
	assert.Contains(t, mergeInputs[1], "summary from b")

	assert.Equal(t, "merged", res.Summary)
	assert.Equal(t, 6, res.Iterations) // 2 + 3 + merge's 1
	assert.Equal(t, []string{"docs", "merge", "web"}, res.SourcesConsulted)
	assert.Empty(t, res.Discrepancy)
}

func TestParallel_PartialFailure(t *testing.T) {
	ok := instrument.NewFunc("a", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "from a", Iterations: 1}, nil
	})
	failing := instrument.NewFunc("b", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return nil, errors.New("upstream unavailable")
	})
	var mergeInputs []string
	merge := instrument.NewFunc("merge", func(_ context.Context, _ string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
		mergeInputs = taskCtx.InputResults
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "merged", Iterations: 1}, nil
	})

	p, err := NewParallel("fanout", []string{"a", "b"}, "merge")
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(ok, failing, merge))
	require.NoError(t, err)

	// The merge still ran, fed only A's serialized result; the failure is
	// recorded in the discrepancy.
	require.Len(t, mergeInputs, 1)
	assert.Contains(t, mergeInputs[0], "from a")
	assert.Contains(t, res.Discrepancy, "b: upstream unavailable")
	assert.Contains(t, res.Discrepancy, "branch failures")
	assert.Equal(t, core.OutcomeComplete, res.Outcome)
}

func TestParallel_AllBranchesFailed(t *testing.T) {
	mkFail := func(name string) *instrument.FuncInstrument {
		return instrument.NewFunc(name, func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
			return nil, errors.New(name + " down")
		})
	}
	mergeCalled := false
	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		mergeCalled = true
		return &core.InstrumentResult{}, nil
	})

	p, err := NewParallel("fanout", []string{"a", "b"}, "merge")
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(mkFail("a"), mkFail("b"), merge))
	require.NoError(t, err)

	assert.False(t, mergeCalled)
	assert.Equal(t, core.OutcomeInconclusive, res.Outcome)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, "all 2 branches failed", res.Summary)
	assert.Contains(t, res.Discrepancy, "a: a down")
	assert.Contains(t, res.Discrepancy, "b: b down")
}

func TestParallel_BranchTimeoutDoesNotCancelSiblings(t *testing.T) {
	slow := instrument.NewFunc("slow", func(ctx context.Context, _ string, _ *core.TaskContext) (*core.InstrumentResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &core.InstrumentResult{Outcome: core.OutcomeComplete}, nil
		}
	})
	fast := instrument.NewFunc("fast", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "fast done", Iterations: 1}, nil
	})
	merge := instrument.NewFunc("merge", func(_ context.Context, _ string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "merged", Iterations: 1}, nil
	})

	p, err := NewParallel("fanout", []string{"slow", "fast"}, "merge", func(o *ParallelOptions) {
		o.BranchTimeout = 30 * time.Millisecond
	})
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(slow, fast, merge))
	require.NoError(t, err)

	// The slow branch timed out; the fast branch and the merge completed.
	assert.Equal(t, "merged", res.Summary)
	assert.Contains(t, res.Discrepancy, "slow:")
}

func TestParallel_UnknownNames(t *testing.T) {
	real := instrument.NewFunc("a", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		t.Fatal("branch must not launch when validation fails")
		return nil, nil
	})

	p, err := NewParallel("fanout", []string{"a", "ghost"}, "merge")
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(real))
	var unknown *core.UnknownInstrumentError
	assert.ErrorAs(t, err, &unknown)

	p, err = NewParallel("fanout", []string{"a"}, "ghost-merge")
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(real))
	var unknownMerge *core.UnknownMergeInstrumentError
	require.ErrorAs(t, err, &unknownMerge)
	assert.Equal(t, "ghost-merge", unknownMerge.Name)
}
