package composition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/instrument"
	"github.com/maestrohq/maestro/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelegator is a scriptable core.Delegator recording every attempt.
type fakeDelegator struct {
	mu       sync.Mutex
	attempts []string // node ids in attempt order
	respond  func(node *core.Node, req core.TaskRequest) core.DelegationResult
}

func (f *fakeDelegator) Delegate(_ context.Context, node *core.Node, req core.TaskRequest, _ time.Duration) core.DelegationResult {
	f.mu.Lock()
	f.attempts = append(f.attempts, node.ID)
	f.mu.Unlock()
	return f.respond(node, req)
}

func delegationSuccess(summary string) func(*core.Node, core.TaskRequest) core.DelegationResult {
	return func(_ *core.Node, req core.TaskRequest) core.DelegationResult {
		return core.DelegationResult{
			Success: true,
			Response: &core.TaskResponse{
				RequestID:  req.ID,
				Outcome:    core.OutcomeComplete,
				Summary:    summary,
				Confidence: 0.9,
				Metadata:   core.ResponseMetadata{Iterations: 1},
			},
		}
	}
}

func crossRoomRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.RegisterLocalNode([]string{"reasoning"}, []string{"analyze"})
	reg.Register(&core.Node{
		ID:           "gpu-1",
		Type:         core.NodeTypeOther,
		Address:      "http://gpu-1.internal",
		Capabilities: []string{"reasoning", "image_analysis"},
		Instruments:  []string{"vision"},
	})
	return reg
}

func TestCrossRoom_DelegatesRemoteBranch(t *testing.T) {
	reg := crossRoomRegistry(t)
	delegator := &fakeDelegator{respond: delegationSuccess("remote result")}

	cr, err := NewCrossRoom("rooms",
		[]CrossRoomBranch{{NodeID: "gpu-1", Instrument: "vision"}},
		"merge", reg, delegator)
	require.NoError(t, err)

	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		t.Fatal("single successful branch must skip the merge step")
		return nil, nil
	})

	res, err := cr.Execute(context.Background(), "analyze the image", &core.TaskContext{}, testLookup(merge))
	require.NoError(t, err)

	assert.Equal(t, []string{"gpu-1"}, delegator.attempts)
	assert.Equal(t, "remote result", res.Summary)
	assert.Equal(t, core.OutcomeComplete, res.Outcome)
}

func TestCrossRoom_DelegationFailureFallsBackLocally(t *testing.T) {
	reg := crossRoomRegistry(t)
	delegator := &fakeDelegator{respond: func(*core.Node, core.TaskRequest) core.DelegationResult {
		return core.DelegationResult{Error: "connection refused"}
	}}

	localRan := false
	vision := instrument.NewFunc("vision", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		localRan = true
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "local fallback", Iterations: 1}, nil
	})
	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return nil, errors.New("must not merge a single success")
	})

	cr, err := NewCrossRoom("rooms",
		[]CrossRoomBranch{{NodeID: "gpu-1", Instrument: "vision"}},
		"merge", reg, delegator)
	require.NoError(t, err)

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(vision, merge))
	require.NoError(t, err)

	assert.True(t, localRan)
	assert.Equal(t, "local fallback", res.Summary)
}

func TestCrossRoom_BranchFailsOnlyWhenLocalAlsoFails(t *testing.T) {
	reg := crossRoomRegistry(t)
	delegator := &fakeDelegator{respond: func(*core.Node, core.TaskRequest) core.DelegationResult {
		return core.DelegationResult{Error: "timeout"}
	}}

	vision := instrument.NewFunc("vision", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return nil, errors.New("no camera access")
	})
	analyze := instrument.NewFunc("analyze", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "text analysis", Iterations: 2}, nil
	})
	var mergeInputs []string
	merge := instrument.NewFunc("merge", func(_ context.Context, _ string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
		mergeInputs = taskCtx.InputResults
		return &core.InstrumentResult{Outcome: core.OutcomeComplete, Summary: "merged", Iterations: 1}, nil
	})

	cr, err := NewCrossRoom("rooms",
		[]CrossRoomBranch{
			{Instrument: "analyze"},
			{NodeID: "gpu-1", Instrument: "vision"},
		},
		"merge", reg, delegator)
	require.NoError(t, err)

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(vision, analyze, merge))
	require.NoError(t, err)

	// The vision branch failed both remotely and locally; analyze succeeded
	// and the merge saw exactly its serialized result.
	require.Len(t, mergeInputs, 1)
	assert.Contains(t, mergeInputs[0], "text analysis")
	assert.Contains(t, res.Discrepancy, "vision: no camera access")
	assert.Equal(t, "merged", res.Summary)
	assert.Equal(t, 3, res.Iterations) // analyze 2 + merge 1
}

func TestCrossRoom_AllBranchesFailed(t *testing.T) {
	failing := instrument.NewFunc("analyze", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return nil, errors.New("boom")
	})
	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		t.Fatal("merge must not run when every branch failed")
		return nil, nil
	})

	cr, err := NewCrossRoom("rooms", []CrossRoomBranch{{Instrument: "analyze"}}, "merge", nil, nil)
	require.NoError(t, err)

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(failing, merge))
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeInconclusive, res.Outcome)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.Discrepancy, "analyze: boom")
}

func TestCrossRoom_AutoRoutesByCapability(t *testing.T) {
	reg := crossRoomRegistry(t)
	delegator := &fakeDelegator{respond: delegationSuccess("routed remotely")}

	cr, err := NewCrossRoom("rooms",
		[]CrossRoomBranch{{RequiredCapabilities: []string{"image_analysis"}, Instrument: "vision"}},
		"merge", reg, delegator)
	require.NoError(t, err)

	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{}, nil
	})

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(merge))
	require.NoError(t, err)

	// Only gpu-1 offers image_analysis, so the branch delegated there.
	assert.Equal(t, []string{"gpu-1"}, delegator.attempts)
	assert.Equal(t, "routed remotely", res.Summary)
}

func TestCrossRoom_PreferLocalRoutesToLocalNode(t *testing.T) {
	reg := crossRoomRegistry(t)
	reg.Register(&core.Node{
		ID:           "phone",
		Type:         core.NodeTypeLocal,
		Address:      "http://phone.local",
		Capabilities: []string{"reasoning"},
		Instruments:  []string{"analyze"},
	})
	delegator := &fakeDelegator{respond: delegationSuccess("on device")}

	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{}, nil
	})

	cr, err := NewCrossRoom("rooms",
		[]CrossRoomBranch{{PreferLocal: true, RequiredCapabilities: []string{"reasoning"}, Instrument: "analyze"}},
		"merge", reg, delegator)
	require.NoError(t, err)

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(merge))
	require.NoError(t, err)

	// gpu-1 advertises more capabilities, but the local bonus outweighs it.
	assert.Equal(t, []string{"phone"}, delegator.attempts)
	assert.Equal(t, "on device", res.Summary)
}

func TestCrossRoom_MissingInstrumentWithoutDefault(t *testing.T) {
	merge := instrument.NewFunc("merge", func(context.Context, string, *core.TaskContext) (*core.InstrumentResult, error) {
		return &core.InstrumentResult{}, nil
	})

	cr, err := NewCrossRoom("rooms", []CrossRoomBranch{{}}, "merge", nil, nil)
	require.NoError(t, err)

	res, err := cr.Execute(context.Background(), "q", &core.TaskContext{}, testLookup(merge))
	require.NoError(t, err)

	// The only branch failed on configuration, so the composition reports
	// all branches failed.
	assert.Equal(t, core.OutcomeInconclusive, res.Outcome)
	assert.Contains(t, res.Discrepancy, "no instrument")
}
