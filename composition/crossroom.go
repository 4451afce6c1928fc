package composition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/logging"
	"github.com/maestrohq/maestro/registry"
)

// CrossRoomBranch describes one unit of fan-out work and where it may run.
type CrossRoomBranch struct {
	// Query overrides the composition's query for this branch when set.
	Query string
	// NodeID pins the branch to an explicit node. When empty the branch is
	// routed by capability and privacy scoring.
	NodeID string
	// Instrument names the instrument executing the branch. When empty the
	// composition's default instrument is used.
	Instrument string
	// RequiredCapabilities constrain auto-routing to capable nodes.
	RequiredCapabilities []string
	// PreferLocal biases routing toward local-type nodes (privacy hint).
	PreferLocal bool
}

// CrossRoom generalizes Parallel across execution nodes. Each branch
// independently resolves its target node; remote branches are delegated, and
// a failed delegation falls back to local instrument execution before the
// branch is counted as failed. If exactly one branch succeeds and none
// failed, its result is returned directly without a merge call.
type CrossRoom struct {
	name              string
	branches          []CrossRoomBranch
	merge             string
	defaultInstrument string
	timeout           time.Duration
	registry          *registry.Registry
	delegator         core.Delegator
	logger            logging.Logger
}

// CrossRoomOptions configures optional cross-room behavior.
type CrossRoomOptions struct {
	// DefaultInstrument serves branches that do not name one explicitly.
	DefaultInstrument string
	// Timeout bounds each branch, covering delegation and any local
	// fallback together. Zero means unbounded.
	Timeout time.Duration
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// NewCrossRoom constructs a cross-node fan-out/fan-in. The registry routes
// branches; the delegator carries remote ones. At least one branch and a
// merge instrument are required.
func NewCrossRoom(name string, branches []CrossRoomBranch, merge string, reg *registry.Registry, delegator core.Delegator, optFns ...func(o *CrossRoomOptions)) (*CrossRoom, error) {
	if len(branches) == 0 {
		return nil, errors.New("cross-room composition requires at least one branch")
	}
	if merge == "" {
		return nil, errors.New("cross-room composition requires a merge instrument")
	}
	opts := CrossRoomOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &CrossRoom{
		name:              name,
		branches:          branches,
		merge:             merge,
		defaultInstrument: opts.DefaultInstrument,
		timeout:           opts.Timeout,
		registry:          reg,
		delegator:         delegator,
		logger:            opts.Logger,
	}, nil
}

// Name returns the composition's name.
func (c *CrossRoom) Name() string { return c.name }

// Execute implements core.Composition.
func (c *CrossRoom) Execute(ctx context.Context, query string, taskCtx *core.TaskContext, lookup core.InstrumentLookup) (*core.InstrumentResult, error) {
	mergeInst, err := lookup(c.merge)
	if err != nil {
		return nil, &core.UnknownMergeInstrumentError{Name: c.merge}
	}

	outcomes := make([]branchOutcome, len(c.branches))
	var wg sync.WaitGroup
	for i, branch := range c.branches {
		wg.Add(1)
		go func(i int, branch CrossRoomBranch) {
			defer wg.Done()

			branchCtx := ctx
			if c.timeout > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(ctx, c.timeout)
				defer cancel()
			}

			result, err := c.runBranch(branchCtx, query, taskCtx, branch, lookup)
			outcomes[i] = branchOutcome{name: c.branchName(i, branch), result: result, err: err}
		}(i, branch)
	}
	wg.Wait()

	successes, failures := partitionBranches(outcomes)
	if len(successes) == 0 {
		return allBranchesFailedResult(len(c.branches), failures), nil
	}

	// A single successful branch with no failures needs no merge call.
	if len(successes) == 1 && len(failures) == 0 {
		return successes[0].result, nil
	}

	parallel := &Parallel{name: c.name, merge: c.merge}
	merged, err := parallel.runMerge(ctx, query, taskCtx, mergeInst, successes)
	if err != nil {
		return nil, fmt.Errorf("cross-room merge (%s): %w", c.merge, err)
	}

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

// runBranch resolves the branch's target node, delegates when the target is
// remote, and falls back to local execution when delegation fails. The
// branch only fails when local execution fails too.
func (c *CrossRoom) runBranch(ctx context.Context, query string, taskCtx *core.TaskContext, branch CrossRoomBranch, lookup core.InstrumentLookup) (*core.InstrumentResult, error) {
	branchQuery := branch.Query
	if branchQuery == "" {
		branchQuery = query
	}

	node := c.resolveNode(branch)
	if node != nil && node.ID != core.ServerNodeID && c.delegator != nil {
		req := core.TaskRequest{
			ID:         core.NewID(),
			Query:      branchQuery,
			Context:    taskCtx.StripHandles(),
			Instrument: c.instrumentName(branch),
		}
		delegated := c.delegator.Delegate(ctx, node, req, c.timeout)
		if delegated.Success && delegated.Response != nil {
			return delegated.Response.Result(), nil
		}
		c.logger.Warn("branch delegation failed, falling back to local execution",
			"node_id", node.ID, "error", delegated.Error)
	}

	return c.runLocal(ctx, branchQuery, taskCtx, branch, lookup)
}

func (c *CrossRoom) runLocal(ctx context.Context, query string, taskCtx *core.TaskContext, branch CrossRoomBranch, lookup core.InstrumentLookup) (*core.InstrumentResult, error) {
	name := c.instrumentName(branch)
	if name == "" {
		return nil, errors.New("branch has no instrument and no default is configured")
	}
	inst, err := lookup(name)
	if err != nil {
		return nil, err
	}

	cloned := taskCtx.Clone()
	cloned.InputResults = nil
	return inst.Execute(ctx, query, cloned)
}

// resolveNode picks the branch's target: the explicit node when pinned,
// otherwise the best-scoring online node for the branch's capability and
// privacy constraints. Nil means "run locally".
func (c *CrossRoom) resolveNode(branch CrossRoomBranch) *core.Node {
	if c.registry == nil {
		return nil
	}
	if branch.NodeID != "" {
		node, err := c.registry.Node(branch.NodeID)
		if err != nil {
			c.logger.Warn("pinned node unknown, running branch locally", "node_id", branch.NodeID)
			return nil
		}
		return node
	}
	return c.registry.BestNodeForTask(registry.TaskQuery{
		RequiredCapabilities: branch.RequiredCapabilities,
		PreferLocal:          branch.PreferLocal,
	})
}

func (c *CrossRoom) instrumentName(branch CrossRoomBranch) string {
	if branch.Instrument != "" {
		return branch.Instrument
	}
	return c.defaultInstrument
}

func (c *CrossRoom) branchName(i int, branch CrossRoomBranch) string {
	if branch.Instrument != "" {
		return branch.Instrument
	}
	if branch.NodeID != "" {
		return branch.NodeID
	}
	return fmt.Sprintf("branch-%d", i+1)
}
