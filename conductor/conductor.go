package conductor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/logging"
	"github.com/maestrohq/maestro/registry"
)

// DefaultDelegationTimeout bounds a single delegation attempt when no timeout
// is configured.
const DefaultDelegationTimeout = 30 * time.Second

// Options configures a Conductor instance using the functional options
// pattern. All dependencies are optional: a Conductor without a registry runs
// everything in-process, one without a classifier skips privacy routing.
//
// Example:
//
//	c := conductor.New(func(o *conductor.Options) {
//	    o.Registry = reg
//	    o.Delegator = delegation.NewHTTPClient()
//	    o.DefaultInstrument = "research"
//	})
type Options struct {
	// Registry provides node selection. Nil disables node routing entirely;
	// every task runs in-process with no node identity stamped.
	Registry *registry.Registry

	// Delegator carries tasks to remote nodes. Nil means remote selections
	// degrade to local execution.
	Delegator core.Delegator

	// Classifier decides whether a query must stay on a local node. Nil
	// skips the privacy check during node selection.
	Classifier core.PrivacyClassifier

	// DefaultInstrument handles requests that do not name an instrument.
	DefaultInstrument string

	// MaxSpawnDepth bounds recursive spawn chains for requests that carry
	// no ceiling of their own. Request preferences and the task context
	// both take precedence; zero falls back to core.DefaultMaxDepth.
	MaxSpawnDepth int

	// DelegationTimeout bounds each delegation attempt. Defaults to
	// DefaultDelegationTimeout when zero or negative.
	DelegationTimeout time.Duration

	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Conductor is the single entry point for task dispatch. It is safe for
// concurrent use; the instrument registry is guarded by an RWMutex and all
// other fields are immutable after construction.
type Conductor struct {
	mu          sync.RWMutex
	instruments map[string]core.Instrument

	registry          *registry.Registry
	delegator         core.Delegator
	classifier        core.PrivacyClassifier
	defaultInstrument string
	maxSpawnDepth     int
	delegationTimeout time.Duration
	logger            logging.Logger
}

// New constructs a Conductor with the given options applied.
func New(optFns ...func(o *Options)) *Conductor {
	opts := Options{DelegationTimeout: DefaultDelegationTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DelegationTimeout <= 0 {
		opts.DelegationTimeout = DefaultDelegationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Conductor{
		instruments:       make(map[string]core.Instrument),
		registry:          opts.Registry,
		delegator:         opts.Delegator,
		classifier:        opts.Classifier,
		defaultInstrument: opts.DefaultInstrument,
		maxSpawnDepth:     opts.MaxSpawnDepth,
		delegationTimeout: opts.DelegationTimeout,
		logger:            opts.Logger,
	}
}

// RegisterInstrument adds an instrument to the conductor's registry under its
// own name, replacing any previous registration with the same name.
func (c *Conductor) RegisterInstrument(inst core.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.Name()] = inst
}

// Lookup resolves a registered instrument by name. It satisfies
// core.InstrumentLookup when passed as a method value.
func (c *Conductor) Lookup(name string) (core.Instrument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[name]
	if !ok {
		return nil, &core.UnknownInstrumentError{Name: name}
	}
	return inst, nil
}

// InstrumentNames returns the names of all registered instruments, sorted.
func (c *Conductor) InstrumentNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.instruments))
	for name := range c.instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle dispatches one task request and returns the response. The contract:
// resolve the effective max depth, fail fast on a depth violation, inject a
// fresh spawn capability bound to the current depth, route to a composition
// or instrument (selecting an execution node when a registry is configured),
// execute, and stamp execution metadata onto the response.
//
// The request is taken by value; Handle never mutates caller-owned state.
func (c *Conductor) Handle(ctx context.Context, req core.TaskRequest) (*core.TaskResponse, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = core.NewID()
	}

	maxDepth := c.effectiveMaxDepth(req)
	taskCtx := req.Context.Clone()
	taskCtx.MaxDepth = maxDepth

	if taskCtx.Depth > maxDepth {
		return nil, &core.DepthExceededError{Current: taskCtx.Depth, Max: maxDepth}
	}

	taskCtx.Spawn = c.spawnFunc(req, taskCtx)
	req = req.WithContext(taskCtx)

	if req.Composition != nil {
		return c.handleComposition(ctx, req, start)
	}
	return c.handleInstrument(ctx, req, start)
}

// effectiveMaxDepth resolves the recursion ceiling for a request: the
// request's own preferences and context first, then the conductor's
// configured default, then core.DefaultMaxDepth.
func (c *Conductor) effectiveMaxDepth(req core.TaskRequest) int {
	if req.Preferences != nil && req.Preferences.MaxSpawnDepth != nil {
		return *req.Preferences.MaxSpawnDepth
	}
	if req.Context != nil && req.Context.MaxDepth > 0 {
		return req.Context.MaxDepth
	}
	if c.maxSpawnDepth > 0 {
		return c.maxSpawnDepth
	}
	return core.DefaultMaxDepth
}

// spawnFunc builds the recursive dispatch capability closed over the current
// depth. Spawning at depth == max fails with DepthExceeded before any work;
// otherwise the child context is cloned at depth+1 with stale handles
// stripped (the recursive Handle call injects fresh ones) and caller-supplied
// overrides merged field by field.
func (c *Conductor) spawnFunc(req core.TaskRequest, parent *core.TaskContext) core.SpawnFunc {
	return func(ctx context.Context, query string, overrides *core.SpawnOverrides) (*core.InstrumentResult, error) {
		newDepth := parent.Depth + 1
		if newDepth > parent.MaxDepth {
			return nil, &core.DepthExceededError{Current: newDepth, Max: parent.MaxDepth}
		}

		child := parent.StripHandles()
		child.Depth = newDepth
		if overrides != nil {
			if len(overrides.InputResults) > 0 {
				child.InputResults = append([]string(nil), overrides.InputResults...)
			}
			if overrides.ConversationSummary != "" {
				child.ConversationSummary = overrides.ConversationSummary
			}
			if len(overrides.Attachments) > 0 {
				child.Attachments = append([]string(nil), overrides.Attachments...)
			}
		}

		resp, err := c.Handle(ctx, core.TaskRequest{
			ID:          core.NewID(),
			Query:       query,
			Context:     child,
			Preferences: req.Preferences,
			Instrument:  req.Instrument,
		})
		if err != nil {
			return nil, err
		}
		return resp.Result(), nil
	}
}

// handleComposition runs an in-process execution plan. Configuration errors
// (unknown instrument or merge names) re-raise; any other failure is
// converted into an inconclusive response with the error as discrepancy, so
// the caller always sees exactly one well-formed response.
func (c *Conductor) handleComposition(ctx context.Context, req core.TaskRequest, start time.Time) (*core.TaskResponse, error) {
	name := req.Composition.Name()
	c.logger.Debug("running composition", "request_id", req.ID, "composition", name)

	res, err := req.Composition.Execute(ctx, req.Query, req.Context, c.Lookup)
	if err != nil {
		var unknownInst *core.UnknownInstrumentError
		var unknownMerge *core.UnknownMergeInstrumentError
		if errors.As(err, &unknownInst) || errors.As(err, &unknownMerge) {
			return nil, err
		}
		c.logger.Warn("composition failed", "request_id", req.ID, "composition", name, "error", err)
		res = &core.InstrumentResult{
			Outcome:     core.OutcomeInconclusive,
			Summary:     fmt.Sprintf("composition %s did not complete", name),
			Confidence:  0.0,
			Discrepancy: err.Error(),
		}
	}

	return core.ResponseFromResult(req.ID, res, core.ResponseMetadata{
		Instrument: name,
		NodeID:     c.localNodeID(),
		DurationMS: time.Since(start).Milliseconds(),
	}), nil
}

// handleInstrument runs a single-instrument task: resolve the instrument,
// select an execution node, delegate when the node is remote (with a single
// level of failover back to local execution), and interpret the result.
func (c *Conductor) handleInstrument(ctx context.Context, req core.TaskRequest, start time.Time) (*core.TaskResponse, error) {
	name := req.Instrument
	if name == "" {
		name = c.defaultInstrument
	}
	if name == "" {
		return nil, errors.New("task request names no instrument and no default is configured")
	}
	inst, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}

	meta := core.ResponseMetadata{Instrument: name}

	node := c.selectNode(req, inst)
	if node != nil && node.ID != core.ServerNodeID && c.delegator != nil {
		remoteReq := req.WithContext(req.Context.StripHandles())
		delegated := c.delegator.Delegate(ctx, node, remoteReq, c.delegationTimeout)
		if delegated.Success && delegated.Response != nil {
			meta.NodeID = node.ID
			meta.DurationMS = time.Since(start).Milliseconds()
			return core.ResponseFromResult(req.ID, delegated.Response.Result(), meta), nil
		}

		// One level of failover: re-execute locally and record the event.
		// A local failure after this point propagates normally.
		c.logger.Warn("delegation failed, re-executing locally",
			"request_id", req.ID, "node_id", node.ID, "error", delegated.Error)
		meta.FailoverEvents = append(meta.FailoverEvents, core.FailoverEvent{
			OriginalNodeID: node.ID,
			FallbackNodeID: core.ServerNodeID,
			Reason:         "delegation_failed",
		})
	}

	res, err := inst.Execute(ctx, req.Query, req.Context)
	if err != nil {
		return nil, err
	}

	meta.NodeID = c.localNodeID()
	meta.DurationMS = time.Since(start).Milliseconds()
	return core.ResponseFromResult(req.ID, res, meta), nil
}

// selectNode applies the selection policy for a single-instrument task:
// forced flags first, then the privacy classifier's stay-local verdict, then
// capability-fit scoring. Nil means "run in-process without node identity".
func (c *Conductor) selectNode(req core.TaskRequest, inst core.Instrument) *core.Node {
	if c.registry == nil {
		return nil
	}

	if req.Preferences != nil {
		if req.Preferences.ForceLocal {
			return c.registry.LocalCapableNode()
		}
		if req.Preferences.ForceServer {
			node, err := c.registry.Node(core.ServerNodeID)
			if err != nil {
				// The server node is unreachable; run locally rather than
				// hard-failing a forced-server request.
				c.logger.Warn("forced-server request but no server node registered", "request_id", req.ID)
				return c.registry.LocalCapableNode()
			}
			return node
		}
	}

	if c.classifier != nil {
		verdict := c.classifier.Classify(req.Query, req.Context)
		if verdict.ShouldStayLocal {
			c.logger.Debug("query classified as stay-local",
				"request_id", req.ID, "level", string(verdict.Level), "reason", verdict.Reason)
			node := c.registry.LocalCapableNode()
			if node != nil && !node.HasInstrument(inst.Name()) && len(node.Instruments) > 0 {
				// The local node cannot run the requested instrument; name
				// one from its inventory as a fallback suggestion.
				c.logger.Debug("local node lacks requested instrument",
					"request_id", req.ID, "node_id", node.ID,
					"instrument", inst.Name(), "suggested_fallback", node.Instruments[0])
			}
			return node
		}
	}

	return c.registry.BestNodeForTask(registry.TaskQuery{
		RequiredCapabilities: inst.RequiredCapabilities(),
	})
}

// localNodeID reports the node identity stamped on in-process executions:
// the server node when a registry is configured, empty otherwise.
func (c *Conductor) localNodeID() string {
	if c.registry == nil {
		return ""
	}
	return core.ServerNodeID
}
