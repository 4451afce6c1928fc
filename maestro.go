// Package maestro provides a high-level façade over the conductor, node
// registry and delegation client, enabling rapid construction of cross-room
// task orchestration. Most applications interact with this package by:
//  1. Creating a Maestro via New() (optionally supplying a registry,
//     delegation client, privacy classifier or configuration)
//  2. Registering one or more instruments (iterative loops, LLM completion
//     instruments, custom functions)
//  3. Handling task requests (Handle) or running compositions
//     (HandleComposition)
//
// The façade delegates dispatch to conductor.Conductor while keeping setup
// ergonomics concise. All defaults are safe for in-process use; deployments
// spanning multiple nodes supply a delegation client and register their
// remote nodes with the registry.
package maestro

import (
	"context"
	"time"

	"github.com/maestrohq/maestro/conductor"
	"github.com/maestrohq/maestro/config"
	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/delegation"
	"github.com/maestrohq/maestro/logging"
	"github.com/maestrohq/maestro/registry"
	"github.com/maestrohq/maestro/termination"
)

// Options configures the Maestro instance.
type Options struct {
	// Registry tracks execution nodes. A fresh in-process registry is
	// created when nil.
	Registry *registry.Registry

	// Delegator carries tasks to remote nodes. Defaults to the HTTP
	// delegation client.
	Delegator core.Delegator

	// Classifier decides whether queries must stay local. Nil skips privacy
	// routing.
	Classifier core.PrivacyClassifier

	// DefaultInstrument handles requests that do not name an instrument.
	DefaultInstrument string

	// MaxSpawnDepth bounds recursive spawn chains for requests that carry
	// no ceiling of their own. Zero uses the built-in default.
	MaxSpawnDepth int

	// DelegationTimeout bounds each delegation attempt. Zero uses the
	// conductor's default.
	DelegationTimeout time.Duration

	// HeartbeatTimeout is how stale a node's heartbeat may be before the
	// registry flips it offline. Only applies to the registry created when
	// Registry is nil; zero uses the registry's default.
	HeartbeatTimeout time.Duration

	// Evaluator supplies the termination tunables handed out by
	// Maestro.Evaluator for iterative instruments. Defaults to the built-in
	// thresholds.
	Evaluator *termination.Evaluator

	// LocalCapabilities are advertised for this process's server node.
	LocalCapabilities []string

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Maestro is the high-level façade aggregating the conductor, the node
// registry and the delegation client.
type Maestro struct {
	opts      Options
	conductor *conductor.Conductor
	registry  *registry.Registry
	evaluator *termination.Evaluator
}

// New creates a Maestro instance with optional overrides. The process's own
// server node is registered automatically with the configured local
// capabilities.
func New(optFns ...func(o *Options)) *Maestro {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = registry.New(func(o *registry.Options) {
			o.HeartbeatTimeout = opts.HeartbeatTimeout
			o.Logger = opts.Logger
		})
	}
	if opts.Delegator == nil {
		opts.Delegator = delegation.NewHTTPClient()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = termination.NewEvaluator()
	}

	c := conductor.New(func(o *conductor.Options) {
		o.Registry = opts.Registry
		o.Delegator = opts.Delegator
		o.Classifier = opts.Classifier
		o.DefaultInstrument = opts.DefaultInstrument
		o.MaxSpawnDepth = opts.MaxSpawnDepth
		o.DelegationTimeout = opts.DelegationTimeout
		o.Logger = opts.Logger
	})

	m := &Maestro{opts: opts, conductor: c, registry: opts.Registry, evaluator: opts.Evaluator}
	m.registry.RegisterLocalNode(opts.LocalCapabilities, nil)
	return m
}

// NewFromConfig creates a Maestro instance from a loaded configuration.
// Conductor routing, spawn-depth and delegation settings, registry heartbeat
// expiry, termination tunables and the logger all follow cfg; optFns apply on
// top and win over the configuration.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) *Maestro {
	evaluator := termination.NewEvaluator()
	evaluator.ConfidenceThreshold = cfg.Termination.ConfidenceThreshold
	evaluator.ConfidenceDeltaThreshold = cfg.Termination.ConfidenceDeltaThreshold

	base := func(o *Options) {
		o.Logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)
		o.DefaultInstrument = cfg.Conductor.DefaultInstrument
		o.MaxSpawnDepth = cfg.Conductor.MaxSpawnDepth
		o.DelegationTimeout = cfg.DelegationTimeout()
		o.HeartbeatTimeout = cfg.HeartbeatTimeout()
		o.Evaluator = evaluator
	}
	return New(append([]func(o *Options){base}, optFns...)...)
}

// RegisterInstrument adds an instrument to the conductor's registry and
// refreshes the server node's advertised instrument inventory.
func (m *Maestro) RegisterInstrument(inst core.Instrument) {
	m.conductor.RegisterInstrument(inst)
	m.registry.RegisterLocalNode(m.opts.LocalCapabilities, m.conductor.InstrumentNames())
}

// RegisterNode adds a remote node to the registry.
func (m *Maestro) RegisterNode(node *core.Node) { m.registry.Register(node) }

// Registry exposes the node registry's administrative surface (heartbeats,
// deregistration, queries) for transport layers built on top.
func (m *Maestro) Registry() *registry.Registry { return m.registry }

// Handle dispatches one task request through the conductor.
func (m *Maestro) Handle(ctx context.Context, req core.TaskRequest) (*core.TaskResponse, error) {
	return m.conductor.Handle(ctx, req)
}

// HandleComposition dispatches a query through an execution plan.
func (m *Maestro) HandleComposition(ctx context.Context, query string, comp core.Composition) (*core.TaskResponse, error) {
	return m.conductor.Handle(ctx, core.TaskRequest{Query: query, Composition: comp})
}

// Evaluator exposes the termination evaluator so iterative instruments can
// share the configured tunables.
func (m *Maestro) Evaluator() *termination.Evaluator { return m.evaluator }

// DegradationStatus reports aggregate node health and the capability set
// still available from online nodes.
func (m *Maestro) DegradationStatus() registry.DegradationStatus {
	return m.registry.GetDegradationStatus()
}
