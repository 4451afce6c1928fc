package core

import "context"

// Instrument is the interface every processing strategy implements. An
// instrument receives a query plus the task context and produces a single
// InstrumentResult. Implementations must respect context cancellation and
// should treat the TaskContext as read-only.
//
// The capability metadata is static: it drives capability-based node and
// instrument resolution and never changes after construction.
type Instrument interface {
	Name() string
	Execute(ctx context.Context, query string, taskCtx *TaskContext) (*InstrumentResult, error)
	RequiredCapabilities() []string
	OptionalCapabilities() []string
}

// StepConfig carries per-step tuning overrides for a sequential composition
// step. Nil fields leave the instrument's own configuration untouched.
type StepConfig struct {
	MaxIterations            *int
	ConfidenceThreshold      *float64
	ConfidenceDeltaThreshold *float64
}

// ConfigurableInstrument is implemented by instruments that support per-step
// configuration. Configured returns an independent instrument value with the
// overrides applied; the receiver is never mutated, so a shared instrument
// instance stays safe under concurrent composition executions.
type ConfigurableInstrument interface {
	Instrument
	Configured(cfg StepConfig) Instrument
}

// InstrumentLookup resolves an instrument by name. Unknown names yield a
// typed error (UnknownInstrumentError), never a nil instrument.
type InstrumentLookup func(name string) (Instrument, error)

// Composition is an executable aggregate of instruments: a sequential
// pipeline, a parallel fan-out/fan-in, or a cross-room fan-out/fan-in.
// A composition produces exactly one InstrumentResult per invocation and is
// immutable for the duration of execution.
type Composition interface {
	Name() string
	Execute(ctx context.Context, query string, taskCtx *TaskContext, lookup InstrumentLookup) (*InstrumentResult, error)
}
