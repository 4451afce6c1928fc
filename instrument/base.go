package instrument

import (
	"context"
	"fmt"

	"github.com/maestrohq/maestro/core"
)

// BaseInstrument bundles the identity and capability metadata shared by all
// instruments. Embed it in concrete implementations and supply an Execute
// method to satisfy core.Instrument. The metadata is static after
// construction, so the embedding value is safe to share across goroutines.
type BaseInstrument struct {
	name        string
	description string
	required    []string
	optional    []string
}

// NewBaseInstrument constructs a BaseInstrument with a generated description
// (customizable via SetDescription).
func NewBaseInstrument(name string, required, optional []string) BaseInstrument {
	return BaseInstrument{
		name:        name,
		description: fmt.Sprintf("Instrument %s", name),
		required:    required,
		optional:    optional,
	}
}

// Name returns the instrument's registry name.
func (b *BaseInstrument) Name() string { return b.name }

// Description returns a human-readable description of the instrument.
func (b *BaseInstrument) Description() string { return b.description }

// SetDescription updates the instrument's description.
func (b *BaseInstrument) SetDescription(desc string) { b.description = desc }

// RequiredCapabilities returns the capabilities a node must offer to run
// this instrument.
func (b *BaseInstrument) RequiredCapabilities() []string { return b.required }

// OptionalCapabilities returns capabilities the instrument can use but does
// not depend on.
func (b *BaseInstrument) OptionalCapabilities() []string { return b.optional }

// FuncInstrument adapts a plain function into a core.Instrument. It is the
// lightest way to register custom behavior and the canonical instrument for
// tests and examples.
type FuncInstrument struct {
	BaseInstrument
	fn func(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error)
}

// NewFunc wraps fn as an instrument with the given name.
func NewFunc(name string, fn func(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error), optFns ...func(b *BaseInstrument)) *FuncInstrument {
	base := NewBaseInstrument(name, nil, nil)
	for _, optFn := range optFns {
		optFn(&base)
	}
	return &FuncInstrument{BaseInstrument: base, fn: fn}
}

// WithCapabilities sets the required capability metadata on a constructed
// instrument.
func WithCapabilities(required ...string) func(b *BaseInstrument) {
	return func(b *BaseInstrument) { b.required = required }
}

// Execute implements core.Instrument.
func (f *FuncInstrument) Execute(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
	return f.fn(ctx, query, taskCtx)
}
