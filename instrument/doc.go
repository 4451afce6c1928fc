// Package instrument provides building blocks for concrete instruments: a
// BaseInstrument embedding helper carrying identity and capability metadata,
// a FuncInstrument for wrapping plain functions (tests, examples, small
// adapters), and an IterativeInstrument that runs a round function in a loop
// until the termination evaluator decides the loop has converged, saturated
// or must stop.
//
// Model-backed instruments live in the provider subpackages
// (instrument/anthropic, instrument/openai).
package instrument
