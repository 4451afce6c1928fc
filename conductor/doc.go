// Package conductor implements the top-level task dispatcher. A Conductor
// owns the instrument registry, applies the recursion depth guard, injects
// the spawn capability into the task context, selects an execution node when
// a node registry is configured, and wraps raw instrument results into
// externally visible responses with execution metadata.
//
// Depth violations are the only fatal, synchronous failure at this layer.
// Composition failures are converted into an inconclusive response with a
// populated discrepancy; a raised error from a single-instrument execution
// re-raises for the caller to decide.
package conductor
