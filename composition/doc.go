// Package composition executes aggregates of instruments: sequential
// pipelines, parallel fan-out/fan-in, and cross-room fan-out/fan-in over
// multiple execution nodes.
//
// All variants share one contract: Execute(ctx, query, taskCtx, lookup)
// produces exactly one InstrumentResult per invocation, never a partially
// applied one. Fan-out variants launch every branch concurrently and wait for
// all of them (successes and failures both collected); a branch failure never
// cancels its siblings, and the composition only fails outright when every
// branch fails. Per-branch timeouts bound an individual branch without
// affecting the others.
package composition
