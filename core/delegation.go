package core

import (
	"context"
	"time"
)

// DelegationResult reports the outcome of handing a task to a remote node.
// Success false covers timeouts, connection errors and non-success remote
// statuses alike; Error carries the human-readable cause.
type DelegationResult struct {
	Success   bool          `json:"success"`
	Response  *TaskResponse `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	LatencyMS int64         `json:"latency_ms"`
}

// Delegator sends a task to a remote node, bounded by the given timeout.
// Implementations must never panic on unreachable nodes; any transport
// failure is reported through DelegationResult.Success.
type Delegator interface {
	Delegate(ctx context.Context, node *Node, req TaskRequest, timeout time.Duration) DelegationResult
}
