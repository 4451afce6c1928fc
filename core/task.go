package core

import (
	"context"
	"time"
)

// DefaultMaxDepth bounds recursive spawn chains when neither the request
// preferences nor the context specify a ceiling.
const DefaultMaxDepth = 3

// CheckpointFunc is an optional per-task progress side channel. It is invoked
// once per completed phase of an iterative instrument. Failures are logged and
// ignored by callers, never fatal; use TaskContext.EmitCheckpoint rather than
// calling the field directly.
type CheckpointFunc func(iteration int, phase, inputSummary, outputSummary string, duration time.Duration) error

// SpawnOverrides carries the caller-supplied context fields a spawned sub-task
// may override. Only non-empty fields are merged into the child context.
type SpawnOverrides struct {
	InputResults        []string
	ConversationSummary string
	Attachments         []string
}

// SpawnFunc recursively dispatches a sub-query through the conductor at
// depth+1. It is injected by the conductor before routing and must never be
// persisted or serialized; the recursive call re-injects a fresh handle.
type SpawnFunc func(ctx context.Context, query string, overrides *SpawnOverrides) (*InstrumentResult, error)

// TaskContext is the immutable value carried through a dispatch. The invariant
// 0 <= Depth <= MaxDepth holds before any instrument executes; the conductor
// enforces it. Handles (Spawn, Checkpoint) are convenience side channels and
// are excluded from serialization.
type TaskContext struct {
	Depth               int      `json:"depth"`
	MaxDepth            int      `json:"max_depth"`
	InputResults        []string `json:"input_results,omitempty"`
	Attachments         []string `json:"attachments,omitempty"`
	ConversationSummary string   `json:"conversation_summary,omitempty"`
	UserID              string   `json:"user_id,omitempty"`
	AppID               string   `json:"app_id,omitempty"`

	Checkpoint CheckpointFunc `json:"-"`
	Spawn      SpawnFunc      `json:"-"`
}

// Clone returns a deep copy of the context. Slices are copied so branch
// executions cannot observe each other's mutations; the Spawn and Checkpoint
// handles are carried over as-is.
func (tc *TaskContext) Clone() *TaskContext {
	if tc == nil {
		return &TaskContext{MaxDepth: DefaultMaxDepth}
	}
	clone := *tc
	clone.InputResults = copyStrings(tc.InputResults)
	clone.Attachments = copyStrings(tc.Attachments)
	return &clone
}

// StripHandles returns a copy with the Spawn and Checkpoint handles removed.
// The conductor strips stale handles before a recursive dispatch and
// re-injects fresh ones bound to the new depth.
func (tc *TaskContext) StripHandles() *TaskContext {
	clone := tc.Clone()
	clone.Spawn = nil
	clone.Checkpoint = nil
	return clone
}

// EmitCheckpoint invokes the checkpoint callback if one is attached. Callback
// errors and panics are swallowed: progress reporting must never fail a task.
func (tc *TaskContext) EmitCheckpoint(iteration int, phase, inputSummary, outputSummary string, duration time.Duration) {
	if tc == nil || tc.Checkpoint == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = tc.Checkpoint(iteration, phase, inputSummary, outputSummary, duration)
}

// Preferences holds optional caller overrides attached to a task request.
type Preferences struct {
	// MaxSpawnDepth overrides the context's recursion ceiling when set.
	MaxSpawnDepth *int `json:"max_spawn_depth,omitempty"`
	// Thoroughness hints how exhaustively instruments should work
	// ("quick", "standard", "thorough"). Interpretation is instrument-specific.
	Thoroughness string `json:"thoroughness,omitempty"`
	// ForceLocal pins execution to a local-type node regardless of scoring.
	ForceLocal bool `json:"force_local,omitempty"`
	// ForceServer pins execution to the server node; falls back to local
	// execution if the server is unreachable, never hard-fails.
	ForceServer bool `json:"force_server,omitempty"`
}

// TaskRequest is the immutable unit of work handed to the conductor. Any
// modification (for example injecting a fresh context) produces a new value.
type TaskRequest struct {
	ID          string       `json:"id"`
	Query       string       `json:"query"`
	Context     *TaskContext `json:"context"`
	Preferences *Preferences `json:"preferences,omitempty"`

	// Instrument names the instrument that should handle the request. The
	// conductor falls back to its configured default when empty.
	Instrument string `json:"instrument,omitempty"`

	// Composition, when set, takes precedence over Instrument. It is an
	// in-process execution plan and is never serialized for delegation.
	Composition Composition `json:"-"`
}

// WithContext returns a copy of the request carrying the given context.
func (r TaskRequest) WithContext(tc *TaskContext) TaskRequest {
	r.Context = tc
	return r
}

// EffectiveMaxDepth resolves the recursion ceiling for this request:
// preferences override the context, which defaults to DefaultMaxDepth.
func (r TaskRequest) EffectiveMaxDepth() int {
	if r.Preferences != nil && r.Preferences.MaxSpawnDepth != nil {
		return *r.Preferences.MaxSpawnDepth
	}
	if r.Context != nil && r.Context.MaxDepth > 0 {
		return r.Context.MaxDepth
	}
	return DefaultMaxDepth
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
