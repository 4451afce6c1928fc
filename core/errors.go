package core

import "fmt"

// DepthExceededError reports a spawn or dispatch that would exceed the
// recursion ceiling. It is fatal for the request that triggered it: no
// partial work is performed, and the error is never retried or recovered.
type DepthExceededError struct {
	Current int
	Max     int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("recursion depth %d exceeds maximum %d", e.Current, e.Max)
}

// UnknownInstrumentError reports a lookup for an instrument name that is not
// registered. It is a configuration error and fatal to the execution that
// performed the lookup.
type UnknownInstrumentError struct {
	Name string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("unknown instrument %q", e.Name)
}

// UnknownMergeInstrumentError reports a fan-in composition whose merge step
// names an unregistered instrument. Detected before any branch is launched.
type UnknownMergeInstrumentError struct {
	Name string
}

func (e *UnknownMergeInstrumentError) Error() string {
	return fmt.Sprintf("unknown merge instrument %q", e.Name)
}

// UnknownNodeError reports an operation against a node id the registry has
// never seen. Heartbeats do not implicitly re-register nodes.
type UnknownNodeError struct {
	ID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.ID)
}
