// Package core provides the foundational domain types and interfaces used by
// Maestro. It defines the core abstractions for:
//
//   - Instruments (named, capability-tagged units of work)
//   - Task requests and contexts (immutable values flowing through a dispatch)
//   - Instrument results (outcome, findings, confidence, provenance)
//   - Compositions (executable aggregates of instruments)
//   - Nodes / rooms (execution locations with capability sets and health)
//   - Delegation and privacy-classification collaborator interfaces
//
// The package intentionally keeps implementation concerns (the conductor,
// concrete compositions, the node registry, transports) out of scope,
// exposing small interfaces to enable custom backends and extensions.
package core
