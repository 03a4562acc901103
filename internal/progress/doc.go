// Package progress tracks multi-step operations with weighted steps.
//
// Callers register an operation with named, weighted steps and report step
// transitions around the work they perform; the tracker derives overall
// progress, elapsed time and a rough time-remaining estimate. Observation
// is unified behind one record: Subscribe pushes a fresh Snapshot to
// observers after every state change, and Snapshot pulls the same derived
// view on demand.
//
// The tracker holds no opinion about what the steps do and never fails an
// operation itself; callers are the source of truth for what failed.
package progress
