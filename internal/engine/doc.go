// Package engine implements the reactive dataflow runtime at the heart of
// cellgrid: a Module of named variables whose values are recomputed
// automatically, in dependency order, whenever one of their inputs changes.
//
// # Model
//
// A Module owns the name table mapping each output name to the variable
// currently providing it, plus the dependency edges between variables.
// Definitions are ingested with Define/Redefine; each declares its input
// names and a compute function. Input names are resolved against the name
// table at define time; a name that is not yet known resolves to a
// placeholder variable, so forward references bind automatically once the
// referenced name is defined.
//
// # Scheduling
//
// Every definition change or stream emission marks variables dirty. A
// background dispatcher turns each dirty root into a pass over its
// transitive dependent closure, ordered Kahn-style by in-closure
// dependencies, with ready members running concurrently. Passes themselves
// also run concurrently whenever their closures are independent; a root
// whose closure shares a member with an in-flight pass, or reads an input
// one is still computing, stays queued until that pass completes. A slow
// computation therefore delays only its own dependents, never an unrelated
// subgraph, and structural mutations never touch an in-progress closure.
//
// # Staleness
//
// There is no cancellation: a superseded computation runs to completion and
// its result is discarded by the variable's generation check. Stream pumps
// are the one exception; they stop pumping as soon as they observe a stale
// generation, which strictly preserves the no-double-deliver guarantee.
//
// # Failure
//
// A rejected input rejects its dependents with a DependencyError, one wrap
// per hop, without invoking their compute. A compute error or panic rejects
// only its own variable. The dispatcher itself never aborts on a variable
// failure, and no panic escapes it.
package engine
