// Package loader defines loader stages, calling conventions, and the
// registry that maps loader names to stage chains.
//
// # Conventions
//
// A loader completes in one of four ways:
//
//   - Sync: the stage returns its output
//   - Callback: the stage calls a DoneFunc with (err, output)
//   - Deferred: the stage returns an async.Future that settles later
//   - Stream: the stage is called once per incoming item and emits zero or
//     more output items
//
// # Chains
//
// An Entry holds an ordered chain of stages. The first stage is the base
// loader and receives the load targets; every later stage receives the
// previous stage's output. A Ref stage names another registered entry whose
// chain is spliced in when the entry is resolved.
//
// Single-result stages (Sync, Callback, Deferred) may appear in any chain.
// Stream stages only appear in Stream chains, because a single-result chain
// has nowhere to deliver a second item.
//
// # Resolution
//
// Resolve expands Ref stages depth-first into a flat Plan and rejects
// references that loop back on themselves. Plans are memoized until the
// registry next changes.
package loader
