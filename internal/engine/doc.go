// Package engine dispatches loads into named collections.
//
// An Engine owns a loader.Registry and a cache.Cache. Create registers a
// collection's chain under its plural name and installs two accessors, the
// plural and its singular alias, in the engine's accessor table. Calling an
// accessor (directly, or through Engine.Call) classifies the arguments,
// resolves the chain, runs it under the effective convention and merges the
// produced records into the collection's cache slot.
//
// Conventions:
//
//	Sync      blocks; records are merged before the accessor returns
//	Callback  returns at once; records are merged before the completion
//	          function is called
//	Deferred  returns at once; records are merged before Result.Future settles
//	Stream    returns at once; each event is merged before Result.Stream
//	          delivers it
//
// All four run on the same machinery: a chain is either a single-result
// async.Future or an async.Stream, and each convention is a thin adapter
// that decides when the caller observes completion.
//
// Ad-hoc stages passed at the call site run after the collection's chain.
// They are registered under a fresh "<plural>#<n>" key for the duration of
// resolution, so concurrent calls never run each other's stages.
package engine
