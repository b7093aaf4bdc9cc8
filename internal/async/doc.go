// Package async provides the two completion primitives every loader
// convention is adapted onto.
//
// Future is a single-result value that settles exactly once, either
// resolved with a value or rejected with an error. Stream is an ordered,
// unbounded sequence of values that ends exactly once, either cleanly or
// with an error.
//
// Both types are safe for concurrent use. Neither starts goroutines on its
// own: completion callbacks run in the goroutine that settles the future,
// and stream consumers pull values with Next.
package async
