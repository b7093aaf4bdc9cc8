package engine

import (
	"strconv"
	"sync/atomic"
)

// Clock is a monotonic counter. The engine draws ad-hoc chain key suffixes
// from it, so every call that carries its own stages gets a distinct
// registry key for the lifetime of the engine.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first Next returns start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out, or the start value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Keys returns a fresh pair of ad-hoc registry keys for name: the composed
// chain key "<name>#<n>" and the key of its ad-hoc stages, "<name>#<n>.local".
func (c *Clock) Keys(name string) (key, local string) {
	key = name + "#" + strconv.FormatInt(c.Next(), 10)
	return key, key + ".local"
}
