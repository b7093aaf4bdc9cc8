// Package cache holds the per-engine record cache: one record.Set per
// collection, mutated only by merges.
package cache

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/loadkit/internal/record"
)

// ErrUnknownCollection is returned when merging into a collection that has
// no slot.
var ErrUnknownCollection = errors.New("cache: unknown collection")

// MergeResult describes one merge.
type MergeResult struct {
	Collection string
	// Seq is the cache-wide merge sequence number, strictly increasing in
	// completion order.
	Seq int64
	// Added counts keys that were not present before.
	Added int
	// Updated counts keys whose record changed.
	Updated int
	// Unchanged counts keys overwritten with an equal record.
	Unchanged int
}

// Total returns the number of records written by the merge.
func (m MergeResult) Total() int {
	return m.Added + m.Updated + m.Unchanged
}

// Cache maps collection names to record sets.
//
// Each collection has its own lock, so merges into one collection never
// wait on, or observe, merges into another. Merges into the same collection
// are serialized; the last merge to complete wins on overlapping keys.
type Cache struct {
	mu    sync.RWMutex
	slots map[string]*slot
	seq   atomic.Int64
}

type slot struct {
	mu      sync.Mutex
	records record.Set
	lastSeq int64
	merges  int
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{slots: make(map[string]*slot)}
}

// Ensure creates an empty slot for name if none exists. It reports whether a
// slot was created; an existing slot and its records are left untouched.
func (c *Cache) Ensure(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[name]; ok {
		return false
	}
	c.slots[name] = &slot{records: record.Set{}}
	return true
}

// Has reports whether name has a slot.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.slots[name]
	return ok
}

func (c *Cache) slot(name string) (*slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[name]
	return s, ok
}

// Merge writes a copy of set into the named collection, last-write-wins per
// key. Later changes to set or its record data do not reach the cache.
// An empty set is a successful no-op that still consumes a sequence number.
func (c *Cache) Merge(name string, set record.Set) (MergeResult, error) {
	s, ok := c.slot(name)
	if !ok {
		return MergeResult{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := MergeResult{Collection: name, Seq: c.seq.Add(1)}
	for key, r := range set {
		old, exists := s.records[key]
		switch {
		case !exists:
			res.Added++
		case old.Equal(r):
			res.Unchanged++
		default:
			res.Updated++
		}
		s.records[key] = r.Clone()
	}
	s.lastSeq = res.Seq
	s.merges++
	return res, nil
}

// Get returns one record.
func (c *Cache) Get(name, key string) (record.Record, bool) {
	s, ok := c.slot(name)
	if !ok {
		return record.Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r.Clone(), ok
}

// Snapshot returns a deep copy of a collection's records, or nil if the
// collection has no slot.
func (c *Cache) Snapshot(name string) record.Set {
	s, ok := c.slot(name)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Clone()
}

// All returns a copy of every collection.
func (c *Cache) All() map[string]record.Set {
	out := make(map[string]record.Set)
	for _, name := range c.Collections() {
		out[name] = c.Snapshot(name)
	}
	return out
}

// Len returns the number of records in a collection.
func (c *Cache) Len(name string) int {
	s, ok := c.slot(name)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Stats returns the number of merges applied to a collection and the
// sequence number of the latest one.
func (c *Cache) Stats(name string) (merges int, lastSeq int64) {
	s, ok := c.slot(name)
	if !ok {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merges, s.lastSeq
}

// Collections returns every collection name in sorted order.
func (c *Cache) Collections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.slots))
}

// Reset empties every collection. Slots survive so that collections created
// before the reset keep accepting merges.
func (c *Cache) Reset() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.slots {
		s.mu.Lock()
		s.records = record.Set{}
		s.merges = 0
		s.lastSeq = 0
		s.mu.Unlock()
	}
}
