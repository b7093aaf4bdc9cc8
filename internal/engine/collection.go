package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Accessor loads into a collection. Arguments are classified by Classify.
type Accessor func(ctx context.Context, args ...any) *Result

// State is the lifecycle state of a collection.
type State int

const (
	// Uninitialized collections have not been created.
	Uninitialized State = iota
	// Registered collections have been created but never loaded.
	Registered
	// Loading collections have at least one load in flight.
	Loading
	// Idle collections have completed at least one load, successfully or
	// not, and have none in flight.
	Idle
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Registered:
		return "registered"
	case Loading:
		return "loading"
	case Idle:
		return "idle"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	Singular   string
	Plural     string
	Convention loader.Convention
	// Chain replaces the engine's default loader when non-empty.
	Chain []loader.Stage
}

// CollectionOption configures Create.
type CollectionOption func(*CollectionSpec)

// WithConvention sets the collection's convention. Default: Sync.
func WithConvention(c loader.Convention) CollectionOption {
	return func(s *CollectionSpec) {
		s.Convention = c
	}
}

// WithChain sets an explicit loader chain instead of the engine's default
// loader.
func WithChain(stages ...loader.Stage) CollectionOption {
	return func(s *CollectionSpec) {
		s.Chain = append(s.Chain, stages...)
	}
}

// Collection is a named cache slot with its registered chain and accessors.
type Collection struct {
	engine *Engine
	plural string

	mu       sync.RWMutex
	singular string
	conv     loader.Convention

	inflight atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// Create registers a collection and installs its singular and plural
// accessors. The cache slot is created if absent. Creating a plural that
// already exists replaces its convention, chain and singular alias; records
// already cached are kept.
func (e *Engine) Create(singular, plural string, opts ...CollectionOption) (*Collection, error) {
	spec := CollectionSpec{Singular: singular, Plural: plural}
	for _, opt := range opts {
		opt(&spec)
	}
	return e.CreateFrom(spec)
}

// CreateFrom is Create driven by a CollectionSpec.
func (e *Engine) CreateFrom(spec CollectionSpec) (*Collection, error) {
	if err := validateNames(spec); err != nil {
		return nil, err
	}
	if spec.Singular == "" {
		spec.Singular = spec.Plural
	}

	chain := spec.Chain
	if len(chain) == 0 {
		chain = []loader.Stage{e.defaultLoader(spec.Convention)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range []string{spec.Singular, spec.Plural} {
		if other, ok := e.accessors[name]; ok && other.plural != spec.Plural {
			return nil, fmt.Errorf("%w: accessor %q already belongs to collection %q",
				loader.ErrInvalidEntry, name, other.plural)
		}
	}

	if err := e.registry.Replace(spec.Plural, spec.Convention, chain...); err != nil {
		return nil, err
	}
	e.cache.Ensure(spec.Plural)

	c, exists := e.collections[spec.Plural]
	if !exists {
		c = &Collection{engine: e, plural: spec.Plural}
		e.collections[spec.Plural] = c
	}

	c.mu.Lock()
	if c.singular != "" && c.singular != spec.Singular {
		delete(e.accessors, c.singular)
	}
	c.singular = spec.Singular
	c.conv = spec.Convention
	c.mu.Unlock()

	e.accessors[spec.Plural] = c
	e.accessors[spec.Singular] = c

	e.logger.Debug("collection created",
		"collection", spec.Plural,
		"singular", spec.Singular,
		"convention", spec.Convention.String(),
		"stages", len(chain),
		"replaced", exists,
	)
	return c, nil
}

func validateNames(spec CollectionSpec) error {
	if spec.Plural == "" {
		return fmt.Errorf("%w: collection needs a plural name", loader.ErrInvalidEntry)
	}
	for _, name := range []string{spec.Singular, spec.Plural} {
		if strings.ContainsRune(name, '#') {
			return fmt.Errorf("%w: collection name %q must not contain '#'", loader.ErrInvalidEntry, name)
		}
	}
	if !spec.Convention.Valid() {
		return fmt.Errorf("%w: collection %q has invalid convention %d",
			loader.ErrInvalidEntry, spec.Plural, int(spec.Convention))
	}
	return nil
}

// Plural returns the collection's plural name, which is also its cache slot
// and registry entry name.
func (c *Collection) Plural() string {
	return c.plural
}

// Singular returns the collection's singular alias.
func (c *Collection) Singular() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.singular
}

// Convention returns the collection's current convention.
func (c *Collection) Convention() loader.Convention {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conv
}

// State returns the collection's lifecycle state.
func (c *Collection) State() State {
	switch {
	case c.inflight.Load() > 0:
		return Loading
	case c.loads.Load() > 0:
		return Idle
	default:
		return Registered
	}
}

// Stats returns the number of completed and failed loads.
func (c *Collection) Stats() (loads, failures int64) {
	return c.loads.Load(), c.failures.Load()
}

// Load dispatches a load into the collection. It is the accessor installed
// under both the singular and plural names.
func (c *Collection) Load(ctx context.Context, args ...any) *Result {
	return c.engine.dispatch(ctx, c, c.plural, c.Convention(), args)
}

// Records returns a snapshot of the collection's cached records.
func (c *Collection) Records() record.Set {
	return c.engine.cache.Snapshot(c.plural)
}

// Chain returns the collection's registered chain, Refs unexpanded.
func (c *Collection) Chain() []loader.Stage {
	entry, ok := c.engine.registry.Lookup(c.plural)
	if !ok {
		return nil
	}
	return entry.Chain
}

func (c *Collection) begin() {
	c.inflight.Add(1)
}

func (c *Collection) end(err error) {
	if err != nil {
		c.failures.Add(1)
	}
	c.loads.Add(1)
	c.inflight.Add(-1)
}
