package loader

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is one registered loader.
type Entry struct {
	Name       string
	Convention Convention
	// Chain is the registered stage chain, Refs unexpanded.
	Chain []Stage
}

// Plan is a resolved entry: every Ref expanded into the steps it names.
type Plan struct {
	Name       string
	Convention Convention
	Steps      []Step
}

// Check verifies that every step of the plan can run under conv.
func (p Plan) Check(conv Convention) error {
	if conv == Stream {
		return nil
	}
	for _, s := range p.Steps {
		if s.Convention() == Stream {
			return &StageMismatchError{Loader: s.Loader, Convention: conv, Stage: Stream}
		}
	}
	return nil
}

// Registry maps loader names to stage chains.
//
// Thread-safety: all methods are safe for concurrent use. Resolved plans are
// memoized in a go-cache instance that is flushed on every mutation; the
// write lock is held while flushing, so a stale plan is never stored.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	plans   *gocache.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		plans:   gocache.New(gocache.NoExpiration, 0),
	}
}

// Register stores stages under name, or appends them to the existing chain
// when name is already registered with the same convention. Registering a
// name under a different convention fails with DuplicateRegistrationError.
func (r *Registry) Register(name string, conv Convention, stages ...Stage) error {
	if err := validate(name, conv, stages); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		if existing.Convention != conv {
			return &DuplicateRegistrationError{Name: name, Existing: existing.Convention, Requested: conv}
		}
		existing.Chain = append(existing.Chain, stages...)
		r.plans.Flush()
		return nil
	}

	r.entries[name] = &Entry{Name: name, Convention: conv, Chain: slices.Clone(stages)}
	r.plans.Flush()
	return nil
}

// Add stores stages under a name that is not registered yet. Unlike
// Register it never extends an existing chain: any existing entry fails the
// call with DuplicateRegistrationError and is left as it was.
func (r *Registry) Add(name string, conv Convention, stages ...Stage) error {
	if err := validate(name, conv, stages); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok {
		return &DuplicateRegistrationError{Name: name, Existing: existing.Convention, Requested: conv}
	}
	r.entries[name] = &Entry{Name: name, Convention: conv, Chain: slices.Clone(stages)}
	r.plans.Flush()
	return nil
}

// Replace stores stages under name, discarding any previous entry whatever
// its convention.
func (r *Registry) Replace(name string, conv Convention, stages ...Stage) error {
	if err := validate(name, conv, stages); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[name] = &Entry{Name: name, Convention: conv, Chain: slices.Clone(stages)}
	r.plans.Flush()
	return nil
}

// Unregister removes name. It is a no-op for unknown names.
func (r *Registry) Unregister(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		delete(r.entries, name)
	}
	r.plans.Flush()
}

// Lookup returns a copy of the registered entry, Refs unexpanded.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return Entry{Name: e.Name, Convention: e.Convention, Chain: slices.Clone(e.Chain)}, true
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve expands name into a flat plan.
//
// Errors:
//   - UnknownLoaderError if name, or any name it references, is not registered
//   - CyclicChainError if references loop back on themselves
//   - StageMismatchError if a single-result entry references a Stream entry
func (r *Registry) Resolve(name string) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cached, ok := r.plans.Get(name); ok {
		return cached.(Plan), nil
	}

	root, ok := r.entries[name]
	if !ok {
		return Plan{}, &UnknownLoaderError{Name: name}
	}

	var steps []Step
	if err := r.expand(name, root.Convention, nil, &steps); err != nil {
		return Plan{}, err
	}

	plan := Plan{Name: name, Convention: root.Convention, Steps: steps}
	r.plans.Set(name, plan, gocache.NoExpiration)
	return plan, nil
}

// expand appends the steps of name to out. path holds the names currently
// being expanded; finding name on it means the chain loops.
// Callers must hold r.mu.
func (r *Registry) expand(name string, conv Convention, path []string, out *[]Step) error {
	if i := slices.Index(path, name); i >= 0 {
		cycle := append(slices.Clone(path[i:]), name)
		return &CyclicChainError{Path: cycle}
	}

	e, ok := r.entries[name]
	if !ok {
		ue := &UnknownLoaderError{Name: name}
		if len(path) > 0 {
			ue.Referrer = path[len(path)-1]
		}
		return ue
	}
	if e.Convention == Stream && conv != Stream {
		return &StageMismatchError{Loader: name, Convention: conv, Stage: Stream}
	}

	path = append(path, name)
	for i, st := range e.Chain {
		if ref, ok := st.(Ref); ok {
			if err := r.expand(string(ref), conv, path, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, Step{Stage: st, Loader: name, Index: i})
	}
	return nil
}

func validate(name string, conv Convention, stages []Stage) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if !conv.Valid() {
		return fmt.Errorf("%w: %q has invalid convention %d", ErrInvalidEntry, name, int(conv))
	}
	if len(stages) == 0 {
		return fmt.Errorf("%w: %q has no stages", ErrInvalidEntry, name)
	}
	for i, st := range stages {
		if _, ok := AsStage(st); !ok {
			return fmt.Errorf("%w: %q stage %d is nil or empty", ErrInvalidEntry, name, i)
		}
		if c, ok := ConventionOf(st); ok && c == Stream && conv != Stream {
			return &StageMismatchError{Loader: name, Convention: conv, Stage: Stream}
		}
	}
	return nil
}
