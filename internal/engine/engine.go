package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/loadkit/internal/cache"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/loaders"
)

// Engine owns a loader registry, a record cache and the accessors of the
// collections created on it. Nothing is shared between engines.
//
// Thread-safety model:
//   - every exported method is safe for concurrent use
//   - merges into one collection are serialized by the cache; loads for the
//     same collection may overlap and the last merge to complete wins
type Engine struct {
	registry *loader.Registry
	cache    *cache.Cache
	clock    *Clock
	ids      IDGenerator
	logger   *slog.Logger
	journal  Journal
	tracer   trace.Tracer

	defaultLoader func(loader.Convention) loader.Stage
	loadTimeout   time.Duration
	defaults      []CollectionSpec

	mu          sync.RWMutex
	collections map[string]*Collection // by plural
	accessors   map[string]*Collection // by accessor name
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithJournal records every load in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithTracerProvider sets where load spans go. Default: the global
// OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithDefaultLoader sets the base stage used by collections created without
// an explicit chain. Default: loaders.Default.
func WithDefaultLoader(fn func(loader.Convention) loader.Stage) Option {
	return func(e *Engine) {
		if fn != nil {
			e.defaultLoader = fn
		}
	}
}

// WithLoadTimeout bounds every load. Zero means no bound beyond the
// caller's context.
func WithLoadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.loadTimeout = d
	}
}

// WithIDGenerator sets the load ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithDefaultCollections creates the given collections when the engine is
// built.
func WithDefaultCollections(specs ...CollectionSpec) Option {
	return func(e *Engine) {
		e.defaults = append(e.defaults, specs...)
	}
}

// WithClock sets the counter ad-hoc chain keys are drawn from.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an Engine. It fails only if a default collection is invalid.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		registry:      loader.NewRegistry(),
		cache:         cache.New(),
		clock:         NewClock(),
		ids:           UUIDv7Generator{},
		logger:        slog.Default(),
		journal:       nopJournal{},
		tracer:        otel.GetTracerProvider().Tracer(TracerName),
		defaultLoader: loaders.Default,
		collections:   make(map[string]*Collection),
		accessors:     make(map[string]*Collection),
	}

	for _, opt := range opts {
		opt(e)
	}

	for _, spec := range e.defaults {
		if _, err := e.CreateFrom(spec); err != nil {
			return nil, fmt.Errorf("default collection %q: %w", spec.Plural, err)
		}
	}
	return e, nil
}

// Registry returns the engine's loader registry.
func (e *Engine) Registry() *loader.Registry {
	return e.registry
}

// Cache returns the engine's record cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Reset clears every cached record. Collections, accessors and registered
// loaders are kept.
func (e *Engine) Reset() {
	e.cache.Reset()
	e.logger.Info("cache reset")
}

// Collection returns the collection created under plural.
func (e *Engine) Collection(plural string) (*Collection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[plural]
	return c, ok
}

// Collections returns every collection ordered by plural name.
func (e *Engine) Collections() []*Collection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Collection, 0, len(e.collections))
	for _, name := range slices.Sorted(maps.Keys(e.collections)) {
		out = append(out, e.collections[name])
	}
	return out
}

// State returns the state of the collection created under plural, or
// Uninitialized if there is none.
func (e *Engine) State(plural string) State {
	c, ok := e.Collection(plural)
	if !ok {
		return Uninitialized
	}
	return c.State()
}

// Accessors returns every installed accessor name in sorted order.
func (e *Engine) Accessors() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.accessors))
}

// Accessor returns the accessor installed under name.
func (e *Engine) Accessor(name string) (Accessor, bool) {
	e.mu.RLock()
	c, ok := e.accessors[name]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.Load, true
}

// Call invokes the accessor installed under name. An unknown name yields a
// failed result carrying an UnknownAccessorError.
func (e *Engine) Call(ctx context.Context, name string, args ...any) *Result {
	acc, ok := e.Accessor(name)
	if !ok {
		return failedResult(loader.Sync, "", &UnknownAccessorError{Name: name})
	}
	return acc(ctx, args...)
}

// Loader registers stages under name, appending to an existing chain of the
// same convention. Collections and other loaders can reach it through
// loader.Ref(name). Names containing '#' are reserved for ad-hoc chains and
// fail with loader.ErrInvalidEntry.
func (e *Engine) Loader(name string, conv loader.Convention, stages ...loader.Stage) error {
	if strings.ContainsRune(name, '#') {
		return fmt.Errorf("%w: loader name %q must not contain '#'", loader.ErrInvalidEntry, name)
	}
	if err := e.registry.Register(name, conv, stages...); err != nil {
		return err
	}
	e.logger.Debug("loader registered", "loader", name, "convention", conv.String(), "stages", len(stages))
	return nil
}

// LoadWith runs the loader registered under name without merging into any
// collection, and returns its records through a Result in the loader's
// convention. Arguments are classified as for an accessor.
func (e *Engine) LoadWith(ctx context.Context, name string, args ...any) *Result {
	entry, ok := e.registry.Lookup(name)
	if !ok {
		return failedResult(loader.Sync, "", &loader.UnknownLoaderError{Name: name})
	}
	return e.dispatch(ctx, nil, name, entry.Convention, args)
}
