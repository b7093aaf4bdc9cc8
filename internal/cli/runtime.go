package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loaders"
	"github.com/roach88/loadkit/internal/store"
)

// shutdownTimeout bounds span flushing and journal close on exit.
const shutdownTimeout = 5 * time.Second

// Runtime is an engine configured from RootOptions, with the journal and
// tracer behind it.
type Runtime struct {
	Engine    *engine.Engine
	Store     *store.Store // nil when no database is configured
	Templates *loaders.Templates

	closers []func(context.Context) error
}

// openRuntime builds the engine for a command. Extra options apply after
// the configured ones.
func (o *RootOptions) openRuntime(stderr io.Writer, extra ...engine.Option) (*Runtime, error) {
	cfg := o.Config
	rt := &Runtime{Templates: loaders.New(cfg.BaseDir)}

	specs, err := cfg.Specs()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid collections", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(o.Logger),
		engine.WithDefaultLoader(rt.Templates.Stage),
		engine.WithDefaultCollections(specs...),
	}
	if cfg.LoadTimeout > 0 {
		engineOpts = append(engineOpts, engine.WithLoadTimeout(cfg.LoadTimeout))
	}

	if cfg.Database != "" {
		st, err := store.Open(cfg.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		rt.Store = st
		rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })
		engineOpts = append(engineOpts, engine.WithJournal(st))
	}

	if cfg.Trace {
		tp, err := newTracerProvider(stderr)
		if err != nil {
			rt.Close()
			return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
		}
		rt.closers = append(rt.closers, tp.Shutdown)
		engineOpts = append(engineOpts, engine.WithTracerProvider(tp))
	}

	rt.Engine, err = engine.New(append(engineOpts, extra...)...)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	return rt, nil
}

// Close flushes spans and closes the journal, in reverse order of setup.
func (rt *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "loadkit"))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSyncer(exporter),
	), nil
}
