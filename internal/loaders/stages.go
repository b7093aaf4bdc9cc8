package loaders

import (
	"context"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Sync returns a stage that loads in the calling goroutine.
func (t *Templates) Sync() loader.SyncFunc {
	return func(ctx context.Context, in any, locals record.Locals) (any, error) {
		set, err := t.Load(ctx, in, locals)
		if err != nil {
			return nil, err
		}
		return set, nil
	}
}

// Callback returns a stage that loads in a new goroutine and reports
// through done.
func (t *Templates) Callback() loader.CallbackFunc {
	return func(ctx context.Context, in any, locals record.Locals, done loader.DoneFunc) {
		go func() {
			set, err := t.Load(ctx, in, locals)
			if err != nil {
				done(err, nil)
				return
			}
			done(nil, set)
		}()
	}
}

// Deferred returns a stage that loads in a new goroutine and settles the
// returned future.
func (t *Templates) Deferred() loader.DeferredFunc {
	return func(ctx context.Context, in any, locals record.Locals) *async.Future[any] {
		f := async.NewFuture[any]()
		go func() {
			set, err := t.Load(ctx, in, locals)
			if err != nil {
				f.Reject(err)
				return
			}
			f.Resolve(set)
		}()
		return f
	}
}

// Stream returns a stage that emits one record set per target. Patterns
// emit one set per matched file, in path order.
func (t *Templates) Stream() loader.StreamFunc {
	return func(ctx context.Context, in any, locals record.Locals, emit func(any)) error {
		return t.each(ctx, in, locals, func(set record.Set) {
			if len(set) > 0 {
				emit(set)
			}
		})
	}
}

func (t *Templates) each(ctx context.Context, in any, locals record.Locals, fn func(record.Set)) error {
	switch v := in.(type) {
	case loader.Targets:
		if _, _, ok := literalPair(v); ok {
			break
		}
		for _, elem := range v {
			if err := t.each(ctx, elem, locals, fn); err != nil {
				return err
			}
		}
		return nil
	case string:
		return t.eachFile(ctx, []string{v}, locals, fn)
	case []string:
		return t.eachFile(ctx, v, locals, fn)
	case []any:
		if patterns, ok := allStrings(v); ok {
			return t.eachFile(ctx, patterns, locals, fn)
		}
		return t.each(ctx, loader.Targets(v), locals, fn)
	}

	set, err := t.Load(ctx, in, locals)
	if err != nil {
		return err
	}
	fn(set)
	return nil
}

func (t *Templates) eachFile(ctx context.Context, patterns []string, locals record.Locals, fn func(record.Set)) error {
	for _, pattern := range patterns {
		paths, err := t.expand(pattern)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := t.readFile(p)
			if err != nil {
				return err
			}
			fn(withLocals(record.Set{r.Path: r}, locals))
		}
	}
	return nil
}

// Stage returns the stage for conv.
func (t *Templates) Stage(conv loader.Convention) loader.Stage {
	switch conv {
	case loader.Callback:
		return t.Callback()
	case loader.Deferred:
		return t.Deferred()
	case loader.Stream:
		return t.Stream()
	default:
		return t.Sync()
	}
}

// Default returns the built-in stage for conv, resolving relative patterns
// against the working directory.
func Default(conv loader.Convention) loader.Stage {
	return New("").Stage(conv)
}
