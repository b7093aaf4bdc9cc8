package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// run executes one resolved plan. A plan runs either as a single-result
// chain, producing a future, or as a stream chain, producing a stream. Each
// stage starts only once the previous stage has signalled completion.
type run struct {
	id         string
	collection string
	conv       loader.Convention
	plan       loader.Plan
	locals     record.Locals
}

// single runs every step in order, feeding each output to the next step.
func (r *run) single(ctx context.Context, in any) *async.Future[any] {
	out := async.NewFuture[any]()

	var step func(i int, v any)
	step = func(i int, v any) {
		if i == len(r.plan.Steps) {
			out.Resolve(v)
			return
		}
		if err := ctx.Err(); err != nil {
			out.Reject(r.stageError(ctx, i, err))
			return
		}
		guard(ctx, invoke(ctx, r.plan.Steps[i].Stage, v, r.locals)).OnComplete(func(v any, err error) {
			if err != nil {
				out.Reject(r.stageError(ctx, i, err))
				return
			}
			step(i+1, v)
		})
	}
	step(0, in)
	return out
}

// stream runs the plan as a pipeline. Stream steps are called once per
// incoming item; single-result steps map each item to at most one output,
// and a nil output drops the item.
func (r *run) stream(ctx context.Context, in any) *async.Stream[any] {
	src := async.NewStream[any]()
	src.Emit(in)
	src.Close(nil)

	cur := src
	for i := range r.plan.Steps {
		cur = r.pipe(ctx, i, cur)
	}
	return cur
}

func (r *run) pipe(ctx context.Context, i int, in *async.Stream[any]) *async.Stream[any] {
	out := async.NewStream[any]()
	st := r.plan.Steps[i].Stage

	go func() {
		err := in.Each(ctx, func(v any) error {
			if sf, ok := st.(loader.StreamFunc); ok {
				if err := invokeStream(ctx, sf, v, r.locals, func(o any) { out.Emit(o) }); err != nil {
					return r.stageError(ctx, i, err)
				}
				return nil
			}
			o, err := guard(ctx, invoke(ctx, st, v, r.locals)).Await(ctx)
			if err != nil {
				return r.stageError(ctx, i, err)
			}
			if o != nil {
				out.Emit(o)
			}
			return nil
		})
		if err != nil && !IsLoadError(err) {
			err = r.stageError(ctx, i, err)
		}
		out.Close(err)
	}()
	return out
}

// stageError wraps err as a LoadError attributed to step i.
func (r *run) stageError(ctx context.Context, i int, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}

	code := ErrCodeStageFailed
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		code = ErrCodeStagePanic
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		code = ErrCodeCanceled
	}

	step := r.plan.Steps[i]
	return &LoadError{
		Code:       code,
		Collection: r.collection,
		Loader:     step.Loader,
		Stage:      i,
		Convention: r.conv,
		LoadID:     r.id,
		Err:        err,
	}
}

// outputError wraps an error about the chain's final output.
func (r *run) outputError(err error) error {
	return &LoadError{
		Code:       ErrCodeInvalidOutput,
		Collection: r.collection,
		Loader:     r.plan.Name,
		Stage:      -1,
		Convention: r.conv,
		LoadID:     r.id,
		Err:        err,
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("stage panicked: %v", e.value)
}

// invoke calls a single-result stage and returns its completion as a future.
func invoke(ctx context.Context, st loader.Stage, in any, locals record.Locals) (f *async.Future[any]) {
	defer func() {
		if p := recover(); p != nil {
			f = async.Rejected[any](&panicError{value: p})
		}
	}()

	switch fn := st.(type) {
	case loader.SyncFunc:
		f = async.NewFuture[any]()
		f.Settle(fn(ctx, in, locals))
		return f
	case loader.CallbackFunc:
		f = async.NewFuture[any]()
		fn(ctx, in, locals, func(err error, out any) {
			f.Settle(out, err)
		})
		return f
	case loader.DeferredFunc:
		inner := fn(ctx, in, locals)
		if inner == nil {
			return async.Resolved[any](nil)
		}
		return inner
	default:
		return async.Rejected[any](fmt.Errorf("stage %T cannot produce a single result", st))
	}
}

func invokeStream(ctx context.Context, fn loader.StreamFunc, in any, locals record.Locals, emit func(any)) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return fn(ctx, in, locals, emit)
}

// guard returns a future that settles like f, or with ctx's error once ctx
// is done. A stage that never signals completion therefore cannot outlive
// its load's context.
func guard(ctx context.Context, f *async.Future[any]) *async.Future[any] {
	if ctx.Done() == nil {
		return f
	}
	select {
	case <-f.Done():
		return f
	default:
	}

	out := async.NewFuture[any]()
	f.OnComplete(func(v any, err error) {
		out.Settle(v, err)
	})
	go func() {
		select {
		case <-out.Done():
		case <-ctx.Done():
			out.Reject(ctx.Err())
		}
	}()
	return out
}
