package loader

import (
	"context"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/record"
)

// Stage is one step of a loader chain. The set of implementations is
// closed: SyncFunc, CallbackFunc, DeferredFunc, StreamFunc and Ref.
type Stage interface {
	stage()
}

// DoneFunc is the completion signal of the Callback convention.
type DoneFunc func(err error, out any)

// SyncFunc transforms in into its output and returns it.
type SyncFunc func(ctx context.Context, in any, locals record.Locals) (any, error)

// CallbackFunc transforms in and reports the output through done. done may
// be called from any goroutine, but only the first call counts.
type CallbackFunc func(ctx context.Context, in any, locals record.Locals, done DoneFunc)

// DeferredFunc transforms in and returns a future for the output.
type DeferredFunc func(ctx context.Context, in any, locals record.Locals) *async.Future[any]

// StreamFunc is called once per incoming item and calls emit for each output
// item. It returns when it has finished with in; a non-nil error ends the
// stream with that error.
type StreamFunc func(ctx context.Context, in any, locals record.Locals, emit func(any)) error

// Ref splices the chain of another registered loader into this chain.
type Ref string

func (SyncFunc) stage()     {}
func (CallbackFunc) stage() {}
func (DeferredFunc) stage() {}
func (StreamFunc) stage()   {}
func (Ref) stage()          {}

// ConventionOf returns the convention a stage completes with. Refs have no
// convention of their own and report ok=false.
func ConventionOf(s Stage) (c Convention, ok bool) {
	switch s.(type) {
	case SyncFunc:
		return Sync, true
	case CallbackFunc:
		return Callback, true
	case DeferredFunc:
		return Deferred, true
	case StreamFunc:
		return Stream, true
	default:
		return 0, false
	}
}

// AsStage converts a bare function of one of the four stage shapes, or a
// Stage value, into a Stage. ok is false for anything else.
func AsStage(v any) (Stage, bool) {
	switch fn := v.(type) {
	case nil:
		return nil, false
	case SyncFunc:
		return fn, fn != nil
	case CallbackFunc:
		return fn, fn != nil
	case DeferredFunc:
		return fn, fn != nil
	case StreamFunc:
		return fn, fn != nil
	case Ref:
		return fn, fn != ""
	case func(context.Context, any, record.Locals) (any, error):
		return SyncFunc(fn), fn != nil
	case func(context.Context, any, record.Locals, DoneFunc):
		return CallbackFunc(fn), fn != nil
	case func(context.Context, any, record.Locals, func(error, any)):
		if fn == nil {
			return nil, false
		}
		return CallbackFunc(func(ctx context.Context, in any, locals record.Locals, done DoneFunc) {
			fn(ctx, in, locals, done)
		}), true
	case func(context.Context, any, record.Locals) *async.Future[any]:
		return DeferredFunc(fn), fn != nil
	case func(context.Context, any, record.Locals, func(any)) error:
		return StreamFunc(fn), fn != nil
	default:
		return nil, false
	}
}

// Step is one stage of a resolved plan, annotated with where it came from.
type Step struct {
	// Stage is the executable stage. It is never a Ref.
	Stage Stage
	// Loader is the name of the entry that registered the stage.
	Loader string
	// Index is the stage's position within that entry's chain.
	Index int
}

// Convention returns the step's completion convention.
func (s Step) Convention() Convention {
	c, _ := ConventionOf(s.Stage)
	return c
}

// Targets is the input of a chain's first stage when a call passes more than
// one positional load target, such as a key and its literal content. A call
// with exactly one target passes that value unchanged.
type Targets []any
