package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Literal returns a sync stage that ignores its input and returns set.
func Literal(set record.Set) loader.SyncFunc {
	return func(context.Context, any, record.Locals) (any, error) {
		return set, nil
	}
}

// Invocation is one recorded stage call.
type Invocation struct {
	Stage  string
	In     any
	Locals record.Locals
}

// Recorder records stage invocations in call order.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Invocation
}

// Sync returns a sync stage named name that records each call and returns
// fn(in). A nil fn passes the input through.
func (r *Recorder) Sync(name string, fn func(in any) any) loader.SyncFunc {
	return func(_ context.Context, in any, locals record.Locals) (any, error) {
		r.record(name, in, locals)
		if fn == nil {
			return in, nil
		}
		return fn(in), nil
	}
}

func (r *Recorder) record(name string, in any, locals record.Locals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Invocation{Stage: name, In: in, Locals: locals})
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.calls...)
}

// Names returns the recorded stage names in call order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Stage
	}
	return out
}

// Gate is a deferred stage whose completions the test controls. Every
// invocation parks a pending future; Release and Fail settle them by
// invocation index.
type Gate struct {
	mu      sync.Mutex
	pending []*async.Future[any]
	inputs  []any
	started chan struct{}
}

// NewGate creates a gate.
func NewGate() *Gate {
	return &Gate{started: make(chan struct{}, 1)}
}

// Stage returns the gate's deferred stage.
func (g *Gate) Stage() loader.DeferredFunc {
	return func(_ context.Context, in any, _ record.Locals) *async.Future[any] {
		f := async.NewFuture[any]()
		g.mu.Lock()
		g.pending = append(g.pending, f)
		g.inputs = append(g.inputs, in)
		g.mu.Unlock()
		select {
		case g.started <- struct{}{}:
		default:
		}
		return f
	}
}

// WaitStarted blocks until n invocations have started or timeout passes,
// and reports whether they did.
func (g *Gate) WaitStarted(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		g.mu.Lock()
		got := len(g.pending)
		g.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-g.started:
		case <-deadline:
			return false
		}
	}
}

// Input returns the input of invocation i.
func (g *Gate) Input(i int) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inputs[i]
}

// Release resolves invocation i with v.
func (g *Gate) Release(i int, v any) {
	g.future(i).Resolve(v)
}

// Fail rejects invocation i with err.
func (g *Gate) Fail(i int, err error) {
	g.future(i).Reject(err)
}

func (g *Gate) future(i int) *async.Future[any] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[i]
}
