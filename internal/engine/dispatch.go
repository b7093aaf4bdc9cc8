package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// dispatch classifies args, resolves the chain for name and runs it under
// the call's convention. coll is nil for standalone loads, whose records
// are returned but merged nowhere.
//
// Merge timing per convention:
//   - Sync: merged before dispatch returns; an error means no merge
//   - Callback: merged before the completion function is called
//   - Deferred: merged before the result's future settles
//   - Stream: each event merged before it is forwarded; an error event is
//     forwarded without merging and earlier merges stay
//
// A Callback call rejected before it starts gets its error back through
// Result.Err and, asynchronously, through its trailing completion function.
// That holds for bad arguments and for resolution failures alike.
func (e *Engine) dispatch(ctx context.Context, coll *Collection, name string, conv loader.Convention, args []any) *Result {
	collection := ""
	if coll != nil {
		collection = coll.plural
	}

	call, err := Classify(conv, args...)
	if err != nil {
		e.logger.Warn("load rejected", "collection", collection, "loader", name, "error", err)
		if done := trailingDone(conv, args); done != nil {
			go done(err, nil)
		}
		return failedResult(conv, collection, err)
	}

	plan, err := e.plan(name, call)
	if err != nil {
		e.logger.Warn("load rejected", "collection", collection, "loader", name, "error", err)
		res := failedResult(call.Convention, collection, err)
		if call.Done != nil {
			go call.Done(err, nil)
		}
		return res
	}

	r := &run{
		id:         e.ids.Generate(),
		collection: collection,
		conv:       call.Convention,
		plan:       plan,
		locals:     call.Locals,
	}

	ctx, cancel := e.loadContext(ctx)
	ctx, span := e.startSpan(ctx, r, len(call.Stages))
	l := &load{
		engine: e,
		coll:   coll,
		run:    r,
		call:   call,
		span:   span,
		cancel: cancel,
	}
	l.begin(ctx)

	if call.Convention == loader.Stream {
		return l.runStream(ctx)
	}
	return l.runSingle(ctx)
}

// plan resolves name for call. Ad-hoc stages are registered under a fresh
// "<name>#<n>.local" key, composed with the base chain under "<name>#<n>",
// resolved, and unregistered again so the registry never grows per call.
// Both keys are added fresh; an entry someone else put under either name is
// neither extended nor removed.
func (e *Engine) plan(name string, call Call) (loader.Plan, error) {
	if len(call.Stages) == 0 {
		plan, err := e.registry.Resolve(name)
		if err != nil {
			return loader.Plan{}, err
		}
		if err := plan.Check(call.Convention); err != nil {
			return loader.Plan{}, err
		}
		return plan, nil
	}

	key, local := e.clock.Keys(name)

	if err := e.registry.Add(local, call.Convention, call.Stages...); err != nil {
		return loader.Plan{}, err
	}
	defer e.registry.Unregister(local)
	if err := e.registry.Add(key, call.Convention, loader.Ref(name), loader.Ref(local)); err != nil {
		return loader.Plan{}, err
	}
	defer e.registry.Unregister(key)
	plan, err := e.registry.Resolve(key)
	if err != nil {
		return loader.Plan{}, err
	}
	if err := plan.Check(call.Convention); err != nil {
		return loader.Plan{}, err
	}
	return plan, nil
}

func (e *Engine) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.loadTimeout > 0 {
		return context.WithTimeout(ctx, e.loadTimeout)
	}
	return context.WithCancel(ctx)
}

// load is the bookkeeping around one running plan.
type load struct {
	engine *Engine
	coll   *Collection
	run    *run
	call   Call
	span   trace.Span
	cancel context.CancelFunc

	records int
	merges  int
}

func (l *load) begin(ctx context.Context) {
	e := l.engine
	if l.coll != nil {
		l.coll.begin()
	}
	e.logger.Debug("load dispatched",
		"load_id", l.run.id,
		"collection", l.run.collection,
		"loader", l.run.plan.Name,
		"convention", l.run.conv.String(),
		"steps", len(l.run.plan.Steps),
		"adhoc_stages", len(l.call.Stages),
	)
	err := e.journal.BeginLoad(context.WithoutCancel(ctx), LoadInfo{
		ID:         l.run.id,
		Collection: l.run.collection,
		Loader:     l.run.plan.Name,
		Convention: l.run.conv,
		Targets:    len(l.call.Targets),
		Adhoc:      len(l.call.Stages),
		Started:    time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("journal begin failed", "load_id", l.run.id, "error", err)
	}
}

// merge normalizes out and writes it into the collection.
func (l *load) merge(ctx context.Context, out any) (record.Set, error) {
	set, err := record.Normalize(out)
	if err != nil {
		return nil, l.run.outputError(err)
	}
	if set == nil {
		set = record.Set{}
	}
	l.records += len(set)
	if l.coll == nil {
		return set, nil
	}

	res, err := l.engine.cache.Merge(l.coll.plural, set)
	if err != nil {
		return nil, l.run.outputError(err)
	}
	l.merges++
	spanMerge(l.span, res)
	l.engine.logger.Debug("records merged",
		"load_id", l.run.id,
		"collection", l.coll.plural,
		"records", res.Total(),
		"added", res.Added,
		"updated", res.Updated,
		"seq", res.Seq,
	)
	if err := l.engine.journal.RecordMerge(context.WithoutCancel(ctx), l.run.id, res, set); err != nil {
		l.engine.logger.Warn("journal merge failed", "load_id", l.run.id, "error", err)
	}
	return set, nil
}

// finish closes out the load. It runs before the caller observes the
// outcome, so the collection is Idle when completion fires.
func (l *load) finish(ctx context.Context, err error) {
	e := l.engine
	defer l.cancel()

	outcome := LoadOutcome{
		Status:   LoadSucceeded,
		Records:  l.records,
		Merges:   l.merges,
		Finished: time.Now().UTC(),
	}
	if err != nil {
		outcome.Status = LoadFailed
		outcome.Err = err.Error()
		e.logger.Error("load failed",
			"load_id", l.run.id,
			"collection", l.run.collection,
			"convention", l.run.conv.String(),
			"error", err,
		)
	} else {
		e.logger.Info("load complete",
			"load_id", l.run.id,
			"collection", l.run.collection,
			"convention", l.run.conv.String(),
			"records", l.records,
		)
	}
	if jerr := e.journal.EndLoad(context.WithoutCancel(ctx), l.run.id, outcome); jerr != nil {
		e.logger.Warn("journal end failed", "load_id", l.run.id, "error", jerr)
	}
	endSpan(l.span, l.records, err)
	if l.coll != nil {
		l.coll.end(err)
	}
}

func (l *load) result() *Result {
	return &Result{
		convention: l.run.conv,
		loadID:     l.run.id,
		collection: l.run.collection,
		future:     async.NewFuture[record.Set](),
	}
}

// runSingle runs a Sync, Callback or Deferred load. Sync blocks until the
// chain completes.
func (l *load) runSingle(ctx context.Context) *Result {
	res := l.result()

	l.run.single(ctx, l.call.Input()).OnComplete(func(out any, err error) {
		var set record.Set
		if err == nil {
			set, err = l.merge(ctx, out)
		}
		l.finish(ctx, err)
		if l.call.Done != nil {
			l.call.Done(err, set)
		}
		res.future.Settle(set, err)
	})

	if l.run.conv == loader.Sync {
		<-res.future.Done()
		_, res.err, _ = res.future.Result()
	}
	return res
}

// runStream runs a Stream load. A pump goroutine merges each event and then
// forwards it, and settles the result's future with the union of all
// merged events when the chain ends.
func (l *load) runStream(ctx context.Context) *Result {
	res := l.result()
	res.stream = async.NewStream[record.Set]()
	chain := l.run.stream(ctx, l.call.Input())

	go func() {
		union := record.Set{}
		var err error
		for {
			out, ok, nerr := chain.Next(context.Background())
			if !ok {
				err = nerr
				break
			}
			set, merr := l.merge(ctx, out)
			if merr != nil {
				err = merr
				l.cancel()
				break
			}
			union.Merge(set)
			res.stream.Emit(set)
		}
		l.finish(ctx, err)
		res.stream.Close(err)
		if err != nil {
			res.future.Reject(err)
			return
		}
		res.future.Resolve(union)
	}()
	return res
}
