package engine

import (
	"context"
	"sync"

	"github.com/roach88/loadkit/internal/async"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Result is the handle an accessor returns.
//
// Every result carries a future for the load's records. Under Sync the
// future is already settled when the accessor returns. Under Stream the
// future settles with the union of all merged events once the stream ends,
// and Stream returns the per-event record sets in emission order.
type Result struct {
	convention loader.Convention
	loadID     string
	collection string
	err        error
	future     *async.Future[record.Set]
	stream     *async.Stream[record.Set]

	once sync.Once
}

// failedResult returns a result that failed before any stage ran.
func failedResult(conv loader.Convention, collection string, err error) *Result {
	return &Result{
		convention: conv,
		collection: collection,
		err:        err,
		future:     async.Rejected[record.Set](err),
	}
}

// Err returns the error of a Sync load, or the error that stopped any load
// from starting: argument classification, resolution and a missing
// completion function. Errors of asynchronous loads arrive through their
// own channel: the completion function, the future or the stream.
func (r *Result) Err() error {
	return r.err
}

// Future returns the future for the load's records.
func (r *Result) Future() *async.Future[record.Set] {
	return r.future
}

// Stream returns the per-event record sets. For single-result conventions
// the stream carries one event with the whole set.
func (r *Result) Stream() *async.Stream[record.Set] {
	r.once.Do(func() {
		if r.stream != nil {
			return
		}
		s := async.NewStream[record.Set]()
		r.future.OnComplete(func(set record.Set, err error) {
			if err == nil {
				s.Emit(set)
			}
			s.Close(err)
		})
		r.stream = s
	})
	return r.stream
}

// Wait blocks until the load completes or ctx is done and returns its
// records.
func (r *Result) Wait(ctx context.Context) (record.Set, error) {
	return r.future.Await(ctx)
}

// Convention returns the convention the load ran under.
func (r *Result) Convention() loader.Convention {
	return r.convention
}

// LoadID returns the load's ID, or "" if the load never started.
func (r *Result) LoadID() string {
	return r.loadID
}

// Collection returns the plural name of the target collection, or "" for a
// standalone load.
func (r *Result) Collection() string {
	return r.collection
}
