package async

import (
	"context"
	"sync"
)

// Stream is an ordered, unbounded sequence of values.
//
// Producers call Emit for each value and Close exactly once to end the
// stream. Consumers call Next (or Collect) and observe values in emission
// order. The buffer is unbounded so a slow consumer never blocks a producer.
//
// The signal channel has a buffer of one and coalesces wake-ups; it is
// closed on Close to release every waiting consumer.
type Stream[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	err    error
	signal chan struct{}
	done   chan struct{}
	count  int
}

// NewStream creates an open, empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		items:  make([]T, 0, 8),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Emit appends v to the stream. It returns false if the stream has ended.
func (s *Stream[T]) Emit(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.items = append(s.items, v)
	s.count++

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// Close ends the stream. A nil err is a clean end; a non-nil err is the
// stream's error event. Only the first call has any effect.
func (s *Stream[T]) Close(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.err = err
	close(s.signal)
	close(s.done)
	return true
}

// TryNext removes and returns the oldest buffered value without blocking.
func (s *Stream[T]) TryNext() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	v := s.items[0]
	s.items[0] = zero
	if len(s.items) == 1 {
		s.items = s.items[:0]
	} else {
		s.items = s.items[1:]
	}
	return v, true
}

// Next blocks until a value is available, the stream ends, or ctx is done.
// It returns ok=false once the stream has ended and every buffered value has
// been consumed; err is then the stream's error (nil for a clean end).
func (s *Stream[T]) Next(ctx context.Context) (v T, ok bool, err error) {
	for {
		if v, ok := s.TryNext(); ok {
			return v, true, nil
		}

		s.mu.Lock()
		if s.closed && len(s.items) == 0 {
			err := s.err
			s.mu.Unlock()
			var zero T
			return zero, false, err
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		case <-s.signal:
		}
	}
}

// Collect drains the stream and returns every value in emission order.
// On a stream error the values received before the error are returned with it.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next(ctx)
		if !ok {
			return out, err
		}
		out = append(out, v)
	}
}

// Each calls fn for every value until the stream ends, fn fails, or ctx is done.
func (s *Stream[T]) Each(ctx context.Context, fn func(T) error) error {
	for {
		v, ok, err := s.Next(ctx)
		if !ok {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Done returns a channel closed when the stream ends. Buffered values may
// still be pending when it fires.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the stream's error once it has ended, or nil.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Emitted returns the total number of values emitted so far.
func (s *Stream[T]) Emitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Len returns the number of buffered, unconsumed values.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
