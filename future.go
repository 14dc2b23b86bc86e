package synchronizer

import (
	"context"
	"sync"
)

// Future is the cross-goroutine outcome container produced by a
// Synchronizer's cooperative entry point (Aio) and by
// GeneratorWrapper.NextAio. It plays the role the original's "future-request flag" return
// value plays: a handle the caller can wait on (via Wait/Done) without the
// Synchronizer's background goroutine ever touching the caller's own
// goroutine.
//
// A Future is resolved exactly once, via resolve or reject: by the task on
// the background goroutine, by NextAio's helper goroutine, or by the
// submitting goroutine when scheduling itself fails. Trimmed down from go-eventloop's Promise/A+ state
// machine: there is no .then chaining here, since nothing in this module
// needs to register continuations on a Future the way JS code chains
// promises — callers either block on Wait or select on Done.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	err      error
	resolved bool
}

// NewFuture constructs an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel closed once the Future is resolved, suitable for
// use in a select alongside a context's Done channel.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// resolve delivers a successful result. Only the first call takes effect;
// subsequent calls are no-ops, matching the "settled once" semantics of the
// coroutine-bound handle described in the spec's data model.
func (f *Future[T]) resolve(value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.value = value
	f.resolved = true
	close(f.done)
}

// reject delivers a failed result.
func (f *Future[T]) reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.err = err
	f.resolved = true
	close(f.done)
}

// Wait blocks the calling goroutine until the Future is resolved or ctx is
// done, whichever comes first. This is the building block the blocking
// entry (Call) uses; the cooperative entry (Aio) instead hands the caller
// the Future itself so they can select on Done().
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		value, err := f.value, f.err
		f.mu.Unlock()
		return value, err
	case <-ctx.Done():
		var zero T
		return zero, &CancellationError{Cause: ctx.Err()}
	}
}

// Result returns the resolved value and error without blocking, and a
// boolean reporting whether the Future had already settled. Callers that
// select on Done() use this to retrieve the outcome once the channel closes.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.resolved
}
