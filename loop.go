package synchronizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// task is a unit of work queued onto the background goroutine. Trimmed from
// go-eventloop's multi-queue (internal/external/microtask) ingestion down to
// a single buffered channel, since the Synchronizer has no notion of
// microtasks or timers competing for priority — every submitted call is
// equally a "run the user's implementation" task.
type task struct {
	fn func()
}

// loopHost is the Loop Host (spec §4.A): the single background goroutine
// all of a Synchronizer's coroutine execution is confined to, plus the
// primitives (runBlocking, runCooperative, schedule) everything else in this
// package is built from. Grounded on go-eventloop's Loop, with the
// epoll/kqueue/IOCP poller and JS-timer fast path removed — this loop only
// ever drains a task queue.
type loopHost struct {
	name string

	state       lifecycleState
	goroutineID atomic.Int64 // id of the background goroutine once started; 0 until then

	tasks chan task

	startOnce   sync.Once
	stopOnce    sync.Once
	stopped     chan struct{} // closed once the background goroutine has returned
	terminating chan struct{} // closed once shutdown has been requested
	wg          sync.WaitGroup

	onUncaught func(error)
	logger     *synchronizerLogger

	failOnce sync.Once
	failErr  atomic.Pointer[LoopHostError]
}

func newLoopHost(name string, queueSize int, onUncaught func(error), logger *synchronizerLogger) *loopHost {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &loopHost{
		name:        name,
		tasks:       make(chan task, queueSize),
		stopped:     make(chan struct{}),
		terminating: make(chan struct{}),
		onUncaught:  onUncaught,
		logger:      logger,
	}
}

// initiateShutdown requests that the background goroutine drain its queue
// and exit. Safe to call multiple times and from any goroutine.
func (l *loopHost) initiateShutdown() {
	l.stopOnce.Do(func() {
		close(l.terminating)
		// If the background goroutine was never started, run() will never
		// close l.stopped itself, so do it here: Close must return promptly
		// on a Synchronizer that never ran a single call, not wait out the
		// full shutdown grace period.
		if l.state.TryTransition(StateIdle, StateTerminated) {
			close(l.stopped)
			return
		}
		l.state.TryTransition(StateRunning, StateTerminating)
	})
}

// awaitStopped blocks until the background goroutine has returned, or ctx
// is done.
func (l *loopHost) awaitStopped(ctx context.Context) error {
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureStarted lazily spins up the background goroutine on first use,
// mirroring the spec's "Lazy start" lifecycle rule (§4.E): a Synchronizer
// with no calls ever made never starts a goroutine at all. It reports
// whether this call is the one that actually started the loop, which Start
// uses to report ErrAlreadyRunning on a second call.
func (l *loopHost) ensureStarted() (started bool) {
	l.startOnce.Do(func() {
		started = l.state.TryTransition(StateIdle, StateRunning)
		if started {
			l.wg.Add(1)
			go l.run()
		}
	})
	return started
}

func (l *loopHost) run() {
	defer l.wg.Done()
	l.goroutineID.Store(getGoroutineID())
	l.logger.lifecycle(l.name, "started")
	defer close(l.stopped)
	defer l.logger.lifecycle(l.name, "stopped")
	defer func() {
		// A failure (the error handler itself panicking) already put the
		// loop into its own terminal state; don't overwrite it.
		if l.state.Load() != StateFailed {
			l.state.Store(StateTerminated)
		}
	}()

	for {
		select {
		case t, ok := <-l.tasks:
			if !ok {
				return
			}
			l.safeExecute(t.fn)
		case <-l.drainSignal():
			l.drainRemaining()
			return
		}
	}
}

// drainSignal returns the channel closed once shutdown has been requested,
// letting run()'s select notice termination without polling state on every
// iteration.
func (l *loopHost) drainSignal() <-chan struct{} {
	return l.terminating
}

// drainRemaining runs any tasks already enqueued before shutdown was
// requested, then returns; this matches go-eventloop's shutdown semantics of
// letting in-flight work finish rather than abandoning it.
func (l *loopHost) drainRemaining() {
	for {
		select {
		case t, ok := <-l.tasks:
			if !ok {
				return
			}
			l.safeExecute(t.fn)
		default:
			return
		}
	}
}

// safeExecute is a backstop against a task panicking past its own recovery;
// runCooperative already recovers and rejects its Future so callers always
// observe a PanicError rather than hanging, but this keeps one misbehaving
// task from taking down the entire background goroutine regardless.
func (l *loopHost) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := PanicError{Value: r}
			l.logger.err(l.name, "implementation panic", err)
			l.invokeOnUncaught(err)
		}
	}()
	fn()
}

// invokeOnUncaught calls the configured onUncaught callback with its own
// recover, isolated from the recover protecting user implementation code:
// an ordinary task panic is the expected, handled case (PanicError, above),
// but the callback itself panicking means the host's own error-reporting
// path is broken, which fail treats as a loop host failure rather than
// something safe to keep running past.
func (l *loopHost) invokeOnUncaught(err error) {
	if l.onUncaught == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.fail(fmt.Errorf("error handler panicked: %v", r))
		}
	}()
	l.onUncaught(err)
}

// fail transitions the loop host into its terminal failed state exactly
// once, recording cause so schedule can report it as a *LoopHostError to
// every subsequent submission. Unlike a task panic (recovered per-task by
// safeExecute without affecting loop state), fail marks the Synchronizer as
// unrecoverable: it must be recreated.
func (l *loopHost) fail(cause error) {
	l.failOnce.Do(func() {
		l.state.Store(StateFailed)
		l.failErr.Store(&LoopHostError{Name: l.name, Cause: cause})
		l.logger.err(l.name, "loop host failed", cause)
		l.initiateShutdown()
	})
}

// isLoopThread reports whether the calling goroutine is this loop's own
// background goroutine, the Go-native substitute for the Python original's
// "is there a running event loop in this thread" check (SPEC_FULL.md §0).
func (l *loopHost) isLoopThread() bool {
	id := l.goroutineID.Load()
	return id != 0 && id == getGoroutineID()
}

// schedule enqueues fn to run on the background goroutine without blocking
// the caller, starting the loop if necessary. It is the primitive both
// runBlocking and runCooperative build on.
func (l *loopHost) schedule(fn func()) error {
	if l.state.Load() == StateFailed {
		if err := l.failErr.Load(); err != nil {
			return err
		}
		return &LoopHostError{Name: l.name, Cause: ErrLoopFailed}
	}
	if !l.state.CanAcceptWork() {
		return &ShutdownError{Name: l.name}
	}
	l.ensureStarted()
	select {
	case l.tasks <- task{fn: fn}:
		return nil
	case <-l.stopped:
		return &ShutdownError{Name: l.name}
	}
}

// runCooperative is the cooperative entry (Aio): it schedules fn and returns
// a Future immediately, never blocking the calling goroutine. fn runs on the
// background goroutine and resolves/rejects the returned Future exactly
// once.
func runCooperative[T any](l *loopHost, fn func() (T, error)) *Future[T] {
	fut := NewFuture[T]()
	if err := l.schedule(func() {
		defer func() {
			if r := recover(); r != nil {
				err := PanicError{Value: r}
				l.logger.err(l.name, "implementation panic", err)
				l.invokeOnUncaught(err)
				fut.reject(err)
			}
		}()
		v, err := fn()
		if err != nil {
			fut.reject(err)
			return
		}
		fut.resolve(v)
	}); err != nil {
		fut.reject(err)
	}
	return fut
}

// runBlocking is the blocking entry (Call): it forbids being invoked from
// the loop's own background goroutine (that would deadlock, since nothing
// else can ever run fn to completion), then schedules fn and blocks the
// calling goroutine on the result via Future.Wait.
func runBlocking[T any](ctx context.Context, l *loopHost, fn func() (T, error)) (T, error) {
	var zero T
	if l.isLoopThread() {
		return zero, ErrReentrantCall
	}
	fut := runCooperative(l, fn)
	v, err := fut.Wait(ctx)
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		l.logger.warn(l.name, "call cancelled")
	}
	return v, err
}

// getGoroutineID extracts the calling goroutine's id by parsing the header
// line of runtime.Stack, exactly as go-eventloop's isLoopThread check does;
// Go deliberately does not expose goroutine ids via a supported API, so
// this is the idiomatic workaround the teacher itself relies on.
func getGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	if idx := bytes.IndexByte(b, ' '); idx >= 0 {
		b = b[:idx]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
