package synchronizer

import (
	"context"

	catrate "github.com/joeycumines/go-catrate"
)

// Synchronizer is the runtime bridge (spec Overview): it confines all
// execution of a set of wrapped async implementations to a single
// background goroutine (the Loop Host), and exposes both a blocking entry
// point (Call) and a cooperative entry point (Aio) for invoking them, per
// the dispatch matrix in SPEC_FULL.md §0.
type Synchronizer struct {
	name string
	cfg  *config
	loop *loopHost
	reg  *registry

	logger     *synchronizerLogger
	errLimiter *catrate.Limiter
}

// New constructs a Synchronizer. The background goroutine is not started
// until the first call is dispatched (spec §4.E "Lazy start").
func New(name string, opts ...Option) *Synchronizer {
	cfg := resolveOptions(opts)
	s := &Synchronizer{
		name:       name,
		cfg:        cfg,
		reg:        newRegistry(),
		logger:     cfg.logger,
		errLimiter: catrate.NewLimiter(cfg.errRateLimit),
	}
	s.loop = newLoopHost(name, cfg.queueSize, s.handleUncaught, s.logger)
	return s
}

// handleUncaught is invoked by the loop host whenever a background task
// panics; errors an implementation returns are not passed here. Rate-limited
// via go-catrate so a tight failure loop cannot flood a configured error
// handler (SPEC_FULL.md §4, "Uncaught-error reporting callback").
func (s *Synchronizer) handleUncaught(err error) {
	if _, allowed := s.errLimiter.Allow(s.name); !allowed {
		return
	}
	s.logger.err(s.name, "uncaught", err)
	if s.cfg.onUncaught != nil {
		s.cfg.onUncaught(err)
	}
}

// Start explicitly spins up the background goroutine rather than waiting
// for the first dispatched call to do so lazily. It returns ErrAlreadyRunning
// if the loop host was already started, by a prior Start or by an earlier
// call.
func (s *Synchronizer) Start() error {
	if !s.loop.ensureStarted() {
		return ErrAlreadyRunning
	}
	return nil
}

// Call is the blocking entry point (spec §4.A/§4.C): it runs fn on the
// background goroutine and blocks the calling goroutine until fn completes,
// ctx is done, or the Synchronizer is closed. Calling Call from the
// Synchronizer's own background goroutine returns ErrReentrantCall instead
// of deadlocking.
func Call[T any](ctx context.Context, s *Synchronizer, fn func(context.Context) (T, error)) (T, error) {
	if s.cfg.forwardSignals {
		var cancel context.CancelFunc
		ctx, cancel = NotifyContext(ctx)
		defer cancel()
	}
	return runBlocking(ctx, s.loop, func() (T, error) { return fn(ctx) })
}

// Aio is the cooperative entry point: it schedules fn on the background
// goroutine and returns a Future immediately, never blocking the calling
// goroutine. The caller selects on the Future's Done channel (or calls
// Wait, which simply blocks like Call would).
func Aio[T any](ctx context.Context, s *Synchronizer, fn func(context.Context) (T, error)) *Future[T] {
	return runCooperative(s.loop, func() (T, error) { return fn(ctx) })
}
