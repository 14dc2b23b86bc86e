package synchronizer

import (
	"context"
	"os"
	"os/signal"
	"time"
)

// Close requests an orderly shutdown (spec §4.E Lifecycle & Signals): no
// further calls are accepted, in-flight work is allowed to drain, and the
// background goroutine (if one was ever started) is joined. It is safe to
// call Close on a Synchronizer that never ran a single call — the lazy-start
// goroutine simply never spins up.
//
// Close blocks until the background goroutine has stopped, the configured
// shutdown grace period elapses, or ctx is done, whichever comes first,
// mirroring go-eventloop's shutdownImpl grace-period handling.
func (s *Synchronizer) Close(ctx context.Context) error {
	s.loop.initiateShutdown()

	grace, cancel := context.WithTimeout(ctx, s.cfg.shutdownGrace)
	defer cancel()

	err := s.loop.awaitStopped(grace)
	s.logger.lifecycle(s.name, "closed")
	return err
}

// NotifyContext returns a context cancelled when the process receives any
// of sigs, for forwarding OS signals into an in-flight blocking Call: pass
// the returned context as Call's ctx argument so a Ctrl-C propagates as
// cancellation of the waiting goroutine rather than leaving it blocked
// until the implementation itself finishes. This is a thin wrapper over
// signal.NotifyContext; the Synchronizer has no ambient signal handling of
// its own beyond what a caller opts into here, matching spec §4.E's framing
// of signal forwarding as something the bridge enables rather than imposes.
func NotifyContext(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	return signal.NotifyContext(parent, sigs...)
}

// CloseOnSignal spawns a goroutine that calls Close once the process
// receives any of sigs (default os.Interrupt), waiting up to the
// Synchronizer's configured shutdown grace period. It returns a function
// that cancels the signal subscription without closing the Synchronizer,
// for callers that want to tear down the watcher independently of shutdown.
func (s *Synchronizer) CloseOnSignal(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownGrace+time.Second)
			defer cancel()
			_ = s.Close(ctx)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
