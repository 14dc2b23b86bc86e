package synchronizer

import "time"

// config holds the resolved configuration for a Synchronizer, built up by
// applying Options, following go-eventloop/options.go's
// loopOptions/resolveLoopOptions pattern.
type config struct {
	queueSize      int
	shutdownGrace  time.Duration
	onUncaught     func(error)
	errRateLimit   map[time.Duration]int
	logger         *synchronizerLogger
	forwardSignals bool
}

func defaultConfig() *config {
	return &config{
		queueSize:      256,
		shutdownGrace:  5 * time.Second,
		errRateLimit:   map[time.Duration]int{time.Second: 5},
		logger:         newNopLogger(),
		forwardSignals: false,
	}
}

// Option configures a Synchronizer at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithQueueSize sets the background goroutine's task queue capacity.
func WithQueueSize(n int) Option {
	return optionFunc(func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	})
}

// WithShutdownGrace sets how long Close waits for in-flight work to drain
// before returning, mirroring go-eventloop's graceful-shutdown timeout.
func WithShutdownGrace(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.shutdownGrace = d
	})
}

// WithErrorHandler registers a callback invoked whenever a task on the
// background goroutine panics; the panic is still delivered to the caller as
// a PanicError. Errors an implementation returns go only to its caller and
// never reach this callback. Per SPEC_FULL.md §4 this is rate-limited via
// go-catrate so a hot failure loop cannot flood the callback.
func WithErrorHandler(fn func(error)) Option {
	return optionFunc(func(c *config) {
		c.onUncaught = fn
	})
}

// WithErrorRateLimit overrides the default uncaught-error rate limit passed
// to go-catrate's Limiter.
func WithErrorRateLimit(rates map[time.Duration]int) Option {
	return optionFunc(func(c *config) {
		if len(rates) > 0 {
			c.errRateLimit = rates
		}
	})
}

// WithLogger attaches a structured logger; see logging.go for the logiface
// wiring. Passing nil restores the no-op logger.
func WithLogger(l *synchronizerLogger) Option {
	return optionFunc(func(c *config) {
		if l == nil {
			l = newNopLogger()
		}
		c.logger = l
	})
}

// WithSignalForwarding enables forwarding of SIGINT (os.Interrupt) into
// in-flight blocking calls as cancellation, per spec §4.E.
func WithSignalForwarding(enabled bool) Option {
	return optionFunc(func(c *config) {
		c.forwardSignals = enabled
	})
}

func resolveOptions(opts []Option) *config {
	c := defaultConfig()
	for _, o := range opts {
		if o != nil {
			o.apply(c)
		}
	}
	return c
}
