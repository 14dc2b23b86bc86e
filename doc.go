// Package synchronizer implements a runtime bridge that lets a single
// asynchronous implementation — a coroutine-shaped function, an async
// generator, an async context manager, or a class whose methods are any of
// those — be invoked from either a blocking caller or a cooperative one,
// while confining the implementation's execution to one dedicated background
// goroutine (the Loop Host). Async-generator bodies are the exception: each
// runs on a producer goroutine of its own, started by the Loop Host and
// advanced one yield per step request the Loop Host dispatches.
//
// # Model
//
// A Synchronizer owns exactly one background goroutine, started lazily on
// first use. Implementations are attached to it via the Wrap* constructors
// (WrapFunc, WrapGenerator, WrapContextManager, WrapClass). WrapFunc and
// WrapClass record the implementation in a Translation Registry so that
// wrapping the same value twice returns the same wrapper — the
// identity-preservation invariant callers rely on when an implementation
// object round-trips across the boundary (spec §4.B). WrapGenerator and
// WrapContextManager do not use the registry and return a new wrapper on
// every call.
//
// Every wrapper exposes two entry points:
//
//   - Call blocks the calling goroutine until the background goroutine has
//     finished running the implementation. Invoking Call from the
//     Synchronizer's own background goroutine returns ErrReentrantCall
//     rather than deadlocking — see SPEC_FULL.md §0 for why this
//     single-goroutine-affinity check is the Go-native replacement for the
//     three-way caller-context distinction the design is modeled on.
//   - Aio schedules the implementation and returns a *Future immediately,
//     for callers that want to keep making progress while the result is
//     pending.
//
// # Usage
//
//	s := synchronizer.New("worker")
//	defer s.Close(context.Background())
//
//	square := synchronizer.WrapFunc(s, func(ctx context.Context) (int, error) {
//		return 9, nil
//	})
//
//	v, err := square.Call(context.Background())
//
// # Lifecycle
//
// Close requests an orderly shutdown: no further work is accepted, already
// queued work is drained, and the background goroutine is joined, within a
// configurable grace period. CloseOnSignal and NotifyContext wire OS signal
// delivery into that same shutdown path and into in-flight blocking calls,
// respectively.
//
// # Non-goals
//
// This package does not transform synchronous implementations into
// asynchronous ones, does not run more than one background goroutine per
// Synchronizer, does not coordinate across processes, and is not a general
// task or actor scheduler — it is specifically the blocking/cooperative
// dual-entry bridge described above.
package synchronizer
