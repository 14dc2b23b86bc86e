package synchronizer

import (
	"context"
	"reflect"
	"sync"
)

// FuncWrapper is the Wrapper Factory's output for a single coroutine-shaped
// function (spec §4.D): a function taking a context and returning
// (T, error), invocable either blocking (Call) or cooperative (Aio).
// Wrapping the same underlying function twice returns the same *FuncWrapper,
// preserving identity through the Translation Registry exactly as spec §4.B
// requires.
type FuncWrapper[T any] struct {
	handle *wrapperHandle
	s      *Synchronizer
	impl   func(context.Context) (T, error)
}

// WrapFunc wraps impl for dispatch through s.
func WrapFunc[T any](s *Synchronizer, impl func(context.Context) (T, error)) *FuncWrapper[T] {
	if h, ok := s.reg.lookup(impl); ok {
		if w, ok := h.wrapper.(*FuncWrapper[T]); ok {
			return w
		}
	}
	w := &FuncWrapper[T]{s: s, impl: impl}
	h := &wrapperHandle{impl: impl, shape: shapeCoroutine}
	h.wrapper = w
	w.handle = h
	s.reg.register(impl, h)
	return w
}

// synchronizerHandle implements hasWrapperHandle, letting translateIn
// recover the implementation behind a *FuncWrapper it encounters among
// call arguments.
func (w *FuncWrapper[T]) synchronizerHandle() *wrapperHandle { return w.handle }

// Call blocks the calling goroutine until impl completes.
func (w *FuncWrapper[T]) Call(ctx context.Context) (T, error) {
	return Call(ctx, w.s, w.impl)
}

// Aio returns immediately with a Future for impl's eventual result.
func (w *FuncWrapper[T]) Aio(ctx context.Context) *Future[T] {
	return Aio(ctx, w.s, w.impl)
}

// GeneratorWrapper is the Wrapper Factory's output for an async-generator
// shaped implementation (spec §4.D): a function that produces a sequence of
// values by invoking a yield callback, one at a time. The function body runs
// on a producer goroutine of its own, started by a task on the background
// goroutine, and passes each yield only after a step request that the
// background goroutine dispatched. GeneratorWrapper exposes both a blocking iterator (Next) and a
// cooperative one (NextAio), matching the dual blocking/async iterator
// protocols spec.md's scenario S3 describes.
type GeneratorWrapper[T any] struct {
	s    *Synchronizer
	impl func(context.Context, func(T) error) error

	items     chan T
	step      chan struct{}
	errc      chan error
	startOnce sync.Once
}

// WrapGenerator wraps an async-generator-shaped implementation: impl must
// call the yield func once per produced value, in order, returning a
// non-nil error (possibly a *CancellationError) to stop early.
func WrapGenerator[T any](s *Synchronizer, impl func(context.Context, func(T) error) error) *GeneratorWrapper[T] {
	return &GeneratorWrapper[T]{
		s:     s,
		impl:  impl,
		items: make(chan T),
		step:  make(chan struct{}, 1),
		errc:  make(chan error, 1),
	}
}

// ensureStarted submits the generator's producing loop to the background
// goroutine at most once, the first time Next is called, matching the
// spec's generators being lazily driven rather than eagerly evaluated. The
// producer needs a dedicated goroutine to hold the user's stack between
// yields (Go has no stackful coroutines to suspend in place), so the
// implementation's code runs on that goroutine, not on the background
// goroutine. Every yield is gated behind a step request scheduled onto the
// loop host, so the producer never runs ahead of what the consumer asked for.
func (g *GeneratorWrapper[T]) ensureStarted(ctx context.Context) error {
	var startErr error
	g.startOnce.Do(func() {
		startErr = g.s.loop.schedule(func() {
			go func() {
				defer close(g.items)
				err := g.impl(ctx, func(v T) error {
					select {
					case <-g.step:
					case <-ctx.Done():
						return ctx.Err()
					}
					select {
					case g.items <- v:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				})
				g.errc <- err
			}()
		})
	})
	return startErr
}

// requestStep admits the producer through its next yield, scheduled onto
// the loop host so the "ask the generator for its next value" step is
// formally a task the background goroutine dispatched, per the stepping
// mechanism described for async generators.
func (g *GeneratorWrapper[T]) requestStep() error {
	return g.s.loop.schedule(func() {
		select {
		case g.step <- struct{}{}:
		default:
		}
	})
}

// Next blocks until the next item is produced, the generator finishes, or
// ctx is done. ok is false once the sequence is exhausted; err carries any
// failure the implementation returned. The wait itself happens on the
// calling goroutine, never the shared background loop, so a slow generator
// only ever blocks its own caller.
func (g *GeneratorWrapper[T]) Next(ctx context.Context) (value T, ok bool, err error) {
	if err := g.ensureStarted(ctx); err != nil {
		return value, false, err
	}
	if err := g.requestStep(); err != nil {
		return value, false, err
	}
	select {
	case v, open := <-g.items:
		if !open {
			select {
			case err = <-g.errc:
			default:
			}
			return value, false, err
		}
		return v, true, nil
	case <-ctx.Done():
		g.s.logger.warn(g.s.name, "generator cancelled")
		return value, false, &CancellationError{Cause: ctx.Err()}
	}
}

// NextAio is the cooperative counterpart of Next, returning a Future the
// caller can select on rather than blocking immediately. It runs Next on an
// auxiliary goroutine of its own (not the background loop, and not via
// runCooperative) precisely so that Next's blocking wait for the next item
// never parks the shared loop host; only the producer's start and its step
// requests are scheduled onto it.
func (g *GeneratorWrapper[T]) NextAio(ctx context.Context) *Future[nextResult[T]] {
	fut := NewFuture[nextResult[T]]()
	go func() {
		v, ok, err := g.Next(ctx)
		if err != nil {
			fut.reject(err)
			return
		}
		fut.resolve(nextResult[T]{value: v, ok: ok})
	}()
	return fut
}

type nextResult[T any] struct {
	value T
	ok    bool
}

// ContextManagerWrapper is the Wrapper Factory's output for an
// async-context-manager shaped implementation (spec §4.D): an enter/exit
// pair run on the background goroutine. Use runs exit exactly once after a
// successful enter; callers driving Enter and Exit directly are responsible
// for pairing them.
type ContextManagerWrapper[T any] struct {
	s     *Synchronizer
	enter func(context.Context) (T, error)
	exit  func(context.Context, T) error
}

// WrapContextManager wraps an enter/exit pair.
func WrapContextManager[T any](s *Synchronizer, enter func(context.Context) (T, error), exit func(context.Context, T) error) *ContextManagerWrapper[T] {
	return &ContextManagerWrapper[T]{s: s, enter: enter, exit: exit}
}

// Enter runs enter on the background goroutine and blocks for its result.
func (w *ContextManagerWrapper[T]) Enter(ctx context.Context) (T, error) {
	return Call(ctx, w.s, w.enter)
}

// Exit runs exit on the background goroutine and blocks for its result.
func (w *ContextManagerWrapper[T]) Exit(ctx context.Context, value T) error {
	_, err := Call(ctx, w.s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.exit(ctx, value)
	})
	return err
}

// Use runs fn with the entered value, guaranteeing Exit runs afterward even
// if fn panics or returns an error, mirroring the Python `async with`
// pattern the wrapped value stands in for.
func (w *ContextManagerWrapper[T]) Use(ctx context.Context, fn func(context.Context, T) error) error {
	v, err := w.Enter(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = w.Exit(ctx, v) }()
	return fn(ctx, v)
}

// ClassWrapper is the Wrapper Factory's output for a class-shaped
// implementation (spec §4.D): an arbitrary Go value whose methods are
// invoked by name, by reflection, on the background goroutine. Method
// signatures must be func(context.Context, ...any) (any, error); anything
// else yields a *MisuseError rather than a panic.
type ClassWrapper struct {
	handle *wrapperHandle
	s      *Synchronizer
	impl   any
}

// WrapClass wraps impl, returning the same *ClassWrapper on repeated calls
// for the same impl per the Translation Registry's identity invariant.
func WrapClass(s *Synchronizer, impl any) *ClassWrapper {
	if h, ok := s.reg.lookup(impl); ok {
		if w, ok := h.wrapper.(*ClassWrapper); ok {
			return w
		}
	}
	w := &ClassWrapper{s: s, impl: impl}
	h := &wrapperHandle{impl: impl, shape: shapeClassInstance}
	h.wrapper = w
	w.handle = h
	s.reg.register(impl, h)
	return w
}

// Shape reports the Wrapper Factory's classification of the wrapped value.
func (w *ClassWrapper) Shape() wrapShape { return w.handle.shape }

// synchronizerHandle implements hasWrapperHandle, letting translateIn
// recover the implementation behind a *ClassWrapper it encounters among
// call arguments.
func (w *ClassWrapper) synchronizerHandle() *wrapperHandle { return w.handle }

// Call invokes the method named methodName on the wrapped implementation,
// translating arguments in (unwrapping any wrapper handles found among
// them) and the result out (wrapping it if it is itself a registered
// implementation), on the background goroutine.
func (w *ClassWrapper) Call(ctx context.Context, methodName string, args ...any) (any, error) {
	return Call(ctx, w.s, func(ctx context.Context) (any, error) {
		translated := make([]any, len(args))
		for i, a := range args {
			v, err := translateIn(a, w.s.reg)
			if err != nil {
				return nil, err
			}
			translated[i] = v
		}

		method := reflect.ValueOf(w.impl).MethodByName(methodName)
		if !method.IsValid() {
			return nil, &MisuseError{Target: methodName, Reason: "no such method"}
		}
		mt := method.Type()
		badSignature := &MisuseError{Target: methodName, Reason: "signature must be func(context.Context, ...any) (any, error)"}
		if mt.NumIn() != len(translated)+1 || mt.NumOut() != 2 ||
			!reflect.TypeOf(ctx).AssignableTo(mt.In(0)) ||
			mt.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
			return nil, badSignature
		}

		in := make([]reflect.Value, len(translated)+1)
		in[0] = reflect.ValueOf(ctx)
		for i, a := range translated {
			if a == nil {
				in[i+1] = reflect.Zero(mt.In(i + 1))
			} else if reflect.TypeOf(a).AssignableTo(mt.In(i + 1)) {
				in[i+1] = reflect.ValueOf(a)
			} else {
				return nil, badSignature
			}
		}

		out := method.Call(in)
		var result any
		if out[0].IsValid() && !out[0].IsZero() {
			result = out[0].Interface()
		}
		var err error
		if e, ok := out[1].Interface().(error); ok {
			err = e
		}
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		return translateOut(result, w.s.reg, func(impl any) (any, error) {
			// Only pointer-shaped results plausibly front further async
			// state worth wrapping; plain values (strings, ints, structs
			// passed by value) pass through unchanged.
			if reflect.ValueOf(impl).Kind() != reflect.Ptr {
				return impl, nil
			}
			return WrapClass(w.s, impl), nil
		})
	})
}
