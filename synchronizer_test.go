package synchronizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: a blocking call to a coroutine-shaped function returns its result.
func TestCallBlockingSquare(t *testing.T) {
	s := New("s1")
	defer s.Close(context.Background())

	square := WrapFunc(s, func(ctx context.Context) (int, error) {
		return 9 * 9, nil
	})

	v, err := square.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 81, v)
}

// S4: wrapping the same implementation twice returns the same wrapper.
func TestWrapFuncIdentity(t *testing.T) {
	s := New("s4")
	defer s.Close(context.Background())

	impl := func(ctx context.Context) (string, error) { return "hi", nil }
	w1 := WrapFunc(s, impl)
	w2 := WrapFunc(s, impl)
	assert.Same(t, w1, w2)
}

// Calling the blocking entry from the background goroutine itself must not
// deadlock; it must fail fast with ErrReentrantCall.
func TestReentrantCallFailsFast(t *testing.T) {
	s := New("reentrant")
	defer s.Close(context.Background())

	outer := WrapFunc(s, func(ctx context.Context) (int, error) {
		inner := WrapFunc(s, func(ctx context.Context) (int, error) {
			return 1, nil
		})
		return inner.Call(ctx)
	})

	_, err := outer.Call(context.Background())
	assert.ErrorIs(t, err, ErrReentrantCall)
}

// S5: the cooperative entry never blocks the caller's goroutine; multiple
// in-flight Futures resolve independently.
func TestAioParallelDispatch(t *testing.T) {
	s := New("s5")
	defer s.Close(context.Background())

	slow := WrapFunc(s, func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})

	f1 := slow.Aio(context.Background())
	f2 := slow.Aio(context.Background())

	v1, err1 := f1.Wait(context.Background())
	require.NoError(t, err1)
	v2, err2 := f2.Wait(context.Background())
	require.NoError(t, err2)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 1, v2)
}

// S6: a cancelled context propagates as a CancellationError from Call.
func TestCallCancellation(t *testing.T) {
	s := New("s6")
	defer s.Close(context.Background())

	block := make(chan struct{})
	defer close(block)

	slow := WrapFunc(s, func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := slow.Call(ctx)
	var cancellation *CancellationError
	assert.ErrorAs(t, err, &cancellation)
}

// Once closed, a Synchronizer rejects further calls with a ShutdownError.
func TestClosedRejectsNewCalls(t *testing.T) {
	s := New("closed")
	fn := WrapFunc(s, func(ctx context.Context) (int, error) { return 1, nil })

	_, err := fn.Call(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))

	_, err = fn.Call(context.Background())
	var shutdown *ShutdownError
	assert.ErrorAs(t, err, &shutdown)
	assert.ErrorIs(t, err, ErrClosed)
}

// S3: an async generator can be driven as a blocking iterator.
func TestGeneratorBlockingIteration(t *testing.T) {
	s := New("gen")
	defer s.Close(context.Background())

	gen := WrapGenerator(s, func(ctx context.Context, yield func(int) error) error {
		for i := 0; i < 3; i++ {
			if err := yield(i); err != nil {
				return err
			}
		}
		return nil
	})

	ctx := context.Background()
	var got []int
	for {
		v, ok, err := gen.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

// An async context manager's Exit always runs, even if the body errors.
func TestContextManagerUseRunsExit(t *testing.T) {
	s := New("ctxmgr")
	defer s.Close(context.Background())

	var entered, exited bool
	cm := WrapContextManager(s,
		func(ctx context.Context) (int, error) {
			entered = true
			return 42, nil
		},
		func(ctx context.Context, v int) error {
			exited = true
			assert.Equal(t, 42, v)
			return nil
		},
	)

	bodyErr := errors.New("body failed")
	err := cm.Use(context.Background(), func(ctx context.Context, v int) error {
		return bodyErr
	})
	assert.ErrorIs(t, err, bodyErr)
	assert.True(t, entered)
	assert.True(t, exited)
}

// A panic inside the implementation is converted to a PanicError rather
// than crashing the background goroutine.
func TestPanicRecoveredAsError(t *testing.T) {
	s := New("panic")
	defer s.Close(context.Background())

	boom := WrapFunc(s, func(ctx context.Context) (int, error) {
		panic("kaboom")
	})

	_, err := boom.Call(context.Background())
	var panicErr PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
}

func TestGetSingletonReturnsSameInstance(t *testing.T) {
	defer forgetForTesting("singleton-test")
	a := Get("singleton-test")
	b := Get("singleton-test")
	assert.Same(t, a, b)
}

func TestClassWrapperCallsMethodByName(t *testing.T) {
	s := New("class")
	defer s.Close(context.Background())

	impl := &counter{}
	w := WrapClass(s, impl)

	out, err := w.Call(context.Background(), "Increment", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	out, err = w.Call(context.Background(), "Increment", 2)
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

type counter struct {
	n int
}

func (c *counter) Increment(ctx context.Context, by any) (any, error) {
	c.n += by.(int)
	return c.n, nil
}

// Calling Start twice reports ErrAlreadyRunning on the second call.
func TestStartReturnsErrAlreadyRunning(t *testing.T) {
	s := New("start-twice")
	defer s.Close(context.Background())

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
}

// Close on a Synchronizer that never dispatched a single call must return
// promptly, not block out the full shutdown grace period.
func TestCloseNeverStartedReturnsImmediately(t *testing.T) {
	s := New("never-started", WithShutdownGrace(time.Minute))

	done := make(chan error, 1)
	go func() { done <- s.Close(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close on a never-started Synchronizer did not return promptly")
	}
}

// A panicking error handler is escalated to a loop host failure: the
// Synchronizer enters a terminal failed state and subsequent submissions
// fail fast with a *LoopHostError, rather than the panic silently being
// swallowed or crashing the process.
func TestPanickingErrorHandlerFailsLoopHost(t *testing.T) {
	s := New("failing-handler", WithErrorHandler(func(error) {
		panic("handler exploded")
	}))
	defer s.Close(context.Background())

	boom := WrapFunc(s, func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	_, _ = boom.Call(context.Background())

	require.Eventually(t, func() bool {
		_, err := boom.Call(context.Background())
		var loopErr *LoopHostError
		return errors.As(err, &loopErr)
	}, time.Second, time.Millisecond)
}

// NextAio must not block the shared background loop: a generator that's
// slow to produce its next value must not prevent an unrelated call from
// being dispatched concurrently.
func TestGeneratorNextAioDoesNotBlockLoop(t *testing.T) {
	s := New("gen-aio")
	defer s.Close(context.Background())

	block := make(chan struct{})
	gen := WrapGenerator(s, func(ctx context.Context, yield func(int) error) error {
		<-block
		return yield(1)
	})

	futGen := gen.NextAio(context.Background())

	other := WrapFunc(s, func(ctx context.Context) (int, error) { return 42, nil })
	v, err := other.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	close(block)
	res, err := futGen.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.value)
	assert.True(t, res.ok)
}

// translateOut must hand back the user-facing wrapper, not the internal
// handle, so a caller receiving a previously-wrapped value out of a method
// call can still invoke methods on it.
func TestClassWrapperResultIsUsableWrapper(t *testing.T) {
	s := New("nested-class")
	defer s.Close(context.Background())

	inner := &counter{}
	WrapClass(s, inner) // pre-register, so translateOut's lookup path fires

	outer := &nester{inner: inner}
	w := WrapClass(s, outer)

	out, err := w.Call(context.Background(), "Inner")
	require.NoError(t, err)

	nested, ok := out.(*ClassWrapper)
	require.True(t, ok, "expected *ClassWrapper, got %T", out)

	result, err := nested.Call(context.Background(), "Increment", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result)
}

type nester struct {
	inner *counter
}

func (n *nester) Inner(ctx context.Context) (any, error) {
	return n.inner, nil
}
