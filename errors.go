package synchronizer

import (
	"errors"
	"fmt"
)

// Standard errors, mirroring the sentinel style of go-eventloop's loop.go.
var (
	// ErrClosed is returned when a call is submitted to a Synchronizer after
	// its background loop has been shut down.
	ErrClosed = errors.New("synchronizer: closed")

	// ErrReentrantCall is returned when the blocking entry of a wrapper is
	// invoked from within the Synchronizer's own background goroutine; doing
	// so would deadlock, since the background goroutine is the only thing
	// that can ever finalize the coroutine being waited on.
	ErrReentrantCall = errors.New("synchronizer: blocking call invoked from the background goroutine")

	// ErrAlreadyRunning is returned by Start if the background goroutine has
	// already been started.
	ErrAlreadyRunning = errors.New("synchronizer: already running")

	// ErrLoopFailed marks a Synchronizer whose loop host has entered its
	// terminal failed state; all subsequent submissions fail fast with this
	// error wrapped into a LoopHostError.
	ErrLoopFailed = errors.New("synchronizer: loop host failed")
)

// MisuseError reports a call the bridge cannot carry out as asked: a
// ClassWrapper method name that does not exist or whose signature does not
// fit the arguments, a cyclic container passed for translation, or a wrapper
// whose implementation cannot be found. The Wrap* constructors are typed and
// never return it.
type MisuseError struct {
	// Target names the offending value's type, for error messages.
	Target string
	// Reason describes why the target was rejected.
	Reason string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("synchronizer: misuse: %s: %s", e.Target, e.Reason)
}

// CancellationError reports that the in-flight coroutine observed a
// cancellation request, distinguishing it from a plain error returned by
// the user's implementation so callers can discriminate the two (spec
// §7, "cancellation errors").
type CancellationError struct {
	// Cause is the underlying context/cancellation error, if any.
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Cause == nil {
		return "synchronizer: cancelled"
	}
	return fmt.Sprintf("synchronizer: cancelled: %v", e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// ShutdownError reports that a call was submitted to a Synchronizer that has
// been closed (or is in the process of closing). It wraps ErrClosed so
// callers can use errors.Is(err, ErrClosed).
type ShutdownError struct {
	// Name is the Synchronizer's logical name, for error messages.
	Name string
}

func (e *ShutdownError) Error() string {
	if e.Name == "" {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("synchronizer %q: closed", e.Name)
}

func (e *ShutdownError) Unwrap() error { return ErrClosed }

// LoopHostError reports that the Synchronizer's loop host has entered its
// terminal failed state, which happens when the configured error handler
// panics while reporting a task panic.
// Once in this state, a Synchronizer never recovers; it must be recreated.
type LoopHostError struct {
	// Name is the Synchronizer's logical name, for error messages.
	Name string
	// Cause is the error or recovered panic value that terminated the loop.
	Cause error
}

func (e *LoopHostError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("synchronizer: loop host failed: %v", e.Cause)
	}
	return fmt.Sprintf("synchronizer %q: loop host failed: %v", e.Name, e.Cause)
}

func (e *LoopHostError) Unwrap() error { return errors.Join(ErrLoopFailed, e.Cause) }

// PanicError wraps a panic value recovered from user implementation code
// running on the background loop, mirroring go-eventloop's PanicError.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("synchronizer: implementation panicked: %v", e.Value)
}

func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
