package synchronizer

import (
	"fmt"
	"sync/atomic"
)

// LoopState enumerates the lifecycle states of a Synchronizer's background
// goroutine, mirroring go-eventloop's LoopState but trimmed to the states
// the Synchronizer actually needs: there is no sleeping/paused state here,
// since the background goroutine either hasn't started, is draining tasks,
// is winding down, is gone, or has failed.
type LoopState uint32

const (
	// StateIdle is the state before Start (or the first submitted call) has
	// spun up the background goroutine.
	StateIdle LoopState = iota
	// StateRunning is the normal operating state: the background goroutine
	// is alive and accepting work.
	StateRunning
	// StateTerminating is entered once Close has been called; no new work
	// is accepted, but in-flight calls are allowed to finish draining.
	StateTerminating
	// StateTerminated is the final state: the background goroutine has
	// exited and the Synchronizer will never accept work again.
	StateTerminated
	// StateFailed is a terminal state entered when the background goroutine
	// itself fails in a way no per-task recovery can absorb (the
	// error-handler callback panicking, rather than the user's implementation
	// code, which safeExecute already recovers without failing the loop).
	// All subsequent submissions fail fast with a *LoopHostError.
	StateFailed
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("LoopState(%d)", uint32(s))
	}
}

// lifecycleState is a lock-free wrapper around LoopState, following the
// FastState pattern in go-eventloop/state.go: transitions are performed via
// CompareAndSwap so the hot path (checking whether work can still be
// submitted) never takes a lock.
type lifecycleState struct {
	v atomic.Uint32
}

func (s *lifecycleState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *lifecycleState) Store(state LoopState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts a single from->to transition, returning whether it
// succeeded. Callers use this to implement "only the first caller to
// observe Idle gets to start the loop" races without a mutex.
func (s *lifecycleState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// IsTerminal reports whether the state can never transition again.
func (s *lifecycleState) IsTerminal() bool {
	switch s.Load() {
	case StateTerminated, StateFailed:
		return true
	default:
		return false
	}
}

// CanAcceptWork reports whether new calls may still be submitted.
func (s *lifecycleState) CanAcceptWork() bool {
	switch s.Load() {
	case StateIdle, StateRunning:
		return true
	default:
		return false
	}
}
