package host

import (
	"sync/atomic"
)

// State represents the current state of a [Loop].
//
//	StateAwake → StateRunning        [Run]
//	StateAwake → StateTerminated     [Shutdown, Close]
//	StateRunning → StateTerminating  [Shutdown, Close, ctx done]
//	StateTerminating → StateTerminated
type State uint32

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake State = iota
	// StateRunning indicates the loop is processing tasks and frames.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has stopped.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	v atomic.Uint32
}

func (s *atomicState) load() State { return State(s.v.Load()) }

func (s *atomicState) store(state State) { s.v.Store(uint32(state)) }

func (s *atomicState) tryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
