package reactor

import "sync/atomic"

// RuntimeState is the lifecycle of a [Runtime].
//
//	StateAwake (0)       → StateRunning (1)       [Start]
//	StateRunning (1)     → StateTerminating (2)   [Shutdown]
//	StateTerminating (2) → StateTerminated (3)    [workers, timer, watcher stopped]
//	StateAwake (0)       → StateTerminated (3)    [Shutdown before Start]
//
// Transitions are performed with CAS via [fastState.TryTransition], which
// succeeds whenever from is the current state; the Runtime only ever
// requests the transitions above, so it has no path back to an earlier
// state.
type RuntimeState uint64

const (
	StateAwake RuntimeState = iota
	StateRunning
	StateTerminating
	StateTerminated
)

// String renders the state's name for logging.
func (s RuntimeState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// fastState is a lock-free state machine guarding the Runtime's lifecycle.
// Cache-line padding on either side of the value prevents false sharing
// with neighbouring fields on the Runtime struct.
type fastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *fastState) Load() RuntimeState {
	return RuntimeState(s.v.Load())
}

func (s *fastState) TryTransition(from, to RuntimeState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

func (s *fastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning
}
