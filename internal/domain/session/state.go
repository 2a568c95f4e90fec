package session

import "sync/atomic"

// State is a session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine enforces forward-only transitions.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

// advance moves from one state to the next; it fails if another
// goroutine moved first.
func (m *stateMachine) advance(from, to State) bool {
	return m.v.CompareAndSwap(int32(from), int32(to))
}
