package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned when the client goes away before a
	// session could start.
	ErrDisconnected = errors.New("client disconnected")
	// ErrPromptCancelled is returned when the client aborts the login
	// prompt with Ctrl-C or Ctrl-D.
	ErrPromptCancelled = errors.New("login prompt cancelled")
	// ErrPromptTimeout is returned when no username arrives in time.
	ErrPromptTimeout = errors.New("login prompt timed out")
	// ErrAlreadyRunning is returned by Run on a bridge that was started.
	ErrAlreadyRunning = errors.New("bridge already started")
)

// Side names one end of a session.
type Side string

const (
	SideProcess Side = "process"
	SideSocket  Side = "socket"
)

// IOError is a read or write failure on either side of a running
// session. It ends the session but never affects other sessions.
type IOError struct {
	Side Side
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CloseReason records which trigger ended a session.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonDisconnect
	ReasonProcessExit
	ReasonIOError
	ReasonShutdown
	ReasonPolicy
	ReasonSpawn
)

func (r CloseReason) String() string {
	switch r {
	case ReasonDisconnect:
		return "disconnect"
	case ReasonProcessExit:
		return "process_exit"
	case ReasonIOError:
		return "io_error"
	case ReasonShutdown:
		return "shutdown"
	case ReasonPolicy:
		return "policy_violation"
	case ReasonSpawn:
		return "spawn_error"
	default:
		return "none"
	}
}

// Message is the text sent to the client when the socket is closed.
func (r CloseReason) Message() string {
	switch r {
	case ReasonProcessExit:
		return "session ended"
	case ReasonIOError:
		return "connection error"
	case ReasonShutdown:
		return "server shutting down"
	case ReasonPolicy:
		return "request not permitted"
	case ReasonSpawn:
		return "failed to start terminal"
	default:
		return ""
	}
}
