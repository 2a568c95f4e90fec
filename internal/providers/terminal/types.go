package terminal

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrProcessClosed is returned by operations on a released process.
	ErrProcessClosed = errors.New("terminal process closed")
	// ErrInvalidGeometry is returned for zero or oversized dimensions.
	ErrInvalidGeometry = errors.New("invalid terminal geometry")
)

// Geometry is a terminal size in character cells.
type Geometry struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// DefaultGeometry is used when a client has not reported its size yet.
var DefaultGeometry = Geometry{Rows: 24, Cols: 80}

// NewGeometry validates client-reported dimensions. Zero, negative and
// out-of-range values are rejected rather than forwarded to the pty.
func NewGeometry(rows, cols int) (Geometry, error) {
	if rows <= 0 || cols <= 0 || rows > 0xffff || cols > 0xffff {
		return Geometry{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, cols, rows)
	}
	return Geometry{Rows: uint16(rows), Cols: uint16(cols)}, nil
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool {
	return g.Rows > 0 && g.Cols > 0
}

// OrDefault replaces zero dimensions with the defaults.
func (g Geometry) OrDefault() Geometry {
	if g.Rows == 0 {
		g.Rows = DefaultGeometry.Rows
	}
	if g.Cols == 0 {
		g.Cols = DefaultGeometry.Cols
	}
	return g
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Cols, g.Rows)
}

// ExitStatus is the terminal status of a supervised process.
type ExitStatus struct {
	Code     int
	Signal   string
	ExitedAt time.Time
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != ""
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return "signal: " + s.Signal
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// SpawnError reports that the process could not be created.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Process is one supervised process attached to a pseudo-terminal. A
// Process is owned by exactly one session.
type Process interface {
	// Read returns process output. It returns io.EOF once the terminal
	// has hung up.
	io.Reader
	// Write queues input for the process. It blocks only while the input
	// queue is full and fails with ErrProcessClosed after exit or Close.
	Write(p []byte) (int, error)
	// Resize updates the pty window size.
	Resize(g Geometry) error
	// Exit delivers the exit status exactly once.
	Exit() <-chan ExitStatus
	// Kill asks the process to terminate. Idempotent; a no-op after exit.
	Kill() error
	// Close kills the process if needed and releases the pty.
	Close() error
	Pid() int
}
