package session

import (
	"context"

	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

// EventKind distinguishes client events.
type EventKind int

const (
	EventInput EventKind = iota
	EventResize
)

// Event is one message from the client. Disconnect is signalled by the
// transport closing its event channel.
type Event struct {
	Kind EventKind
	Data []byte
	Size terminal.Geometry
}

// InputEvent wraps terminal input bytes.
func InputEvent(data []byte) Event {
	return Event{Kind: EventInput, Data: data}
}

// ResizeEvent wraps a terminal size report.
func ResizeEvent(size terminal.Geometry) Event {
	return Event{Kind: EventResize, Size: size}
}

// Notice types sent to the client as control messages.
const (
	NoticeLogout = "logout"
	NoticeError  = "error"
)

// Notice is a control message for the client.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Code    *int   `json:"code,omitempty"`
}

// Transport is the client connection as seen by a session. The websocket
// adapter implements it; tests feed synthetic events through fakes.
type Transport interface {
	// Events yields client events in arrival order and is closed when the
	// client disconnects.
	Events() <-chan Event
	// Send delivers process output. It may block under backpressure and
	// fails once the transport cannot keep up or is closed.
	Send(ctx context.Context, data []byte) error
	// Notify delivers a control message.
	Notify(ctx context.Context, n Notice) error
	// Close closes the connection with an explanatory message. Idempotent.
	Close(reason CloseReason, message string) error
}

// Metrics receives session observability events.
type Metrics interface {
	IncConnections()
	DecConnections()
	RecordSessionEnd(reason string, duration float64)
	RecordProcessExit(code int, signaled bool)
	RecordSpawnError()
	RecordPolicyViolation(field string)
	AddBytes(direction string, n int)
}

type nopMetrics struct{}

func (nopMetrics) IncConnections()                  {}
func (nopMetrics) DecConnections()                  {}
func (nopMetrics) RecordSessionEnd(string, float64) {}
func (nopMetrics) RecordProcessExit(int, bool)      {}
func (nopMetrics) RecordSpawnError()                {}
func (nopMetrics) RecordPolicyViolation(string)     {}
func (nopMetrics) AddBytes(string, int)             {}
