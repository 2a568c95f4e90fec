package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

// fakeTransport is a socket driven by a test through its events channel.
type fakeTransport struct {
	events chan Event

	mu       sync.Mutex
	out      bytes.Buffer
	chunks   int
	notices  []Notice
	closed   bool
	reason   CloseReason
	message  string
	sendErr  error
	sendGate chan struct{}
	closedCh chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan Event, 64),
		closedCh: make(chan struct{}),
	}
}

func (t *fakeTransport) Events() <-chan Event { return t.events }

func (t *fakeTransport) Send(ctx context.Context, data []byte) error {
	if t.sendGate != nil {
		select {
		case <-t.sendGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.out.Write(data)
	t.chunks++
	return nil
}

func (t *fakeTransport) Notify(_ context.Context, n Notice) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notices = append(t.notices, n)
	return nil
}

func (t *fakeTransport) Close(reason CloseReason, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.reason = reason
	t.message = message
	close(t.closedCh)
	return nil
}

func (t *fakeTransport) output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.String()
}

func (t *fakeTransport) closeInfo() (bool, CloseReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.reason
}

func (t *fakeTransport) noticeTypes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var types []string
	for _, n := range t.notices {
		types = append(types, n.Type)
	}
	return types
}

// disconnect simulates the client going away.
func (t *fakeTransport) disconnect() { close(t.events) }

// fakeProcess is an in-memory process. Output written by the test with
// emit is returned by Read; input written by the bridge is recorded.
type fakeProcess struct {
	output chan []byte
	exit   chan terminal.ExitStatus
	hangup chan struct{}

	mu        sync.Mutex
	input     bytes.Buffer
	resizes   []terminal.Geometry
	ops       []string
	kills     int
	closes    int
	exited    bool
	pending   []byte
	writeErr  error
	ignoreHUP bool

	hangOnce sync.Once
	exitOnce sync.Once
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		output: make(chan []byte, 64),
		exit:   make(chan terminal.ExitStatus, 1),
		hangup: make(chan struct{}),
	}
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) emit(s string) { p.output <- []byte(s) }

// exitWith makes the process exit: output ends, then status is published.
func (p *fakeProcess) exitWith(code int) {
	p.publish(terminal.ExitStatus{Code: code, ExitedAt: time.Now()})
}

// publish delivers the first exit status only, like a real process.
func (p *fakeProcess) publish(st terminal.ExitStatus) {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
	p.hangOnce.Do(func() { close(p.hangup) })
	p.exitOnce.Do(func() { p.exit <- st })
}

func (p *fakeProcess) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case chunk := <-p.output:
		return p.deliver(b, chunk), nil
	case <-p.hangup:
		// Output queued before the hang-up is still readable.
		select {
		case chunk := <-p.output:
			return p.deliver(b, chunk), nil
		default:
		}
		return 0, io.EOF
	}
}

func (p *fakeProcess) deliver(b, chunk []byte) int {
	n := copy(b, chunk)
	if n < len(chunk) {
		p.mu.Lock()
		p.pending = append(p.pending, chunk[n:]...)
		p.mu.Unlock()
	}
	return n
}

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.exited {
		return 0, terminal.ErrProcessClosed
	}
	p.input.Write(b)
	p.ops = append(p.ops, "write:"+string(b))
	return len(b), nil
}

func (p *fakeProcess) Resize(g terminal.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, g)
	p.ops = append(p.ops, "resize:"+g.String())
	return nil
}

func (p *fakeProcess) Exit() <-chan terminal.ExitStatus { return p.exit }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	skip := p.exited || p.ignoreHUP
	p.mu.Unlock()

	if skip {
		return nil
	}
	p.publish(terminal.ExitStatus{Code: -1, Signal: "hangup", ExitedAt: time.Now()})
	return nil
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.hangOnce.Do(func() { close(p.hangup) })
	return nil
}

func (p *fakeProcess) counts() (kills, closes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills, p.closes
}

func (p *fakeProcess) inputString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

func (p *fakeProcess) resizeLog() []terminal.Geometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]terminal.Geometry, len(p.resizes))
	copy(out, p.resizes)
	return out
}

func testBridgeConfig() BridgeConfig {
	return BridgeConfig{
		ReadBufferSize: 4,
		FlushTimeout:   500 * time.Millisecond,
		ReleaseTimeout: 500 * time.Millisecond,
		NotifyTimeout:  100 * time.Millisecond,
	}
}

func (p *fakeProcess) opLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ops))
	copy(out, p.ops)
	return out
}
