package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

// BridgeConfig bounds the bridge's waits during teardown.
type BridgeConfig struct {
	// ReadBufferSize is the process read chunk size.
	ReadBufferSize int
	// FlushTimeout bounds how long remaining output is drained to the
	// client after the process exits.
	FlushTimeout time.Duration
	// ReleaseTimeout bounds how long teardown waits for the process to
	// exit after a kill.
	ReleaseTimeout time.Duration
	// NotifyTimeout bounds control messages sent during teardown.
	NotifyTimeout time.Duration
}

// DefaultBridgeConfig returns the production bridge settings.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		ReadBufferSize: 32 * 1024,
		FlushTimeout:   2 * time.Second,
		ReleaseTimeout: 5 * time.Second,
		NotifyTimeout:  time.Second,
	}
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	d := DefaultBridgeConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	if c.ReleaseTimeout <= 0 {
		c.ReleaseTimeout = d.ReleaseTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	return c
}

// Result describes how a session ended.
type Result struct {
	Reason CloseReason
	Exit   *terminal.ExitStatus
	Err    error
}

// Bridge pumps bytes between one process and one client transport and
// owns both for the lifetime of the session.
type Bridge struct {
	id        string
	transport Transport
	proc      terminal.Process
	logger    *logging.Logger
	metrics   Metrics
	cfg       BridgeConfig

	state    stateMachine
	killOnce sync.Once

	mu     sync.Mutex
	size   terminal.Geometry
	result Result
}

// NewBridge attaches a spawned process to a client transport. Run must be
// called to start pumping.
func NewBridge(id string, transport Transport, proc terminal.Process, logger *logging.Logger, metrics Metrics, cfg BridgeConfig) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Bridge{
		id:        id,
		transport: transport,
		proc:      proc,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg.withDefaults(),
	}
}

// ID returns the connection id.
func (b *Bridge) ID() string { return b.id }

// State returns the current lifecycle state.
func (b *Bridge) State() State { return b.state.load() }

// Size returns the last geometry applied to the pty.
func (b *Bridge) Size() terminal.Geometry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Result returns how the session ended; zero until Closed.
func (b *Bridge) Result() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// Run pumps I/O until the first close trigger fires: client disconnect,
// process exit, an I/O error or ctx cancellation. It tears both sides
// down before returning. The returned error is non-nil only for I/O
// failures.
func (b *Bridge) Run(ctx context.Context) (Result, error) {
	if !b.state.advance(StateConnecting, StateActive) {
		return Result{}, ErrAlreadyRunning
	}

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()

	output := make(chan error, 1)
	go b.pumpOutput(pumpCtx, output)

	res, outputDone := b.loop(ctx, output)

	b.state.advance(StateActive, StateClosing)
	b.teardown(&res, output, outputDone, cancelPump)
	b.state.advance(StateClosing, StateClosed)

	b.mu.Lock()
	b.result = res
	b.mu.Unlock()

	return res, res.Err
}

// loop is the socket-to-process direction. It returns the winning close
// trigger.
func (b *Bridge) loop(ctx context.Context, output <-chan error) (res Result, outputDone bool) {
	events := b.transport.Events()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return Result{Reason: ReasonDisconnect}, false
			}
			disconnected, err := b.handle(ev, events)
			if err != nil {
				return Result{Reason: ReasonIOError, Err: err}, false
			}
			if disconnected {
				return Result{Reason: ReasonDisconnect}, false
			}

		case st := <-b.proc.Exit():
			return Result{Reason: ReasonProcessExit, Exit: &st}, false

		case err := <-output:
			if err != nil {
				return Result{Reason: ReasonIOError, Err: err}, true
			}
			// The terminal hung up; the exit status normally follows.
			select {
			case st := <-b.proc.Exit():
				return Result{Reason: ReasonProcessExit, Exit: &st}, true
			case <-time.After(b.cfg.FlushTimeout):
				return Result{Reason: ReasonIOError, Err: &IOError{Side: SideProcess, Op: "read", Err: io.EOF}}, true
			}

		case <-ctx.Done():
			return Result{Reason: ReasonShutdown}, false
		}
	}
}

// handle applies one client event. Consecutive resizes already queued
// are coalesced so only the latest valid geometry reaches the pty, while
// input that follows a resize is still written after it.
func (b *Bridge) handle(ev Event, events <-chan Event) (disconnected bool, err error) {
	switch ev.Kind {
	case EventInput:
		return false, b.writeInput(ev.Data)

	case EventResize:
		size := ev.Size
		for {
			select {
			case next, ok := <-events:
				if !ok {
					b.resize(size)
					return true, nil
				}
				if next.Kind == EventResize {
					if next.Size.Valid() {
						size = next.Size
					}
					continue
				}
				b.resize(size)
				return b.handle(next, events)
			default:
				b.resize(size)
				return false, nil
			}
		}
	}
	return false, nil
}

func (b *Bridge) writeInput(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := b.proc.Write(data); err != nil {
		if errors.Is(err, terminal.ErrProcessClosed) {
			// The process is exiting; its exit status ends the session.
			b.logger.Debug("Dropped input for exiting process", zap.Int("bytes", len(data)))
			return nil
		}
		return &IOError{Side: SideProcess, Op: "write", Err: err}
	}
	b.metrics.AddBytes("in", len(data))
	return nil
}

func (b *Bridge) resize(size terminal.Geometry) {
	if !size.Valid() {
		b.logger.Debug("Ignored invalid resize", zap.Stringer("size", size))
		return
	}
	if err := b.proc.Resize(size); err != nil {
		b.logger.Warn("Failed to resize terminal", zap.Stringer("size", size), zap.Error(err))
		return
	}
	b.mu.Lock()
	b.size = size
	b.mu.Unlock()
}

// pumpOutput is the process-to-socket direction. A slow client blocks
// Send, which in turn stops reads from the pty.
func (b *Bridge) pumpOutput(ctx context.Context, done chan<- error) {
	buf := make([]byte, b.cfg.ReadBufferSize)
	for {
		n, err := b.proc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if serr := b.transport.Send(ctx, chunk); serr != nil {
				done <- &IOError{Side: SideSocket, Op: "send", Err: serr}
				return
			}
			b.metrics.AddBytes("out", n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				done <- nil
			} else {
				done <- &IOError{Side: SideProcess, Op: "read", Err: err}
			}
			return
		}
	}
}

func (b *Bridge) teardown(res *Result, output <-chan error, outputDone bool, cancelPump context.CancelFunc) {
	if res.Reason == ReasonProcessExit {
		// Let buffered output reach the client before the socket closes.
		if !outputDone {
			select {
			case <-output:
				outputDone = true
			case <-time.After(b.cfg.FlushTimeout):
			}
		}
		b.notify(Notice{Type: NoticeLogout, Code: exitCode(res.Exit)})
	} else {
		b.stopProcess(res)
		if res.Reason == ReasonIOError || res.Reason == ReasonShutdown {
			b.notify(Notice{Type: NoticeError, Message: res.Reason.Message()})
		}
	}

	cancelPump()
	if err := b.transport.Close(res.Reason, res.Reason.Message()); err != nil {
		b.logger.Debug("Transport close failed", zap.Error(err))
	}
	if err := b.proc.Close(); err != nil {
		b.logger.Warn("Failed to release process", zap.Error(err))
	}
	if !outputDone {
		select {
		case <-output:
		case <-time.After(b.cfg.FlushTimeout):
			b.logger.Debug("Output pump did not stop in time")
		}
	}

	if res.Exit != nil {
		b.metrics.RecordProcessExit(res.Exit.Code, res.Exit.Signaled())
	}
}

// stopProcess kills the process unless it already exited. Kill is issued
// at most once per session regardless of racing triggers.
func (b *Bridge) stopProcess(res *Result) {
	select {
	case st := <-b.proc.Exit():
		res.Exit = &st
		return
	default:
	}

	b.killOnce.Do(func() {
		if err := b.proc.Kill(); err != nil {
			b.logger.Warn("Failed to kill process", zap.Error(err))
		}
	})

	select {
	case st := <-b.proc.Exit():
		res.Exit = &st
	case <-time.After(b.cfg.ReleaseTimeout):
		b.logger.Warn("Process did not exit after kill", zap.Duration("timeout", b.cfg.ReleaseTimeout))
	}
}

func (b *Bridge) notify(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.NotifyTimeout)
	defer cancel()
	if err := b.transport.Notify(ctx, n); err != nil {
		b.logger.Debug("Notice not delivered", zap.String("type", n.Type), zap.Error(err))
	}
}

func exitCode(st *terminal.ExitStatus) *int {
	if st == nil {
		return nil
	}
	code := st.Code
	return &code
}
