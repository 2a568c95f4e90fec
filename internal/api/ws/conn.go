package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
)

var (
	// ErrSlowConsumer is returned by Send when the client has not drained
	// its outbound queue within the write timeout.
	ErrSlowConsumer = errors.New("client is not reading output")
	// ErrClosed is returned once the connection is closed.
	ErrClosed = errors.New("connection closed")
)

// Options tunes one websocket connection.
type Options struct {
	// EventQueue bounds client events waiting for the session.
	EventQueue int
	// SendQueue bounds frames waiting to be written to the client.
	SendQueue int
	// WriteTimeout bounds a single frame write and how long Send waits
	// for queue space.
	WriteTimeout time.Duration
	// PingInterval is the keepalive period; a client silent for two
	// intervals is dropped.
	PingInterval time.Duration
	// MaxMessageSize is the largest frame accepted from the client.
	MaxMessageSize int64
}

// DefaultOptions returns production connection settings.
func DefaultOptions() Options {
	return Options{
		EventQueue:     64,
		SendQueue:      64,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.EventQueue <= 0 {
		o.EventQueue = d.EventQueue
	}
	if o.SendQueue <= 0 {
		o.SendQueue = d.SendQueue
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	return o
}

type frame struct {
	messageType int
	data        []byte
}

// Conn adapts a websocket to session.Transport. A reader goroutine feeds
// Events and a writer goroutine owns every write to the socket.
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *logging.Logger

	events  chan session.Event
	out     chan frame
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeMsg  []byte
}

// NewConn starts the read and write pumps for an upgraded connection.
func NewConn(ws *websocket.Conn, logger *logging.Logger, opts Options) *Conn {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.withDefaults()
	c := &Conn{
		ws:      ws,
		opts:    opts,
		logger:  logger,
		events:  make(chan session.Event, opts.EventQueue),
		out:     make(chan frame, opts.SendQueue),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Events yields client events and is closed when the client goes away.
func (c *Conn) Events() <-chan session.Event { return c.events }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// Send queues process output as a binary frame. A full queue blocks the
// caller for up to WriteTimeout before failing with ErrSlowConsumer.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	return c.enqueue(ctx, frame{websocket.BinaryMessage, data})
}

// Notify queues a JSON control message as a text frame.
func (c *Conn) Notify(ctx context.Context, n session.Notice) error {
	data, err := encodeNotice(n)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, frame{websocket.TextMessage, data})
}

func (c *Conn) enqueue(ctx context.Context, f frame) error {
	select {
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- f:
		return nil
	default:
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case c.out <- f:
		return nil
	case <-timer.C:
		return ErrSlowConsumer
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	}
}

// Close flushes queued frames, sends a close frame carrying message and
// releases the socket. It is idempotent and returns once the writer has
// finished.
func (c *Conn) Close(reason session.CloseReason, message string) error {
	c.closeOnce.Do(func() {
		c.closeMsg = closeMessage(reason, message)
		close(c.closing)
	})
	<-c.done
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)

	pongWait := 2 * c.opts.PingInterval
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := decodeFrame(messageType, data)
		if err != nil {
			c.logger.Debug("Ignored client frame", zap.Error(err))
			continue
		}

		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				c.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("WebSocket ping failed", zap.Error(err))
				return
			}

		case <-c.closing:
			c.flush()
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.CloseMessage, c.closeMsg, deadline); err != nil {
				c.logger.Debug("WebSocket close frame not sent", zap.Error(err))
			}
			return
		}
	}
}

// flush writes frames queued before Close.
func (c *Conn) flush() {
	for {
		select {
		case f := <-c.out:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(f frame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(f.messageType, f.data)
}
