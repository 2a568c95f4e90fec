package ws

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
)

// SessionServer runs one terminal session over a transport.
type SessionServer interface {
	Serve(ctx context.Context, t session.Transport, req command.Request) error
}

// Handler upgrades terminal socket requests and hands them to sessions.
type Handler struct {
	sessions SessionServer
	upgrader websocket.Upgrader
	opts     Options
	logger   *logging.Logger
}

// NewHandler creates a socket handler. Browsers from allowedOrigins, or
// from the serving host when the list is empty, may connect.
func NewHandler(sessions SessionServer, logger *logging.Logger, opts Options, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		opts:   opts.withDefaults(),
		logger: logger.Named("ws"),
	}
}

// HandleConnection serves GET {base}/socket and {base}/ssh/:user/socket.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.logger.Debug("WebSocket upgrade failed",
			zap.String("remote_addr", c.ClientIP()),
			zap.Error(err))
		return
	}

	req := ParseRequest(c.Request, c.Param("user"))
	req.RemoteAddr = ws.RemoteAddr().String()

	conn := NewConn(ws, h.logger.With(zap.String("remote_addr", req.RemoteAddr)), h.opts)
	if err := h.sessions.Serve(c.Request.Context(), conn, req); err != nil {
		h.logger.Debug("Session ended with error", zap.String("remote_addr", req.RemoteAddr), zap.Error(err))
	}
	// Serve closes the transport; this only waits for the writer.
	_ = conn.Close(session.ReasonDisconnect, "")
}

// ParseRequest extracts client-declared session parameters: the ssh user
// from the path and host, port and command from the query string. Values
// are untrusted and validated by the resolver.
func ParseRequest(r *http.Request, user string) command.Request {
	q := r.URL.Query()
	req := command.Request{
		User:    strings.TrimSpace(user),
		Host:    strings.TrimSpace(q.Get("host")),
		Command: q.Get("command"),
	}
	if p := strings.TrimSpace(q.Get("port")); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			port = -1
		}
		req.Port = port
	}
	return req
}

// originChecker validates the Origin header to prevent cross-site
// websocket hijacking. Requests without an Origin are not from browsers
// and are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		if len(set) > 0 {
			return false
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
