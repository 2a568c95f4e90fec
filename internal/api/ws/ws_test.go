package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

// echoSessions echoes input back and ends the session on "exit".
type echoSessions struct {
	requests     chan command.Request
	resizes      chan terminal.Geometry
	disconnected chan struct{}
}

func newEchoSessions() *echoSessions {
	return &echoSessions{
		requests:     make(chan command.Request, 1),
		resizes:      make(chan terminal.Geometry, 8),
		disconnected: make(chan struct{}, 1),
	}
}

func (s *echoSessions) Serve(ctx context.Context, t session.Transport, req command.Request) error {
	s.requests <- req
	for ev := range t.Events() {
		switch ev.Kind {
		case session.EventInput:
			if string(ev.Data) == "exit" {
				code := 0
				_ = t.Notify(ctx, session.Notice{Type: session.NoticeLogout, Code: &code})
				return t.Close(session.ReasonProcessExit, session.ReasonProcessExit.Message())
			}
			if err := t.Send(ctx, ev.Data); err != nil {
				return err
			}
		case session.EventResize:
			s.resizes <- ev.Size
		}
	}
	s.disconnected <- struct{}{}
	return t.Close(session.ReasonDisconnect, "")
}

func startServer(t *testing.T, sessions SessionServer, allowed []string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(sessions, nil, Options{PingInterval: time.Second, WriteTimeout: time.Second}, allowed)

	router := gin.New()
	router.GET("/wetty/socket", h.HandleConnection)
	router.GET("/wetty/ssh/:user/socket", h.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEchoRoundTrip(t *testing.T) {
	sessions := newEchoSessions()
	srv := startServer(t, sessions, nil)
	client := dial(t, srv, "/wetty/socket", nil)
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("ls\n")))
	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "ls\n", string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"input","data":"pwd\n"}`)))
	_, data, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pwd\n", string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"resize","cols":120,"rows":40}`)))
	select {
	case size := <-sessions.resizes:
		assert.Equal(t, terminal.Geometry{Rows: 40, Cols: 120}, size)
	case <-time.After(5 * time.Second):
		t.Fatal("resize not delivered")
	}
}

func TestProcessExitClosesWithReason(t *testing.T) {
	sessions := newEchoSessions()
	srv := startServer(t, sessions, nil)
	client := dial(t, srv, "/wetty/socket", nil)
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("exit")))

	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.JSONEq(t, `{"type":"logout","code":0}`, string(data))

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "session ended", closeErr.Text)
}

func TestClientDisconnectEndsEvents(t *testing.T) {
	sessions := newEchoSessions()
	srv := startServer(t, sessions, nil)
	client := dial(t, srv, "/wetty/socket", nil)

	<-sessions.requests
	require.NoError(t, client.Close())

	select {
	case <-sessions.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not observed")
	}
}

func TestRequestFromURL(t *testing.T) {
	sessions := newEchoSessions()
	srv := startServer(t, sessions, nil)
	dial(t, srv, "/wetty/ssh/alice/socket?host=db.internal&port=2222&command=top", nil)

	select {
	case req := <-sessions.requests:
		assert.Equal(t, "alice", req.User)
		assert.Equal(t, "db.internal", req.Host)
		assert.Equal(t, 2222, req.Port)
		assert.Equal(t, "top", req.Command)
		assert.NotEmpty(t, req.RemoteAddr)
	case <-time.After(5 * time.Second):
		t.Fatal("session not started")
	}
}

func TestCrossOriginRejected(t *testing.T) {
	srv := startServer(t, newEchoSessions(), nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/wetty/socket"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name string
		url  string
		user string
		want command.Request
	}{
		{name: "empty", url: "/socket", want: command.Request{}},
		{
			name: "all fields",
			url:  "/ssh/bob/socket?host=example.com&port=22&command=htop",
			user: "bob",
			want: command.Request{User: "bob", Host: "example.com", Port: 22, Command: "htop"},
		},
		{name: "bad port", url: "/socket?port=abc", want: command.Request{Port: -1}},
		{name: "trimmed", url: "/socket?host=%20h%20", user: " u ", want: command.Request{User: "u", Host: "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			assert.Equal(t, tt.want, ParseRequest(r, tt.user))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://term.example:3000/socket", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	same := originChecker(nil)
	assert.True(t, same(req("")))
	assert.True(t, same(req("http://term.example:3000")))
	assert.False(t, same(req("http://other.example")))

	listed := originChecker([]string{"https://app.example/"})
	assert.True(t, listed(req("https://app.example")))
	assert.False(t, listed(req("http://term.example:3000")))

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(req("https://whatever.example")))
}

func TestDecodeFrame(t *testing.T) {
	ev, err := decodeFrame(websocket.BinaryMessage, []byte{0x1b, '[', 'A'})
	require.NoError(t, err)
	assert.Equal(t, session.EventInput, ev.Kind)
	assert.Equal(t, []byte{0x1b, '[', 'A'}, ev.Data)

	ev, err = decodeFrame(websocket.TextMessage, []byte(`{"type":"resize","cols":80,"rows":24}`))
	require.NoError(t, err)
	assert.Equal(t, session.EventResize, ev.Kind)
	assert.Equal(t, terminal.Geometry{Rows: 24, Cols: 80}, ev.Size)

	_, err = decodeFrame(websocket.TextMessage, []byte(`{"type":"resize","cols":0,"rows":24}`))
	assert.ErrorIs(t, err, terminal.ErrInvalidGeometry)

	_, err = decodeFrame(websocket.TextMessage, []byte(`{"type":"dance"}`))
	assert.ErrorIs(t, err, errUnknownControl)

	_, err = decodeFrame(websocket.TextMessage, []byte(`not json`))
	assert.Error(t, err)
}

func TestCloseMessage(t *testing.T) {
	assert.Equal(t, websocket.CloseNormalClosure, closeCode(session.ReasonProcessExit))
	assert.Equal(t, websocket.CloseGoingAway, closeCode(session.ReasonShutdown))
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(session.ReasonPolicy))
	assert.Equal(t, websocket.CloseInternalServerErr, closeCode(session.ReasonIOError))

	msg := closeMessage(session.ReasonPolicy, strings.Repeat("x", 500))
	assert.LessOrEqual(t, len(msg), 125)
}

func TestSendAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws, nil, Options{})
		assert.NoError(t, conn.Close(session.ReasonShutdown, "bye"))
		assert.ErrorIs(t, conn.Send(context.Background(), []byte("late")), ErrClosed)
		assert.ErrorIs(t, conn.Notify(context.Background(), session.Notice{Type: session.NoticeError}), ErrClosed)
		// Closing twice is harmless.
		assert.NoError(t, conn.Close(session.ReasonShutdown, "bye"))
	}))
	defer srv.Close()

	client := dial(t, srv, "/", nil)
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "bye", closeErr.Text)
}
