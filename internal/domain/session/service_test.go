package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
)

type recordingMetrics struct {
	mu          sync.Mutex
	connections int
	ends        map[string]int
	exits       []int
	spawnErrors int
	violations  []string
	bytes       map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ends: map[string]int{}, bytes: map[string]int{}}
}

func (m *recordingMetrics) IncConnections() { m.mu.Lock(); m.connections++; m.mu.Unlock() }
func (m *recordingMetrics) DecConnections() { m.mu.Lock(); m.connections--; m.mu.Unlock() }

func (m *recordingMetrics) RecordSessionEnd(reason string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends[reason]++
}

func (m *recordingMetrics) RecordProcessExit(code int, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits = append(m.exits, code)
}

func (m *recordingMetrics) RecordSpawnError() { m.mu.Lock(); m.spawnErrors++; m.mu.Unlock() }

func (m *recordingMetrics) RecordPolicyViolation(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = append(m.violations, field)
}

func (m *recordingMetrics) AddBytes(direction string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[direction] += n
}

func (m *recordingMetrics) gauge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections
}

func (m *recordingMetrics) endCount(reason CloseReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ends[reason.String()]
}

type fakeSpawner struct {
	mu    sync.Mutex
	proc  *fakeProcess
	err   error
	specs []command.Spec
	sizes []terminal.Geometry
}

func (s *fakeSpawner) Spawn(_ context.Context, spec command.Spec, size terminal.Geometry) (terminal.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	s.sizes = append(s.sizes, size)
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

func (s *fakeSpawner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.specs)
}

func newTestService(policy command.Policy, sp *fakeSpawner, m *recordingMetrics) *Service {
	cfg := Config{Bridge: testBridgeConfig(), PromptTimeout: time.Second}
	resolver := command.NewResolver(policy, command.LoginCommand, false)
	return NewService(resolver, sp, NewRegistry(m), nil, m, cfg)
}

func serveAsync(svc *Service, ctx context.Context, tr Transport, req command.Request) <-chan error {
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, tr, req) }()
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}

func TestServeSSHSession(t *testing.T) {
	m := newRecordingMetrics()
	sp := &fakeSpawner{proc: newFakeProcess()}
	svc := newTestService(command.Policy{Host: "example.com", User: "alice"}, sp, m)
	tr := newFakeTransport()

	done := serveAsync(svc, context.Background(), tr, command.Request{RemoteAddr: "10.1.1.1:5000"})

	require.Eventually(t, func() bool { return svc.Registry().Count() == 1 && sp.calls() == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, sp.specs[0].Args, "alice@example.com")
	assert.Equal(t, terminal.Geometry{}, sp.sizes[0])

	require.Eventually(t, func() bool {
		snap := svc.Registry().Snapshot()
		return len(snap) == 1 && snap[0].State == StateActive.String()
	}, time.Second, time.Millisecond)
	snap := svc.Registry().Snapshot()
	assert.True(t, snap[0].SSH)
	assert.Equal(t, "ssh", snap[0].Command)

	tr.events <- InputEvent([]byte("ls\n"))
	sp.proc.emit("file1\nfile2\n")
	require.Eventually(t, func() bool { return tr.output() == "file1\nfile2\n" }, time.Second, time.Millisecond)
	assert.Equal(t, "ls\n", sp.proc.inputString())

	sp.proc.exitWith(0)
	require.NoError(t, waitServe(t, done))

	assert.Equal(t, int64(0), svc.Registry().Count())
	assert.Equal(t, 0, m.gauge())
	assert.Equal(t, 1, m.endCount(ReasonProcessExit))
	kills, _ := sp.proc.counts()
	assert.Equal(t, 0, kills)
}

func TestServePromptsForUser(t *testing.T) {
	m := newRecordingMetrics()
	sp := &fakeSpawner{proc: newFakeProcess()}
	svc := newTestService(command.Policy{Host: "example.com"}, sp, m)
	tr := newFakeTransport()
	tr.events <- ResizeEvent(terminal.Geometry{Rows: 40, Cols: 100})
	tr.events <- InputEvent([]byte("bob\r"))

	done := serveAsync(svc, context.Background(), tr, command.Request{})

	require.Eventually(t, func() bool { return sp.calls() == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, sp.specs[0].Args, "bob@example.com")
	assert.Equal(t, terminal.Geometry{Rows: 40, Cols: 100}, sp.sizes[0])
	assert.Contains(t, tr.output(), "example.com login: ")

	tr.disconnect()
	require.NoError(t, waitServe(t, done))
	assert.Equal(t, 1, m.endCount(ReasonDisconnect))
}

func TestServeRejectsPolicyViolation(t *testing.T) {
	m := newRecordingMetrics()
	sp := &fakeSpawner{proc: newFakeProcess()}
	svc := newTestService(command.Policy{Host: "example.com", User: "alice", AllowRemoteHosts: true}, sp, m)
	tr := newFakeTransport()

	err := svc.Serve(context.Background(), tr, command.Request{Host: "-oProxyCommand=evil"})
	require.Error(t, err)
	assert.True(t, command.IsPolicyViolation(err))

	closed, reason := tr.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, ReasonPolicy, reason)
	assert.Contains(t, tr.noticeTypes(), NoticeError)
	assert.Equal(t, 0, sp.calls())
	assert.Equal(t, []string{"host"}, m.violations)
	assert.Equal(t, int64(0), svc.Registry().Count())
}

func TestServeSpawnFailure(t *testing.T) {
	m := newRecordingMetrics()
	sp := &fakeSpawner{err: &terminal.SpawnError{Path: "ssh", Err: errors.New("not found")}}
	svc := newTestService(command.Policy{Host: "example.com", User: "alice"}, sp, m)
	tr := newFakeTransport()

	err := svc.Serve(context.Background(), tr, command.Request{})
	require.Error(t, err)

	closed, reason := tr.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, ReasonSpawn, reason)
	assert.Equal(t, 1, m.spawnErrors)
	assert.Equal(t, 1, m.endCount(ReasonSpawn))
	assert.Equal(t, 0, m.gauge())
}

func TestServeDisconnectDuringPrompt(t *testing.T) {
	sp := &fakeSpawner{proc: newFakeProcess()}
	svc := newTestService(command.Policy{Host: "example.com"}, sp, newRecordingMetrics())
	tr := newFakeTransport()
	tr.disconnect()

	err := svc.Serve(context.Background(), tr, command.Request{})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, 0, sp.calls())

	_, reason := tr.closeInfo()
	assert.Equal(t, ReasonDisconnect, reason)
}

func TestServeCloseAllShutsSessionsDown(t *testing.T) {
	m := newRecordingMetrics()
	sp := &fakeSpawner{proc: newFakeProcess()}
	svc := newTestService(command.Policy{Host: "example.com", User: "alice"}, sp, m)
	tr := newFakeTransport()

	done := serveAsync(svc, context.Background(), tr, command.Request{})
	require.Eventually(t, func() bool {
		snap := svc.Registry().Snapshot()
		return len(snap) == 1 && snap[0].State == StateActive.String()
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Registry().CloseAll(ctx))
	require.NoError(t, waitServe(t, done))

	_, reason := tr.closeInfo()
	assert.Equal(t, ReasonShutdown, reason)
	kills, _ := sp.proc.counts()
	assert.Equal(t, 1, kills)
}
