package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionGauge(t *testing.T) {
	m := NewMetrics()

	m.IncConnections()
	m.IncConnections()
	m.DecConnections()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, int64(1), m.Snapshot().ActiveConnections)
}

func TestSessionMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordSessionEnd("process_exit", 12)
	m.RecordSessionEnd("disconnect", 3)
	m.RecordProcessExit(0, false)
	m.RecordProcessExit(1, false)
	m.RecordProcessExit(-1, true)
	m.RecordSpawnError()
	m.RecordPolicyViolation("host")
	m.AddBytes("in", 3)
	m.AddBytes("out", 12)
	m.AddBytes("out", 8)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("process_exit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessExits.WithLabelValues("signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessExits.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpawnErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyViolations.WithLabelValues("host")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.Bytes.WithLabelValues("out")))
	assert.Equal(t, int64(2), m.Snapshot().TotalSessions)
}

func TestInstancesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "wetty_connections")
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "wetty_uptime_seconds")
}
