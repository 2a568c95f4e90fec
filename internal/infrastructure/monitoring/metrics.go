package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Connection metrics
	Connections      prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	ProcessExits     *prometheus.CounterVec
	SpawnErrors      prometheus.Counter
	PolicyViolations *prometheus.CounterVec
	Bytes            *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	ActiveConnections int64   `json:"active_connections"`
	TotalSessions     int64   `json:"total_sessions"`
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry, including
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetty_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wetty_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wetty_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Connection metrics
		Connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wetty_connections",
				Help: "Number of active socket connections",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetty_sessions_total",
				Help: "Total number of finished sessions by close reason",
			},
			[]string{"reason"},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wetty_session_duration_seconds",
				Help:    "Session lifetime in seconds",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
			},
		),
		ProcessExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetty_process_exits_total",
				Help: "Total number of terminal process exits",
			},
			[]string{"kind"},
		),
		SpawnErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wetty_spawn_errors_total",
				Help: "Total number of terminal processes that failed to start",
			},
		),
		PolicyViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetty_policy_violations_total",
				Help: "Total number of rejected connection requests",
			},
			[]string{"field"},
		),
		Bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetty_bytes_total",
				Help: "Total terminal bytes relayed",
			},
			[]string{"direction"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "wetty_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status >= 400 {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// IncConnections increments the connection gauge
func (m *Metrics) IncConnections() {
	m.Connections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecConnections decrements the connection gauge
func (m *Metrics) DecConnections() {
	m.Connections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordSessionEnd records a finished session
func (m *Metrics) RecordSessionEnd(reason string, duration float64) {
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration)
	m.mu.Lock()
	m.snapshot.TotalSessions++
	m.mu.Unlock()
}

// RecordProcessExit records how a terminal process ended
func (m *Metrics) RecordProcessExit(code int, signaled bool) {
	kind := "success"
	switch {
	case signaled:
		kind = "signal"
	case code != 0:
		kind = "failure"
	}
	m.ProcessExits.WithLabelValues(kind).Inc()
}

// RecordSpawnError records a failed process start
func (m *Metrics) RecordSpawnError() {
	m.SpawnErrors.Inc()
}

// RecordPolicyViolation records a rejected request
func (m *Metrics) RecordPolicyViolation(field string) {
	m.PolicyViolations.WithLabelValues(field).Inc()
}

// AddBytes counts relayed terminal bytes; direction is "in" or "out"
func (m *Metrics) AddBytes(direction string, n int) {
	m.Bytes.WithLabelValues(direction).Add(float64(n))
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
