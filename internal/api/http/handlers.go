package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/theme"
)

// Handlers contains the read-only HTTP endpoints.
type Handlers struct {
	registry *session.Registry
	themes   *theme.Provider
	metrics  *monitoring.Metrics
}

// NewHandlers creates handlers over the live session registry.
func NewHandlers(registry *session.Registry, themes *theme.Provider, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		registry: registry,
		themes:   themes,
		metrics:  metrics,
	}
}

// Health handles health check requests
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":      "healthy",
		"connections": h.registry.Count(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Themes returns every loaded terminal theme keyed by name.
func (h *Handlers) Themes(c *gin.Context) {
	if h.themes == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, h.themes.All())
}

// ListSessions lists live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.registry.Snapshot()
	if sessions == nil {
		sessions = []session.Info{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one live session.
func (h *Handlers) GetSession(c *gin.Context) {
	info, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Compressed serves h through gzip when the client accepts it.
func Compressed(h http.Handler) gin.HandlerFunc {
	return gin.WrapH(gzhttp.GzipHandler(h))
}

// Assets serves client files from dir under prefix.
func Assets(prefix, dir string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
}
