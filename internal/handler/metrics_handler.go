package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/service"
)

// MetricsHandler exposes the observability endpoints: liveness and the
// Prometheus scrape target. Readiness lives in main, where the dependency
// handles are in scope.
type MetricsHandler struct {
	metrics *service.MetricsService
	started time.Time
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, started: time.Now().UTC()}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health answers liveness probes. It checks nothing beyond the process
// being up; dependency state belongs to the readiness endpoint.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
