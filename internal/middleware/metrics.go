package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/service"
)

// Metrics captures per-request metrics. Matched routes are labeled by their
// gin template; unmatched paths are collapsed the same way the rate limiter
// collapses them, so 404 scans cannot inflate label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = normalizeEndpoint(c.Request.URL.Path)
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
