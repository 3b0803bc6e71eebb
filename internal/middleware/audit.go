package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/repository"
)

// Audit records an audit trail entry after successful requests. Failures
// are dropped silently; the audit trail never affects request outcomes.
func Audit(repo *repository.AuditRepository, action, entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if id := UserIDFromContext(c); id != "" {
			userID = &id
		}

		var entityID *string
		if id := c.Param("id"); id != "" {
			entityID = &id
		}

		_ = repo.Create(c.Request.Context(), &models.AuditLog{
			UserID:   userID,
			Action:   action,
			Entity:   entity,
			EntityID: entityID,
			Metadata: models.JSONMap{
				"path":       c.FullPath(),
				"method":     c.Request.Method,
				"status":     fmt.Sprintf("%d", c.Writer.Status()),
				"latency_ms": fmt.Sprintf("%d", time.Since(start).Milliseconds()),
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
	}
}
