package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/service"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

// Context keys for request-scoped identity.
const (
	// ContextUserKey stores the access token claims.
	ContextUserKey = "currentUser"
	// ContextUserIDKey stores the resolved user id, set by both the JWT and
	// API key middlewares so downstream code has one identity source.
	ContextUserIDKey = "currentUserID"
	// ContextAPIKeyKey stores the API key identity when that path was used.
	ContextAPIKeyKey = "currentAPIKey"
)

// JWT protects routes by requiring a valid access token.
func JWT(tokens *service.TokenService, metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateAccessToken(parts[1])
		if err != nil {
			metrics.RecordAuthFailure()
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block.
func OptionalJWT(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		claims, err := tokens.ValidateAccessToken(parts[1])
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

// UserIDFromContext returns the authenticated user id, or "" when the
// request carries no identity.
func UserIDFromContext(c *gin.Context) string {
	if value, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// ClaimsFromContext returns the access token claims when a JWT was used.
func ClaimsFromContext(c *gin.Context) *models.AccessClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}
