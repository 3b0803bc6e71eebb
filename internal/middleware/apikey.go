package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/service"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

// APIKeyHeader carries the raw key on service-to-service requests.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth protects routes by requiring a valid API key. Authentication
// also charges one request against the key's own budget, so a revoked or
// exhausted key is rejected here.
func APIKeyAuth(keys *service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(APIKeyHeader)
		if raw == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing api key"))
			c.Abort()
			return
		}

		identity, err := keys.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextAPIKeyKey, identity)
		c.Set(ContextUserIDKey, identity.UserID)
		c.Next()
	}
}

// APIKeyFromContext returns the authenticated key identity, or nil when
// the request was not key-authenticated.
func APIKeyFromContext(c *gin.Context) *models.APIKeyIdentity {
	value, exists := c.Get(ContextAPIKeyKey)
	if !exists {
		return nil
	}
	identity, ok := value.(*models.APIKeyIdentity)
	if !ok {
		return nil
	}
	return identity
}

// RequireScope gates an API key route on a capability. Routes behind
// APIKeyAuth only; JWT callers never reach it.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextAPIKeyKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		identity := value.(*models.APIKeyIdentity)
		if !identity.Scopes.Contains(scope) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "api key lacks required scope"))
			c.Abort()
			return
		}
		c.Next()
	}
}
