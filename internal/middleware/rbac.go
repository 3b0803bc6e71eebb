package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/service"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

// ContextRoleKey stores the caller's resolved workspace role after a
// successful permission check.
const ContextRoleKey = "currentRole"

// RequireRole enforces a minimum workspace role for the route. The target
// workspace must already be in context (WorkspaceContext or SpaceFromPath);
// a request without one is rejected before any lookup. Denials and errors
// both refuse access: permission checks fail closed.
func RequireRole(rbac *service.RBACService, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		if userID == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		spaceID := SpaceFromContext(c)
		if spaceID == nil {
			response.Error(c, appErrors.ErrMissingWorkspace)
			c.Abort()
			return
		}

		decision, err := rbac.CheckPermission(c.Request.Context(), userID, spaceID, role)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !decision.Allowed {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, decision.Reason))
			c.Abort()
			return
		}

		c.Set(ContextRoleKey, decision.UserRole)
		c.Next()
	}
}

// RequirePlatformAdmin restricts the route to users with the platform-wide
// admin flag, independent of any workspace.
func RequirePlatformAdmin(rbac *service.RBACService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c)
		if userID == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		isAdmin, err := rbac.IsPlatformAdmin(c.Request.Context(), userID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !isAdmin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "platform admin required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
