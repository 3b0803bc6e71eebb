package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextSpaceKey stores the workspace id the request is scoped to.
const ContextSpaceKey = "currentSpace"

// WorkspaceContext resolves the workspace a request targets: the space_id
// query parameter first, then a space_id field in a JSON body. Extraction
// never rejects a request; permission checks downstream decide what a
// missing workspace means.
func WorkspaceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if spaceID := c.Query("space_id"); spaceID != "" {
			c.Set(ContextSpaceKey, spaceID)
			c.Next()
			return
		}

		if spaceID := spaceIDFromBody(c); spaceID != "" {
			c.Set(ContextSpaceKey, spaceID)
		}
		c.Next()
	}
}

// SpaceFromPath scopes the request to the workspace named by a path
// parameter, overriding anything the global extractor found.
func SpaceFromPath(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param(param); id != "" {
			c.Set(ContextSpaceKey, id)
		}
		c.Next()
	}
}

// spaceIDFromBody peeks at a JSON body for a space_id field, restoring the
// body so handlers can still bind it.
func spaceIDFromBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	switch c.Request.Method {
	case "POST", "PUT", "PATCH", "DELETE":
	default:
		return ""
	}
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}

	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var probe struct {
		SpaceID string `json:"space_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.SpaceID
}

// SpaceFromContext returns the workspace id the request is scoped to. nil
// means no workspace was specified anywhere.
func SpaceFromContext(c *gin.Context) *string {
	if value, exists := c.Get(ContextSpaceKey); exists {
		if id, ok := value.(string); ok && id != "" {
			return &id
		}
	}
	return nil
}
