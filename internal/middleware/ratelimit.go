package middleware

import (
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reverie-ai/reverie-api/internal/service"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

// RateLimitOptions configures the admission middleware.
type RateLimitOptions struct {
	Enabled bool
	// BypassPaths are exact request paths never limited: health probes,
	// metrics and the auth endpoints reached before any identity exists.
	BypassPaths []string
}

// RateLimit enforces per-user request budgets. Identity comes from context,
// resolved upstream by OptionalJWT (or the API key middleware); requests
// without one pass through unlimited and are left to the route's own
// authentication. The admitted request is charged after the handler runs;
// check and charge are two steps, so concurrent callers can briefly
// overshoot a boundary.
func RateLimit(limiter *service.RateLimitService, metrics *service.MetricsService, opts RateLimitOptions) gin.HandlerFunc {
	bypass := make(map[string]struct{}, len(opts.BypassPaths))
	for _, p := range opts.BypassPaths {
		bypass[normalizeEndpoint(p)] = struct{}{}
	}

	return func(c *gin.Context) {
		if !opts.Enabled {
			c.Next()
			return
		}

		endpoint := normalizeEndpoint(c.Request.URL.Path)
		if _, ok := bypass[endpoint]; ok {
			c.Next()
			return
		}

		userID := UserIDFromContext(c)
		if userID == "" {
			c.Next()
			return
		}

		result, err := limiter.Check(c.Request.Context(), userID, endpoint)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		response.RateLimitHeaders(c, result)

		if !result.Allowed {
			metrics.RecordRateLimitViolation(result.Window)
			response.RateLimitExceeded(c, result)
			c.Abort()
			return
		}

		c.Next()

		// Charge after the handler so the budgets count requests actually
		// served. A degraded check means the store is down; skip the write.
		if !result.Degraded {
			_ = limiter.Increment(c.Request.Context(), userID, endpoint)
		}
	}
}

// normalizeEndpoint canonicalizes a request path so counter keys and config
// patterns agree: cleaned, single slashes, no trailing slash, and variable
// segments (UUIDs, numeric ids) collapsed to "*". Without the collapse every
// resource id would get its own counter and the limiter would never trigger.
func normalizeEndpoint(raw string) string {
	if raw == "" {
		return "/"
	}
	cleaned := path.Clean("/" + strings.TrimSpace(raw))
	if cleaned != "/" {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}

	segments := strings.Split(cleaned, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if isNumeric(segment) {
			segments[i] = "*"
			continue
		}
		if _, err := uuid.Parse(segment); err == nil {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
