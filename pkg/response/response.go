package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RateLimitHeaders stamps the X-RateLimit-* headers for an admission
// decision. Remaining tracks the minute window and accounts for the
// in-flight request when it was admitted.
func RateLimitHeaders(c *gin.Context, result *models.RateLimitResult) {
	c.Header("X-RateLimit-Limit-Minute", strconv.Itoa(result.LimitPerMinute))
	c.Header("X-RateLimit-Limit-Hour", strconv.Itoa(result.LimitPerHour))
	c.Header("X-RateLimit-Limit-Day", strconv.Itoa(result.LimitPerDay))

	remaining := int64(result.LimitPerMinute) - result.CurrentCount
	if result.Allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// RateLimitExceeded sends the 429 violation body. Callers stamp the limit
// headers first via RateLimitHeaders.
func RateLimitExceeded(c *gin.Context, result *models.RateLimitResult) {
	c.JSON(http.StatusTooManyRequests, models.RateLimitViolation{
		Message:        "rate limit exceeded",
		Window:         result.Window,
		CurrentCount:   result.CurrentCount,
		LimitPerMinute: result.LimitPerMinute,
		LimitPerHour:   result.LimitPerHour,
		LimitPerDay:    result.LimitPerDay,
		ResetAt:        result.ResetAt,
	})
}
