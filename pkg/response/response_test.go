package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverie-ai/reverie-api/internal/models"
)

func recordedContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, recorder
}

func TestRateLimitHeadersAdmitted(t *testing.T) {
	c, recorder := recordedContext()
	reset := time.Now().UTC().Add(42 * time.Second)

	RateLimitHeaders(c, &models.RateLimitResult{
		Allowed:        true,
		CurrentCount:   2,
		LimitPerMinute: 5,
		LimitPerHour:   50,
		LimitPerDay:    500,
		ResetAt:        reset,
	})

	headers := recorder.Header()
	assert.Equal(t, "5", headers.Get("X-RateLimit-Limit-Minute"))
	assert.Equal(t, "50", headers.Get("X-RateLimit-Limit-Hour"))
	assert.Equal(t, "500", headers.Get("X-RateLimit-Limit-Day"))
	// 5 budget, 2 already counted, this request takes one more.
	assert.Equal(t, "2", headers.Get("X-RateLimit-Remaining"))
	assert.Equal(t, reset.Unix(), mustParseInt(t, headers.Get("X-RateLimit-Reset")))
}

func TestRateLimitHeadersRejectedClampsRemaining(t *testing.T) {
	c, recorder := recordedContext()

	RateLimitHeaders(c, &models.RateLimitResult{
		Allowed:        false,
		CurrentCount:   7,
		LimitPerMinute: 5,
	})

	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitExceededBody(t *testing.T) {
	c, recorder := recordedContext()
	reset := time.Now().UTC().Add(12 * time.Second).Truncate(time.Second)

	RateLimitExceeded(c, &models.RateLimitResult{
		Window:         models.WindowMinute,
		CurrentCount:   5,
		LimitPerMinute: 5,
		LimitPerHour:   50,
		LimitPerDay:    500,
		ResetAt:        reset,
	})

	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	var violation models.RateLimitViolation
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &violation))
	assert.Equal(t, "rate limit exceeded", violation.Message)
	assert.Equal(t, models.WindowMinute, violation.Window)
	assert.Equal(t, int64(5), violation.CurrentCount)
	assert.True(t, violation.ResetAt.Equal(reset))
}

func mustParseInt(t *testing.T, raw string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	return n
}
