package middleware

import (
	"context"
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
	"github.com/reverie-ai/reverie-api/internal/service"
)

type limitCounterStub struct {
	counts    map[string]int64
	countsErr error
	charges   []string
}

func (s *limitCounterStub) Counts(_ context.Context, _, _ string) (map[string]models.WindowCounter, error) {
	if s.countsErr != nil {
		return nil, s.countsErr
	}
	out := make(map[string]models.WindowCounter, len(models.WindowOrder))
	for _, window := range models.WindowOrder {
		out[window] = models.WindowCounter{Count: s.counts[window]}
	}
	return out, nil
}

func (s *limitCounterStub) Increment(_ context.Context, userID, endpoint string) error {
	s.charges = append(s.charges, userID+" "+endpoint)
	return nil
}

func (s *limitCounterStub) ResetUser(_ context.Context, _ string) error { return nil }

type limitConfigStub struct {
	configs []models.RateLimitConfig
}

func (s *limitConfigStub) ListForPlan(_ context.Context, _ string) ([]models.RateLimitConfig, error) {
	return s.configs, nil
}

type planStub struct {
	plan string
}

func (s *planStub) BillingPlan(_ context.Context, _ string) (string, error) {
	return s.plan, nil
}

// newTestLimiter budgets /api/v1/things at 5/50/500 for the pro plan.
func newTestLimiter(counters *limitCounterStub, failOpen bool) *service.RateLimitService {
	configs := &limitConfigStub{configs: []models.RateLimitConfig{{
		Plan:            "pro",
		EndpointPattern: "/api/v1/things",
		LimitPerMinute:  5,
		LimitPerHour:    50,
		LimitPerDay:     500,
	}}}
	return service.NewRateLimitService(counters, configs, &planStub{plan: "pro"}, nil, nil,
		service.RateLimiterConfig{FailOpen: failOpen})
}

func limitedRouter(limiter *service.RateLimitService, metrics *service.MetricsService, opts RateLimitOptions, handled *bool) *gin.Engine {
	router := gin.New()
	router.Use(OptionalJWT(newTestTokenService()))
	router.Use(RateLimit(limiter, metrics, opts))
	probe := func(c *gin.Context) {
		if handled != nil {
			*handled = true
		}
		c.Status(http.StatusOK)
	}
	router.GET("/api/v1/things", probe)
	router.GET("/health", probe)
	return router
}

func limitedRequest(t *testing.T, router *gin.Engine, path, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+mintAccessToken(t, userID, time.Now().UTC().Add(time.Hour)))
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRateLimitAllowsUnderBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{}
	router := limitedRouter(newTestLimiter(counters, true), service.NewMetricsService(), RateLimitOptions{Enabled: true}, nil)

	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "5", recorder.Header().Get("X-RateLimit-Limit-Minute"))
	assert.Equal(t, "50", recorder.Header().Get("X-RateLimit-Limit-Hour"))
	assert.Equal(t, "500", recorder.Header().Get("X-RateLimit-Limit-Day"))
	assert.Equal(t, "4", recorder.Header().Get("X-RateLimit-Remaining"))

	reset, err := strconv.ParseInt(recorder.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), time.Unix(reset, 0), 5*time.Second)

	// Served requests are charged once, after the handler.
	assert.Equal(t, []string{"user-1 /api/v1/things"}, counters.charges)
}

func TestRateLimitBlocksWhenWindowExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{counts: map[string]int64{models.WindowMinute: 5}}
	metrics := service.NewMetricsService()

	handled := false
	router := limitedRouter(newTestLimiter(counters, true), metrics, RateLimitOptions{Enabled: true}, &handled)

	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")

	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.False(t, handled)

	var violation models.RateLimitViolation
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &violation))
	assert.Equal(t, "rate limit exceeded", violation.Message)
	assert.Equal(t, models.WindowMinute, violation.Window)
	assert.Equal(t, int64(5), violation.CurrentCount)
	assert.Equal(t, 5, violation.LimitPerMinute)
	assert.Equal(t, 50, violation.LimitPerHour)
	assert.Equal(t, 500, violation.LimitPerDay)
	assert.False(t, violation.ResetAt.IsZero())

	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, uint64(1), metrics.Snapshot().RateLimitViolations)
	assert.Empty(t, counters.charges, "rejected requests must not be charged")
}

// statefulCounterStub accumulates charges like the Redis counters do, so a
// request sequence exercises the full admit-charge-admit loop.
type statefulCounterStub struct {
	counts map[string]int64
}

func (s *statefulCounterStub) Counts(_ context.Context, _, _ string) (map[string]models.WindowCounter, error) {
	out := make(map[string]models.WindowCounter, len(models.WindowOrder))
	for _, window := range models.WindowOrder {
		out[window] = models.WindowCounter{Count: s.counts[window]}
	}
	return out, nil
}

func (s *statefulCounterStub) Increment(_ context.Context, _, _ string) error {
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	for _, window := range models.WindowOrder {
		s.counts[window]++
	}
	return nil
}

func (s *statefulCounterStub) ResetUser(_ context.Context, _ string) error {
	s.counts = nil
	return nil
}

func TestRateLimitBudgetExhaustsAndRecovers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &statefulCounterStub{}
	configs := &limitConfigStub{configs: []models.RateLimitConfig{{
		Plan:            "pro",
		EndpointPattern: "/api/v1/things",
		LimitPerMinute:  5,
		LimitPerHour:    50,
		LimitPerDay:     500,
	}}}
	limiter := service.NewRateLimitService(counters, configs, &planStub{plan: "pro"}, nil, nil,
		service.RateLimiterConfig{FailOpen: true})
	router := limitedRouter(limiter, service.NewMetricsService(), RateLimitOptions{Enabled: true}, nil)

	// Five requests fit the minute budget; Remaining counts down to zero.
	for i := 0; i < 5; i++ {
		recorder := limitedRequest(t, router, "/api/v1/things", "user-1")
		require.Equal(t, http.StatusOK, recorder.Code, "request %d", i+1)
		assert.Equal(t, strconv.Itoa(4-i), recorder.Header().Get("X-RateLimit-Remaining"))
	}

	// The sixth is rejected on the minute window.
	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	var violation models.RateLimitViolation
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &violation))
	assert.Equal(t, models.WindowMinute, violation.Window)

	// Counter expiry (here: a reset) re-admits traffic.
	require.NoError(t, counters.ResetUser(context.Background(), "user-1"))
	recorder = limitedRequest(t, router, "/api/v1/things", "user-1")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "4", recorder.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitSkipsAnonymousRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{counts: map[string]int64{models.WindowMinute: 999}}
	router := limitedRouter(newTestLimiter(counters, true), service.NewMetricsService(), RateLimitOptions{Enabled: true}, nil)

	// No credentials at all.
	recorder := limitedRequest(t, router, "/api/v1/things", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Header().Get("X-RateLimit-Limit-Minute"))

	// A token that fails validation resolves no identity either.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/things", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	assert.Empty(t, counters.charges)
}

func TestRateLimitBypassPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{counts: map[string]int64{models.WindowMinute: 999}}

	// Trailing slash in the option still matches the cleaned request path.
	opts := RateLimitOptions{Enabled: true, BypassPaths: []string{"/health/"}}
	router := limitedRouter(newTestLimiter(counters, true), service.NewMetricsService(), opts, nil)

	recorder := limitedRequest(t, router, "/health", "user-1")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Header().Get("X-RateLimit-Limit-Minute"))
	assert.Empty(t, counters.charges)
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{countsErr: assert.AnError}
	router := limitedRouter(newTestLimiter(counters, false), service.NewMetricsService(), RateLimitOptions{Enabled: false}, nil)

	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Header().Get("X-RateLimit-Limit-Minute"))
}

func TestRateLimitDegradedCheckSkipsCharge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{countsErr: assert.AnError}
	router := limitedRouter(newTestLimiter(counters, true), service.NewMetricsService(), RateLimitOptions{Enabled: true}, nil)

	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "5", recorder.Header().Get("X-RateLimit-Limit-Minute"))
	assert.Equal(t, "4", recorder.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, counters.charges, "degraded admissions must not write counters")
}

func TestRateLimitFailsClosedWhenConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{countsErr: assert.AnError}

	handled := false
	router := limitedRouter(newTestLimiter(counters, false), service.NewMetricsService(), RateLimitOptions{Enabled: true}, &handled)

	recorder := limitedRequest(t, router, "/api/v1/things", "user-1")

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	envelope := decodeError(t, recorder)
	assert.Equal(t, "INTERNAL_ERROR", envelope.Error.Code)
	assert.Equal(t, "rate limit check failed", envelope.Error.Message)
	assert.False(t, handled)
	assert.Empty(t, counters.charges)
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":               "/",
		"/":              "/",
		"/api/v1/users/": "/api/v1/users",
		"api//v1/users":  "/api/v1/users",
		" /health ":      "/health",
		"/api/v1/workspaces/11111111-2222-3333-4444-555555555555":         "/api/v1/workspaces/*",
		"/api/v1/workspaces/11111111-2222-3333-4444-555555555555/members": "/api/v1/workspaces/*/members",
		"/api/v1/items/42":      "/api/v1/items/*",
		"/api/v1/items/v2/docs": "/api/v1/items/v2/docs",
	}
	for raw, want := range cases {
		if got := normalizeEndpoint(raw); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", raw, got, want)
		}
	}
}

// Distinct resource ids must share one counter, otherwise per-resource keys
// would never accumulate enough traffic to trip the limiter.
func TestRateLimitCollapsesResourceIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counters := &limitCounterStub{}
	limiter := newTestLimiter(counters, true)

	router := gin.New()
	router.Use(OptionalJWT(newTestTokenService()))
	router.Use(RateLimit(limiter, service.NewMetricsService(), RateLimitOptions{Enabled: true}))
	router.GET("/api/v1/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := limitedRequest(t, router, "/api/v1/things/11111111-1111-1111-1111-111111111111", "user-1")
	second := limitedRequest(t, router, "/api/v1/things/22222222-2222-2222-2222-222222222222", "user-1")

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, []string{
		"user-1 /api/v1/things/*",
		"user-1 /api/v1/things/*",
	}, counters.charges)
}
