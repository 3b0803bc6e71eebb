package models

import "time"

// Rate-limit windows, in the order they are evaluated. The minute window is
// checked first so a violation always reports the soonest-to-reset window.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
)

// WindowOrder fixes the evaluation sequence for admission checks.
var WindowOrder = []string{WindowMinute, WindowHour, WindowDay}

// WindowTTLs maps each window to its counter key lifetime.
var WindowTTLs = map[string]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

// WindowCounter is one window's live counter state: the current count plus
// the remaining lifetime of its key. TTL is zero when the key is absent, so
// a fresh window reads as {0, 0}.
type WindowCounter struct {
	Count int64
	TTL   time.Duration
}

// PlanLimits holds the per-window request budgets for one (plan, endpoint
// pattern) combination.
type PlanLimits struct {
	PerMinute int `json:"limit_per_minute"`
	PerHour   int `json:"limit_per_hour"`
	PerDay    int `json:"limit_per_day"`
}

// DefaultPlanLimits is the conservative fallback applied when no
// rate_limit_configs row matches the caller's plan and endpoint.
var DefaultPlanLimits = PlanLimits{PerMinute: 10, PerHour: 100, PerDay: 1000}

// RateLimitConfig is a persisted limit row. EndpointPattern ending in "/*"
// prefix-matches; any other pattern matches exactly.
type RateLimitConfig struct {
	ID              string    `db:"id" json:"id"`
	Plan            string    `db:"plan" json:"plan"`
	EndpointPattern string    `db:"endpoint_pattern" json:"endpoint_pattern"`
	LimitPerMinute  int       `db:"limit_per_minute" json:"limit_per_minute"`
	LimitPerHour    int       `db:"limit_per_hour" json:"limit_per_hour"`
	LimitPerDay     int       `db:"limit_per_day" json:"limit_per_day"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Limits projects the config row into its window budgets.
func (c *RateLimitConfig) Limits() PlanLimits {
	return PlanLimits{PerMinute: c.LimitPerMinute, PerHour: c.LimitPerHour, PerDay: c.LimitPerDay}
}

// RateLimitResult is the outcome of an admission check. When Allowed is
// false, Window names the first violated window and ResetAt the moment its
// counter expires. When the counter store is unreachable the check degrades
// to allowed with Degraded set.
type RateLimitResult struct {
	Allowed        bool      `json:"allowed"`
	CurrentCount   int64     `json:"current_count"`
	LimitPerMinute int       `json:"limit_per_minute"`
	LimitPerHour   int       `json:"limit_per_hour"`
	LimitPerDay    int       `json:"limit_per_day"`
	ResetAt        time.Time `json:"reset_at"`
	Window         string    `json:"window,omitempty"`
	Degraded       bool      `json:"-"`
}

// RateLimitViolation is the 429 response body.
type RateLimitViolation struct {
	Message        string    `json:"message"`
	Window         string    `json:"window"`
	CurrentCount   int64     `json:"current_count"`
	LimitPerMinute int       `json:"limit_per_minute"`
	LimitPerHour   int       `json:"limit_per_hour"`
	LimitPerDay    int       `json:"limit_per_day"`
	ResetAt        time.Time `json:"reset_at"`
}
