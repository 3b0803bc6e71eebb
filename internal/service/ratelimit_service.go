package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type counterStore interface {
	Counts(ctx context.Context, userID, endpoint string) (map[string]models.WindowCounter, error)
	Increment(ctx context.Context, userID, endpoint string) error
	ResetUser(ctx context.Context, userID string) error
}

type limitConfigStore interface {
	ListForPlan(ctx context.Context, plan string) ([]models.RateLimitConfig, error)
}

type planResolver interface {
	BillingPlan(ctx context.Context, userID string) (string, error)
}

type limitCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RateLimiterConfig tunes admission behavior.
type RateLimiterConfig struct {
	// FailOpen admits traffic when the counter store is unreachable.
	// Disable to surface store outages as request failures instead.
	FailOpen     bool
	PlanCacheTTL time.Duration
}

// RateLimitService enforces per-user, per-endpoint request budgets across
// minute, hour and day windows. Counters live in Redis; budgets come from
// the caller's billing plan.
type RateLimitService struct {
	counters counterStore
	configs  limitConfigStore
	plans    planResolver
	cache    limitCache
	logger   *zap.Logger
	config   RateLimiterConfig
}

// NewRateLimitService constructs a RateLimitService instance. cache may be
// nil, in which case every check hits the config table.
func NewRateLimitService(counters counterStore, configs limitConfigStore, plans planResolver, cache limitCache, logger *zap.Logger, config RateLimiterConfig) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PlanCacheTTL <= 0 {
		config.PlanCacheTTL = 5 * time.Minute
	}
	return &RateLimitService{
		counters: counters,
		configs:  configs,
		plans:    plans,
		cache:    cache,
		logger:   logger,
		config:   config,
	}
}

// Check reads the three window counters and compares them against the
// caller's plan budgets without incrementing anything. Windows are evaluated
// minute first, so a violation always names the soonest-to-reset window.
func (s *RateLimitService) Check(ctx context.Context, userID, endpoint string) (*models.RateLimitResult, error) {
	limits := s.limitsFor(ctx, userID, endpoint)
	now := time.Now().UTC()

	counts, err := s.counters.Counts(ctx, userID, endpoint)
	if err != nil {
		if s.config.FailOpen {
			s.logger.Warn("counter store unavailable, admitting request",
				zap.String("user_id", userID), zap.String("endpoint", endpoint), zap.Error(err))
			return &models.RateLimitResult{
				Allowed:        true,
				Degraded:       true,
				LimitPerMinute: limits.PerMinute,
				LimitPerHour:   limits.PerHour,
				LimitPerDay:    limits.PerDay,
				ResetAt:        now.Add(models.WindowTTLs[models.WindowMinute]),
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rate limit check failed")
	}

	budgets := map[string]int{
		models.WindowMinute: limits.PerMinute,
		models.WindowHour:   limits.PerHour,
		models.WindowDay:    limits.PerDay,
	}
	for _, window := range models.WindowOrder {
		if counts[window].Count >= int64(budgets[window]) {
			// The violated key's remaining TTL is the true recovery moment;
			// increments refresh TTLs, so it is usually well under the full
			// window. Absent TTL falls back to the full window length.
			retryIn := counts[window].TTL
			if retryIn <= 0 {
				retryIn = models.WindowTTLs[window]
			}
			return &models.RateLimitResult{
				Allowed:        false,
				Window:         window,
				CurrentCount:   counts[window].Count,
				LimitPerMinute: limits.PerMinute,
				LimitPerHour:   limits.PerHour,
				LimitPerDay:    limits.PerDay,
				ResetAt:        now.Add(retryIn),
			}, nil
		}
	}

	return &models.RateLimitResult{
		Allowed:        true,
		CurrentCount:   counts[models.WindowMinute].Count,
		LimitPerMinute: limits.PerMinute,
		LimitPerHour:   limits.PerHour,
		LimitPerDay:    limits.PerDay,
		ResetAt:        now.Add(models.WindowTTLs[models.WindowMinute]),
	}, nil
}

// Increment charges the request against all three windows. Called after the
// admission decision; the check-then-increment pair is deliberately not
// atomic, which can admit a short burst over the limit under concurrency.
func (s *RateLimitService) Increment(ctx context.Context, userID, endpoint string) error {
	if err := s.counters.Increment(ctx, userID, endpoint); err != nil {
		if s.config.FailOpen {
			s.logger.Warn("failed to increment rate limit counters",
				zap.String("user_id", userID), zap.String("endpoint", endpoint), zap.Error(err))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rate limit increment failed")
	}
	return nil
}

// ResetUser clears every counter for the user. Admin-only escape hatch.
func (s *RateLimitService) ResetUser(ctx context.Context, userID string) error {
	if err := s.counters.ResetUser(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset rate limits")
	}
	s.logger.Info("rate limit counters reset", zap.String("user_id", userID))
	return nil
}

// limitsFor resolves the caller's budgets: billing plan, then the most
// specific matching config row, then the embedded defaults. Resolution
// failures degrade to the free plan rather than blocking traffic.
func (s *RateLimitService) limitsFor(ctx context.Context, userID, endpoint string) models.PlanLimits {
	plan, err := s.plans.BillingPlan(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to resolve billing plan, assuming free",
			zap.String("user_id", userID), zap.Error(err))
		plan = string(models.PlanFree)
	}

	configs, err := s.planConfigs(ctx, plan)
	if err != nil {
		s.logger.Warn("failed to load rate limit configs, using defaults",
			zap.String("plan", plan), zap.Error(err))
		return models.DefaultPlanLimits
	}
	return matchLimits(configs, endpoint)
}

func (s *RateLimitService) planConfigs(ctx context.Context, plan string) ([]models.RateLimitConfig, error) {
	cacheKey := fmt.Sprintf("ratelimit:plan:%s", plan)

	if s.cache != nil {
		var cached []models.RateLimitConfig
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	configs, err := s.configs.ListForPlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, configs, s.config.PlanCacheTTL); err != nil {
			s.logger.Warn("failed to cache rate limit configs", zap.String("plan", plan), zap.Error(err))
		}
	}
	return configs, nil
}

// matchLimits picks the config row for an endpoint. An exact pattern match
// always wins; otherwise the longest "/*" prefix pattern applies; otherwise
// the defaults.
func matchLimits(configs []models.RateLimitConfig, endpoint string) models.PlanLimits {
	var best *models.RateLimitConfig
	bestPrefix := -1

	for i := range configs {
		pattern := configs[i].EndpointPattern
		if pattern == endpoint {
			return configs[i].Limits()
		}
		if strings.HasSuffix(pattern, "/*") {
			prefix := strings.TrimSuffix(pattern, "/*")
			if strings.HasPrefix(endpoint, prefix) && len(prefix) > bestPrefix {
				best = &configs[i]
				bestPrefix = len(prefix)
			}
		}
	}

	if best != nil {
		return best.Limits()
	}
	return models.DefaultPlanLimits
}
