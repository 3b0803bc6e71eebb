package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type janitorTokenStore interface {
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredBlacklist(ctx context.Context, now time.Time) (int64, error)
}

type janitorUsageStore interface {
	DeleteUsageBefore(ctx context.Context, before time.Time) (int64, error)
}

// JanitorConfig tunes background cleanup.
type JanitorConfig struct {
	Interval time.Duration
	// Grace delays deletion past expiry so recently expired sessions stay
	// inspectable for support.
	Grace time.Duration
}

// JanitorService periodically removes expired refresh tokens, spent
// blacklist entries and stale api-key usage windows. Cleanup is advisory:
// correctness never depends on it because every read path also checks
// expiry.
type JanitorService struct {
	tokens janitorTokenStore
	usage  janitorUsageStore
	logger *zap.Logger
	cfg    JanitorConfig
}

// NewJanitorService constructs a JanitorService instance.
func NewJanitorService(tokens janitorTokenStore, usage janitorUsageStore, logger *zap.Logger, cfg JanitorConfig) *JanitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &JanitorService{tokens: tokens, usage: usage, logger: logger, cfg: cfg}
}

// Start boots the cleanup loop. It runs once immediately, then on every
// tick until the context is cancelled.
func (s *JanitorService) Start(ctx context.Context) {
	go func() {
		s.RunOnce(ctx)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single cleanup sweep. Each store is swept
// independently; one failure does not stop the others.
func (s *JanitorService) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	tokens, err := s.tokens.DeleteExpiredTokens(ctx, now.Add(-s.cfg.Grace))
	if err != nil {
		s.logger.Warn("failed to delete expired refresh tokens", zap.Error(err))
	}

	blacklist, err := s.tokens.DeleteExpiredBlacklist(ctx, now)
	if err != nil {
		s.logger.Warn("failed to delete expired blacklist entries", zap.Error(err))
	}

	var usage int64
	if s.usage != nil {
		usage, err = s.usage.DeleteUsageBefore(ctx, now.AddDate(0, 0, -7))
		if err != nil {
			s.logger.Warn("failed to delete stale api key usage", zap.Error(err))
		}
	}

	if tokens > 0 || blacklist > 0 || usage > 0 {
		s.logger.Info("janitor sweep finished",
			zap.Int64("expired_tokens", tokens),
			zap.Int64("blacklist_entries", blacklist),
			zap.Int64("usage_windows", usage))
	}
}
