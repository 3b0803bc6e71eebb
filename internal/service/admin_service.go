package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type adminUserStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type adminCountStore interface {
	CountUsers(ctx context.Context) (int64, error)
}

type adminSessionStore interface {
	CountActiveSessions(ctx context.Context, now time.Time) (int64, error)
	CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error)
}

type adminSpaceStore interface {
	CountSpaces(ctx context.Context) (int64, error)
}

type adminKeyStore interface {
	CountActive(ctx context.Context) (int64, error)
}

type auditReader interface {
	ListRecent(ctx context.Context, page, pageSize int) ([]models.AuditLog, int, error)
}

// AdminServiceConfig tunes admin surface behaviour.
type AdminServiceConfig struct {
	StatsCacheTTL time.Duration
}

// AdminService serves the platform-admin surface: cross-tenant stats, user
// listings and the audit trail.
type AdminService struct {
	users    adminUserStore
	counts   adminCountStore
	sessions adminSessionStore
	spaces   adminSpaceStore
	keys     adminKeyStore
	audits   auditReader
	cache    *CacheService
	logger   *zap.Logger
	cfg      AdminServiceConfig
}

// NewAdminService constructs an AdminService instance.
func NewAdminService(users adminUserStore, counts adminCountStore, sessions adminSessionStore, spaces adminSpaceStore, keys adminKeyStore, audits auditReader, cache *CacheService, logger *zap.Logger, cfg AdminServiceConfig) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = time.Minute
	}
	return &AdminService{
		users:    users,
		counts:   counts,
		sessions: sessions,
		spaces:   spaces,
		keys:     keys,
		audits:   audits,
		cache:    cache,
		logger:   logger,
		cfg:      cfg,
	}
}

const statsCacheKey = "admin:stats"

// PlatformStats aggregates platform-wide totals and indicates cache
// utilisation.
func (s *AdminService) PlatformStats(ctx context.Context) (*models.PlatformStats, bool, error) {
	if s.cache != nil {
		var cached models.PlatformStats
		if hit, err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	now := time.Now().UTC()

	totalUsers, err := s.counts.CountUsers(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	totalSpaces, err := s.spaces.CountSpaces(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count workspaces")
	}
	totalKeys, err := s.keys.CountActive(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count api keys")
	}
	activeSessions, err := s.sessions.CountActiveSessions(ctx, now)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	activeUsers, err := s.sessions.CountActiveUsersSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active users")
	}

	stats := &models.PlatformStats{
		TotalUsers:           totalUsers,
		TotalSpaces:          totalSpaces,
		TotalAPIKeys:         totalKeys,
		ActiveSessions:       activeSessions,
		ActiveUsersThisMonth: activeUsers,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, false, nil
}

// ListUsers returns a filtered, paginated user listing.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// AuditLogs returns the newest audit entries.
func (s *AdminService) AuditLogs(ctx context.Context, page, pageSize int) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.audits.ListRecent(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}
