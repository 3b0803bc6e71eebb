package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type adminUserStoreStub struct {
	users []models.User
	total int
	err   error
}

func (s *adminUserStoreStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.users, s.total, nil
}

type adminCountStoreStub struct {
	users int64
	err   error
	calls int
}

func (s *adminCountStoreStub) CountUsers(ctx context.Context) (int64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.users, nil
}

type adminSessionStoreStub struct {
	sessions int64
	active   int64
	err      error
}

func (s *adminSessionStoreStub) CountActiveSessions(ctx context.Context, now time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.sessions, nil
}

func (s *adminSessionStoreStub) CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.active, nil
}

type adminSpaceStoreStub struct {
	spaces int64
	err    error
}

func (s *adminSpaceStoreStub) CountSpaces(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.spaces, nil
}

type adminKeyStoreStub struct {
	keys int64
	err  error
}

func (s *adminKeyStoreStub) CountActive(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.keys, nil
}

type auditReaderStub struct {
	logs  []models.AuditLog
	total int
	err   error
}

func (s *auditReaderStub) ListRecent(ctx context.Context, page, pageSize int) ([]models.AuditLog, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.logs, s.total, nil
}

type memCacheRepo struct {
	store map[string][]byte
}

func (s *memCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *memCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *memCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	return nil
}

func newAdminServiceForTest(counts *adminCountStoreStub, cache *CacheService) *AdminService {
	return NewAdminService(
		&adminUserStoreStub{},
		counts,
		&adminSessionStoreStub{sessions: 12, active: 40},
		&adminSpaceStoreStub{spaces: 25},
		&adminKeyStoreStub{keys: 7},
		&auditReaderStub{},
		cache,
		zap.NewNop(),
		AdminServiceConfig{},
	)
}

func TestAdminPlatformStatsAggregates(t *testing.T) {
	counts := &adminCountStoreStub{users: 150}
	svc := newAdminServiceForTest(counts, nil)

	stats, cacheHit, err := svc.PlatformStats(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, int64(150), stats.TotalUsers)
	assert.Equal(t, int64(25), stats.TotalSpaces)
	assert.Equal(t, int64(7), stats.TotalAPIKeys)
	assert.Equal(t, int64(12), stats.ActiveSessions)
	assert.Equal(t, int64(40), stats.ActiveUsersThisMonth)
}

func TestAdminPlatformStatsCached(t *testing.T) {
	counts := &adminCountStoreStub{users: 150}
	cache := NewCacheService(&memCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := newAdminServiceForTest(counts, cache)

	first, hit, err := svc.PlatformStats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := svc.PlatformStats(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.TotalUsers, second.TotalUsers)
	assert.Equal(t, 1, counts.calls, "the second read must be served from cache")
}

func TestAdminPlatformStatsCountFailure(t *testing.T) {
	counts := &adminCountStoreStub{err: assert.AnError}
	svc := newAdminServiceForTest(counts, nil)

	_, _, err := svc.PlatformStats(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAdminListUsersPagination(t *testing.T) {
	users := &adminUserStoreStub{users: []models.User{{ID: "u1"}, {ID: "u2"}}, total: 42}
	svc := NewAdminService(users, &adminCountStoreStub{}, &adminSessionStoreStub{}, &adminSpaceStoreStub{}, &adminKeyStoreStub{}, &auditReaderStub{}, nil, zap.NewNop(), AdminServiceConfig{})

	list, pagination, err := svc.ListUsers(context.Background(), models.UserFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 42, pagination.TotalCount)

	// Out-of-range paging inputs are normalised.
	_, pagination, err = svc.ListUsers(context.Background(), models.UserFilter{Page: -1, PageSize: 9999})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestAdminAuditLogs(t *testing.T) {
	audits := &auditReaderStub{logs: []models.AuditLog{{Action: models.AuditActionLogin}}, total: 1}
	svc := NewAdminService(&adminUserStoreStub{}, &adminCountStoreStub{}, &adminSessionStoreStub{}, &adminSpaceStoreStub{}, &adminKeyStoreStub{}, audits, nil, zap.NewNop(), AdminServiceConfig{})

	logs, pagination, err := svc.AuditLogs(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	audits.err = assert.AnError
	_, _, err = svc.AuditLogs(context.Background(), 1, 20)
	require.Error(t, err)
}
