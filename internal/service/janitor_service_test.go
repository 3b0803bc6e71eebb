package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type janitorTokenStoreStub struct {
	tokenCalls     int
	blacklistCalls int
	tokenBefore    time.Time
	tokenErr       error
	blacklistErr   error
}

func (s *janitorTokenStoreStub) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	s.tokenCalls++
	s.tokenBefore = before
	if s.tokenErr != nil {
		return 0, s.tokenErr
	}
	return 3, nil
}

func (s *janitorTokenStoreStub) DeleteExpiredBlacklist(ctx context.Context, now time.Time) (int64, error) {
	s.blacklistCalls++
	if s.blacklistErr != nil {
		return 0, s.blacklistErr
	}
	return 2, nil
}

type janitorUsageStoreStub struct {
	calls  int
	before time.Time
	err    error
}

func (s *janitorUsageStoreStub) DeleteUsageBefore(ctx context.Context, before time.Time) (int64, error) {
	s.calls++
	s.before = before
	if s.err != nil {
		return 0, s.err
	}
	return 5, nil
}

func TestJanitorRunOnceSweepsAllStores(t *testing.T) {
	tokens := &janitorTokenStoreStub{}
	usage := &janitorUsageStoreStub{}
	svc := NewJanitorService(tokens, usage, zap.NewNop(), JanitorConfig{Interval: time.Hour, Grace: 24 * time.Hour})

	svc.RunOnce(context.Background())

	assert.Equal(t, 1, tokens.tokenCalls)
	assert.Equal(t, 1, tokens.blacklistCalls)
	assert.Equal(t, 1, usage.calls)

	// The grace period keeps recently expired sessions around.
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), tokens.tokenBefore, 2*time.Second)
	// Usage windows survive for a week.
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, -7), usage.before, 2*time.Second)
}

func TestJanitorSweepsAreIndependent(t *testing.T) {
	tokens := &janitorTokenStoreStub{tokenErr: assert.AnError}
	usage := &janitorUsageStoreStub{}
	svc := NewJanitorService(tokens, usage, zap.NewNop(), JanitorConfig{})

	svc.RunOnce(context.Background())

	// A token sweep failure must not stop the remaining sweeps.
	assert.Equal(t, 1, tokens.blacklistCalls)
	assert.Equal(t, 1, usage.calls)
}

func TestJanitorToleratesMissingUsageStore(t *testing.T) {
	tokens := &janitorTokenStoreStub{}
	svc := NewJanitorService(tokens, nil, zap.NewNop(), JanitorConfig{})

	assert.NotPanics(t, func() { svc.RunOnce(context.Background()) })
	assert.Equal(t, 1, tokens.tokenCalls)
}
