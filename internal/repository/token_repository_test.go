package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverie-ai/reverie-api/internal/models"
)

func TestTokenCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		UserID:    "user-1",
		TokenHash: "hash-1",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		IPAddress: "10.0.0.1",
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindActiveByHash(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "device_info", "ip_address", "user_agent", "created_at", "last_used_at", "revoked_at"}).
		AddRow("rt-1", "user-1", "hash-1", now.Add(time.Hour), []byte(`{}`), "10.0.0.1", "curl", now, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token_hash, expires_at, device_info, ip_address, user_agent, created_at, last_used_at, revoked_at FROM refresh_tokens WHERE token_hash = $1 AND revoked_at IS NULL LIMIT 1")).
		WithArgs("hash-1").
		WillReturnRows(rows)

	rt, err := repo.FindActiveByHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", rt.UserID)
	assert.Nil(t, rt.RevokedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindActiveByHashMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT .* FROM refresh_tokens WHERE token_hash").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByHash(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenRevoke(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, last_used_at = $2 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("rt-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revoke(context.Background(), "rt-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenListActiveSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at", "device_info", "ip_address", "last_used_at"}).
		AddRow("rt-1", now, []byte(`{"os":"linux"}`), "10.0.0.1", nil).
		AddRow("rt-2", now.Add(-time.Hour), []byte(`{}`), "10.0.0.2", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, created_at, device_info, ip_address, last_used_at FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 ORDER BY created_at DESC")).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	sessions, err := repo.ListActiveSessions(context.Background(), "user-1", now)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "linux", sessions[0].DeviceInfo["os"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBlacklist(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO token_blacklist").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.TokenBlacklistEntry{
		TokenHash: "hash-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Reason:    models.RevokeReasonLogout,
	}
	require.NoError(t, repo.Blacklist(context.Background(), entry))
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenIsBlacklisted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_hash = $1 AND expires_at > $2)")).
		WithArgs("hash-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	barred, err := repo.IsBlacklisted(context.Background(), "hash-1", time.Now())
	require.NoError(t, err)
	assert.True(t, barred)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenCountActiveSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM refresh_tokens WHERE revoked_at IS NULL AND expires_at > $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountActiveSessions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}

func TestTokenDeleteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_blacklist WHERE expires_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	tokens, err := repo.DeleteExpiredTokens(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), tokens)

	entries, err := repo.DeleteExpiredBlacklist(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), entries)
	require.NoError(t, mock.ExpectationsWereMet())
}
