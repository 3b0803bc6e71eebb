package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reverie-ai/reverie-api/internal/models"
)

// TokenRepository persists refresh-token sessions and the revocation
// blacklist. The two tables are written and read independently: the
// blacklist stays authoritative even when a refresh_tokens row is missing
// or inconsistent.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateRefreshToken persists a hashed refresh-token session row.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, device_info, ip_address, user_agent, created_at, last_used_at, revoked_at)
VALUES (:id, :user_id, :token_hash, :expires_at, :device_info, :ip_address, :user_agent, :created_at, :last_used_at, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindActiveByHash returns the non-revoked session row for a token hash.
// Wall-clock expiry is deliberately not filtered here so the caller can
// distinguish an expired token from an unknown or revoked one.
func (r *TokenRepository) FindActiveByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_at, device_info, ip_address, user_agent, created_at, last_used_at, revoked_at
FROM refresh_tokens WHERE token_hash = $1 AND revoked_at IS NULL LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a session row revoked and records its final use.
func (r *TokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, last_used_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeByHash marks any matching session row revoked. Zero affected rows is
// not an error: the blacklist entry alone suffices to bar the token.
func (r *TokenRepository) RevokeByHash(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, tokenHash, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token by hash: %w", err)
	}
	return nil
}

// RevokeAllForUser bulk-revokes every active session for a user and returns
// the number of sessions touched.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count revoked tokens: %w", err)
	}
	return count, nil
}

// ListActiveSessions returns active session summaries, newest first.
func (r *TokenRepository) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	const query = `SELECT id, created_at, device_info, ip_address, last_used_at
FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 ORDER BY created_at DESC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Blacklist inserts a permanent revocation entry for a token hash.
func (r *TokenRepository) Blacklist(ctx context.Context, entry *models.TokenBlacklistEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_blacklist (token_hash, user_id, expires_at, reason, created_at)
VALUES (:token_hash, :user_id, :expires_at, :reason, :created_at)
ON CONFLICT (token_hash) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether a non-expired blacklist entry bars the hash.
func (r *TokenRepository) IsBlacklisted(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_hash = $1 AND expires_at > $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tokenHash, now); err != nil {
		return false, fmt.Errorf("check token blacklist: %w", err)
	}
	return exists, nil
}

// CountActiveSessions returns the number of live sessions platform-wide.
func (r *TokenRepository) CountActiveSessions(ctx context.Context, now time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM refresh_tokens WHERE revoked_at IS NULL AND expires_at > $1`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// CountActiveUsersSince counts distinct users with sessions created after
// the cutoff.
func (r *TokenRepository) CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error) {
	const query = `SELECT COUNT(DISTINCT user_id) FROM refresh_tokens WHERE created_at >= $1`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return count, nil
}

// DeleteExpiredTokens removes session rows whose expiry passed before the
// cutoff. Used by the janitor; active rows are never touched.
func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted tokens: %w", err)
	}
	return count, nil
}

// DeleteExpiredBlacklist removes blacklist entries past their expiry. Once a
// token's own lifetime has lapsed the entry no longer serves a purpose.
func (r *TokenRepository) DeleteExpiredBlacklist(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM token_blacklist WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted blacklist entries: %w", err)
	}
	return count, nil
}
