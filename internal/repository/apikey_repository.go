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

// APIKeyRepository provides database access for API keys and their
// fixed-window usage counters.
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new instance of APIKeyRepository.
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, user_id, label, key_hash, key_prefix, scopes, rate_limit_requests, rate_limit_window_seconds, created_at, last_used_at, revoked_at`

// Create inserts a new key record. Only the hash is ever stored.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO api_keys (` + apiKeyColumns + `)
VALUES (:id, :user_id, :label, :key_hash, :key_prefix, :scopes, :rate_limit_requests, :rate_limit_window_seconds, :created_at, :last_used_at, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// FindByHash returns the key record matching the hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	const query = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 LIMIT 1`
	var key models.APIKey
	if err := r.db.GetContext(ctx, &key, query, keyHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find api key: %w", err)
	}
	return &key, nil
}

// ListForUser returns the caller's keys, newest first.
func (r *APIKeyRepository) ListForUser(ctx context.Context, userID string) ([]models.APIKey, error) {
	const query = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`
	var keys []models.APIKey
	if err := r.db.SelectContext(ctx, &keys, query, userID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// Revoke soft-deletes a key scoped to its owner, reporting matched rows.
func (r *APIKeyRepository) Revoke(ctx context.Context, id, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE api_keys SET revoked_at = $3 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke api key: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count revoked api keys: %w", err)
	}
	return count, nil
}

// TouchLastUsed records key activity. Best-effort: callers ignore failures.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// UsageCount reads the request count for the key's current window.
func (r *APIKeyRepository) UsageCount(ctx context.Context, apiKeyID string, windowStart time.Time) (int64, error) {
	const query = `SELECT COALESCE(request_count, 0) FROM api_key_usage WHERE api_key_id = $1 AND window_start = $2`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, apiKeyID, windowStart); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("read api key usage: %w", err)
	}
	return count, nil
}

// IncrementUsage bumps the key's counter for the window, creating the row on
// first use. The upsert keeps the increment atomic under concurrency.
func (r *APIKeyRepository) IncrementUsage(ctx context.Context, apiKeyID string, windowStart time.Time) error {
	const query = `INSERT INTO api_key_usage (api_key_id, window_start, request_count)
VALUES ($1, $2, 1)
ON CONFLICT (api_key_id, window_start) DO UPDATE SET request_count = api_key_usage.request_count + 1`
	if _, err := r.db.ExecContext(ctx, query, apiKeyID, windowStart); err != nil {
		return fmt.Errorf("increment api key usage: %w", err)
	}
	return nil
}

// DeleteUsageBefore purges usage rows whose window ended before the cutoff.
func (r *APIKeyRepository) DeleteUsageBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM api_key_usage WHERE window_start < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete api key usage: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted usage rows: %w", err)
	}
	return count, nil
}

// CountActive returns the number of unrevoked keys platform-wide.
func (r *APIKeyRepository) CountActive(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL`
	var count int64
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}
