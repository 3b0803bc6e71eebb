package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/reverie-ai/reverie-api/internal/models"
)

// RateLimitConfigRepository reads persisted plan/endpoint limit rows.
// Pattern matching against request endpoints happens in the service layer;
// this repository only scopes rows by plan.
type RateLimitConfigRepository struct {
	db *sqlx.DB
}

// NewRateLimitConfigRepository creates a new instance.
func NewRateLimitConfigRepository(db *sqlx.DB) *RateLimitConfigRepository {
	return &RateLimitConfigRepository{db: db}
}

// ListForPlan returns every limit row configured for the plan.
func (r *RateLimitConfigRepository) ListForPlan(ctx context.Context, plan string) ([]models.RateLimitConfig, error) {
	const query = `SELECT id, plan, endpoint_pattern, limit_per_minute, limit_per_hour, limit_per_day, created_at
FROM rate_limit_configs WHERE plan = $1`
	var configs []models.RateLimitConfig
	if err := r.db.SelectContext(ctx, &configs, query, plan); err != nil {
		return nil, fmt.Errorf("list rate limit configs: %w", err)
	}
	return configs, nil
}
