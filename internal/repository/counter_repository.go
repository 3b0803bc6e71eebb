package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reverie-ai/reverie-api/internal/models"
)

// CounterRepository maintains the per-user, per-endpoint admission counters
// in Redis. Keys follow ratelimit:{window}:{user_id}:{endpoint} and carry a
// TTL equal to their window length, refreshed on every increment. All
// mutation goes through atomic INCR; callers never read-modify-write.
type CounterRepository struct {
	client *redis.Client
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(client *redis.Client) *CounterRepository {
	return &CounterRepository{client: client}
}

func counterKey(window, userID, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", window, userID, endpoint)
}

// Counts reads the three window counters and their remaining TTLs in one
// pipelined batch, without incrementing. Missing keys read as {0, 0}.
func (r *CounterRepository) Counts(ctx context.Context, userID, endpoint string) (map[string]models.WindowCounter, error) {
	pipe := r.client.Pipeline()
	gets := make([]*redis.StringCmd, 0, len(models.WindowOrder))
	ttls := make([]*redis.DurationCmd, 0, len(models.WindowOrder))
	for _, window := range models.WindowOrder {
		key := counterKey(window, userID, endpoint)
		gets = append(gets, pipe.Get(ctx, key))
		ttls = append(ttls, pipe.TTL(ctx, key))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read rate limit counters: %w", err)
	}

	counters := make(map[string]models.WindowCounter, len(models.WindowOrder))
	for i, window := range models.WindowOrder {
		var state models.WindowCounter
		n, err := gets[i].Int64()
		switch {
		case errors.Is(err, redis.Nil):
			// absent key, fresh window
		case err != nil:
			return nil, fmt.Errorf("parse counter %s: %w", counterKey(window, userID, endpoint), err)
		default:
			state.Count = n
		}
		// TTL reports negative durations for absent or persistent keys;
		// either way the remaining lifetime is unknown.
		if ttl, err := ttls[i].Result(); err == nil && ttl > 0 {
			state.TTL = ttl
		}
		counters[window] = state
	}
	return counters, nil
}

// Increment bumps all three counters and refreshes their TTLs in one
// pipelined batch.
func (r *CounterRepository) Increment(ctx context.Context, userID, endpoint string) error {
	pipe := r.client.Pipeline()
	for _, window := range models.WindowOrder {
		key := counterKey(window, userID, endpoint)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, models.WindowTTLs[window])
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment rate limit counters: %w", err)
	}
	return nil
}

// ResetUser deletes every counter belonging to the user.
func (r *CounterRepository) ResetUser(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("ratelimit:*:%s:*", userID)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete counter %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan counters for %s: %w", userID, err)
	}
	return nil
}

// Ping verifies counter-store connectivity for readiness checks.
func (r *CounterRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping counter store: %w", err)
	}
	return nil
}
