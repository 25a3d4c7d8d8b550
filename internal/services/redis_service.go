package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides Redis-backed rate limiting and alert throttling
type RedisService struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisService creates a new Redis service over an existing client
func NewRedisService(client redis.Cmdable) *RedisService {
	return &RedisService{client: client, now: time.Now}
}

// AllowRequest counts a request against the project's fixed one-minute window
// and reports whether it is within limit.
func (r *RedisService) AllowRequest(ctx context.Context, projectID string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	window := r.now().Unix() / 60
	key := fmt.Sprintf("rate_limit:verify:%s:%d", projectID, window)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

// AcquireAlertSlot returns true once per ttl for the given key
func (r *RedisService) AcquireAlertSlot(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "alert:"+key, r.now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert slot: %w", err)
	}
	return ok, nil
}
