package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a coarse fixed-window counter used to bound sensitive
// per-identity operations (password reset attempts). Keying and algorithm
// match the request rate limiter: INCR a per-window bucket and compare
// against the allowed count.
type RedisCounter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisCounter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisCounter {
	if prefix == "" {
		prefix = "ctr:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisCounter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow records one attempt under key and reports whether the caller is still
// inside the window's budget.
func (c *RedisCounter) Allow(ctx context.Context, key string) (bool, error) {
	windowSeconds := int64(c.window.Seconds())
	bucket := time.Now().Unix() / windowSeconds
	redisKey := fmt.Sprintf("%s%s:%d", c.prefix, key, bucket)

	cnt, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: %w", err)
	}
	if cnt == 1 {
		_ = c.client.Expire(ctx, redisKey, time.Duration(windowSeconds+1)*time.Second).Err()
	}
	return int(cnt) <= c.limit, nil
}
