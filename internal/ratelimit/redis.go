package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps fixed-window counters in Redis so the limit holds
// across gateway instances. Each window lives under one key whose TTL is
// the window length; INCR plus first-write EXPIRE gives the same
// reset-at-boundary semantics as the in-memory limiter.
type RedisLimiter struct {
	rdb *redis.Client
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int64) (*Result, error) {
	redisKey := fmt.Sprintf("ratelimit:key:%s", key)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment window: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, Window).Err(); err != nil {
			return nil, fmt.Errorf("failed to set window expiry: %w", err)
		}
	}

	ttl, err := l.rdb.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = Window
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: time.Now().Add(ttl),
	}, nil
}
