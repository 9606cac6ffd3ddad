package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces limiter counters in Redis.
const RedisKeyPrefix = "docapi:ratelimit:"

// fixedWindowScript applies the same transitions as MemoryLimiter atomically.
// Returns {allowed, retry_after_ms}.
var fixedWindowScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, tonumber(ARGV[2])}
end
local count = tonumber(redis.call('GET', KEYS[1]))
if count >= tonumber(ARGV[1]) then
  return {0, ttl}
end
redis.call('INCR', KEYS[1])
return {1, ttl}
`)

// RedisLimiter shares the counter table between service instances.
// Expired windows are removed by Redis key expiry.
type RedisLimiter struct {
	redis *redis.Client
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(redisClient *redis.Client) *RedisLimiter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisLimiter{redis: redisClient}
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) (Decision, error) {
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	res, err := fixedWindowScript.Run(ctx, l.redis,
		[]string{RedisKeyPrefix + key},
		strconv.Itoa(maxRequests), strconv.FormatInt(windowMs, 10),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis fixed window: unexpected reply %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}
