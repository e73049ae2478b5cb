package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set: drop entries outside the window, reject
// when the remainder is at the limit, otherwise record this request.
var slidingWindowScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
if redis.call("ZCARD", KEYS[1]) >= tonumber(ARGV[2]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter is a store-backed sliding-window limiter, shared by all
// process instances pointed at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	seq    uint64
}

// NewRedisLimiter creates a Redis-backed distributed limiter.
func NewRedisLimiter(addr, password, prefix string, limit int, window time.Duration) (*RedisLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "zoti:ratelimit"
	}
	return &RedisLimiter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		limit:  limit,
		window: window,
	}, nil
}

// Allow reports whether key is within quota. On Redis failures it fails
// closed and returns false.
func (l *RedisLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := time.Now().UTC().UnixMilli()
	windowStart := now - l.window.Milliseconds()
	seq := atomic.AddUint64(&l.seq, 1)
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(seq, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		windowStart, l.limit, now, member, l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false
	}
	return res == 1
}
