package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for everything the service persists.
const (
	KeyUserSession = "user:session:"
	KeyChatHistory = "chat:history:"
	KeyChatMessage = "chat:message:"
	KeyDocument    = "pdf:document:"
	KeyPage        = "pdf:page:"
)

// Key joins a prefix with an identifier.
func Key(prefix, id string) string {
	return prefix + id
}

// ErrNotFound indicates the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 300 * time.Millisecond
)

// Store is a thin adapter over a TTL-capable Redis backend. Every operation
// runs under a bounded retry with exponential backoff; when attempts are
// exhausted the last error propagates to the caller.
type Store struct {
	client      *redis.Client
	maxAttempts int
	retryDelay  time.Duration
}

// New connects to Redis at addr.
func New(addr, password string) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := s.retry(ctx, "get", func() error {
		res, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		val = res
		return nil
	})
	return val, err
}

// Set writes value at key with the given TTL. A zero TTL means no expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.retry(ctx, "set", func() error {
		return s.client.Set(ctx, key, value, ttl).Err()
	})
}

// Delete removes the given keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.retry(ctx, "delete", func() error {
		if err := s.client.Del(ctx, keys...).Err(); err != nil && err != redis.Nil {
			return err
		}
		return nil
	})
}

// Keys lists all keys starting with prefix via SCAN.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.retry(ctx, "keys", func() error {
		keys = keys[:0]
		iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// PushFront prepends value to the list at key.
func (s *Store) PushFront(ctx context.Context, key, value string) error {
	return s.retry(ctx, "lpush", func() error {
		return s.client.LPush(ctx, key, value).Err()
	})
}

// ListRange returns list elements in [start, stop]; stop -1 means the tail.
func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals []string
	err := s.retry(ctx, "lrange", func() error {
		res, err := s.client.LRange(ctx, key, start, stop).Result()
		if err != nil {
			return err
		}
		vals = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// Expire refreshes the TTL on key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.retry(ctx, "expire", func() error {
		return s.client.Expire(ctx, key, ttl).Err()
	})
}

// retry runs fn up to maxAttempts times with exponential backoff. ErrNotFound
// is a definitive answer, not a transient failure, so it short-circuits.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	delay := s.retryDelay
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := fn()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
		lastErr = err
		if attempt < s.maxAttempts {
			slog.Warn("kv operation failed, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", s.maxAttempts,
				"err", err,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return lastErr
}
