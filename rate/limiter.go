package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every backend failure returned by the limiter.
var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")

// Limiter enforces per-key attempt budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. prefix
// namespaces every counter key.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(key string) string {
	return l.prefix + ":" + key
}

// Attempt records a hit against key and reports whether it is within the
// budget of max hits per decay window. The first hit opens the window.
func (l *Limiter) Attempt(ctx context.Context, key string, max int, decay time.Duration) (bool, error) {
	count, err := l.incrementWithTTL(ctx, l.key(key), decay)
	if err != nil {
		return false, err
	}
	return count <= int64(max), nil
}

// Remaining returns how many hits key has left out of max. Missing keys
// report the full budget and do not reveal whether the key was ever seen.
func (l *Limiter) Remaining(ctx context.Context, key string, max int) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return max, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	left := int64(max) - count
	if left < 0 {
		left = 0
	}
	return int(left), nil
}

// AvailableIn returns how long until the window containing key expires.
// Missing keys return zero.
func (l *Limiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.redis.TTL(ctx, l.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear deletes the counters for the given keys. Called after a fully
// successful authentication so a legitimate user starts fresh.
func (l *Limiter) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = l.key(k)
	}

	if err := l.redis.Del(ctx, namespaced...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
