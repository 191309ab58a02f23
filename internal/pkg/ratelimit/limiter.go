// internal/pkg/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	xerrors "towbook-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter in redis.
type Limiter struct {
	client redis.Cmdable
	prefix string
}

func NewLimiter(client redis.Cmdable, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{client: client, prefix: prefix}
}

// Allow counts one request for key and reports whether it is within max for
// the current window, plus how many requests remain. Redis failures are
// reported as xerrors.ErrUnavailable.
func (l *Limiter) Allow(ctx context.Context, key string, max int64, window time.Duration) (bool, int64, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		// Only the first request in a window sets the expiry.
		pipe.ExpireNX(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("%w: failed to increment rate limit: %v", xerrors.ErrUnavailable, err)
	}

	count := incr.Val()
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= max, remaining, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
