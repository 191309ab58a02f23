// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	xerrors "towbook-service/internal/pkg/errors"
	"towbook-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter counts hits per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per caller on a route group. Callers are keyed by
// identity when authenticated, otherwise by client IP. If the limiter reports
// xerrors.ErrUnavailable the request is let through.
func RateLimit(limiter Limiter, scope string, max int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":ip:" + c.ClientIP()
		if id, ok := GetIdentityID(c); ok {
			key = scope + ":id:" + id
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, max, window)
		if errors.Is(err, xerrors.ErrUnavailable) {
			logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if err != nil {
			logger.Error("rate limiter failed", zap.String("scope", scope), zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "rate limit check failed", nil)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "too many requests, please slow down", nil)
			return
		}
		c.Next()
	}
}
