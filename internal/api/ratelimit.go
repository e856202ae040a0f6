package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// counterStore is the subset of the Redis client the limiter uses.
type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter counts requests per authenticated user in fixed windows.
type RateLimiter struct {
	store  counterStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter returns nil when client is nil; a nil limiter lets everything through.
func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{store: client, logger: logger, now: time.Now}
}

// Limit allows at most limit requests per user per window for the route
// group named by keySuffix. Must run AFTER AuthMiddleware.
func (rl *RateLimiter) Limit(keySuffix string, limit int, window time.Duration) gin.HandlerFunc {
	if window < time.Second {
		window = time.Second
	}
	return func(c *gin.Context) {
		if rl == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if uid, ok := c.Get(ContextUserIDKey); ok {
			subject = fmt.Sprint(uid)
		}
		bucket := rl.now().Unix() / int64(window/time.Second)
		key := fmt.Sprintf("rate_limit:%s:%s:%d", keySuffix, subject, bucket)

		count, err := rl.store.Incr(c.Request.Context(), key).Result()
		if err != nil {
			// Fail open: telemetry must not stop because Redis is down.
			rl.logger.Debug("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			// Without a TTL the key outlives its window; the count still applies.
			if err := rl.store.Expire(c.Request.Context(), key, window).Err(); err != nil {
				rl.logger.Debug("Rate limiter could not set window expiry", zap.String("key", key), zap.Error(err))
			}
		}

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			abortWithError(c, http.StatusTooManyRequests, "Too many progress updates, slow down")
			return
		}
		c.Next()
	}
}
