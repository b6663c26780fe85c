package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// windowStore is the subset of the Redis client used by WindowLimiter.
type windowStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// WindowLimiter is a fixed-window counter shared through Redis, so the limit
// holds across every replica. Each (key, window) pair gets one counter that
// expires with its window.
//
// Redis errors fail open: the request proceeds and a warning is logged.
type WindowLimiter struct {
	store  windowStore
	prefix string
	limit  int64
	window time.Duration
	keyFn  keyFunc
	now    func() time.Time
}

// NewWindowLimiter allows limit requests per window for each key.
func NewWindowLimiter(client windowStore, prefix string, limit int, window time.Duration, keyFn keyFunc) *WindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		store:  client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		keyFn:  keyFn,
		now:    time.Now,
	}
}

// Handler enforces the window. Idempotent replays are not counted.
func (wl *WindowLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := wl.now()
		slot := now.UnixNano() / int64(wl.window)
		key := wl.prefix + ":" + wl.keyFn(c) + ":" + strconv.FormatInt(slot, 10)

		ctx := c.Request.Context()
		n, err := wl.store.Incr(ctx, key).Result()
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("redis rate limiter unavailable; allowing request")
			c.Next()
			return
		}
		if n == 1 {
			if err := wl.store.Expire(ctx, key, wl.window).Err(); err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("redis rate limiter expire failed")
			}
		}
		if n > wl.limit {
			windowEnd := time.Unix(0, (slot+1)*int64(wl.window))
			retry := int(windowEnd.Sub(now).Seconds()) + 1
			rateLimited.WithLabelValues("redis_window").Inc()
			c.Header("Retry-After", strconv.Itoa(retry))
			abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "submission rate limit exceeded")
			return
		}
		c.Next()
	}
}
