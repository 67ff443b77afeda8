package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/config"
)

// RateKey names the counter a request is charged to.  An empty key
// exempts the request.
type RateKey func(c echo.Context) string

// ClientKey charges authenticated requests to the actor and anonymous ones
// to the client IP.
func ClientKey(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return string(a.Role) + ":" + strconv.FormatUint(a.ID, 10)
	}
	return "ip:" + c.RealIP()
}

// ApplyKey charges apply attempts to the learner and the session in the
// :id path parameter.
func ApplyKey(c echo.Context) string {
	a, ok := ActorFrom(c)
	if !ok {
		return ""
	}
	return "apply:" + strconv.FormatUint(a.ID, 10) + ":session:" + c.Param("id")
}

// RateLimiter counts requests per key in fixed windows stored in Redis.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRateLimiter returns a limiter whose middlewares pass every request
// through when limiting is disabled or Redis is unavailable.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	if !cfg.Enabled {
		rdb = nil
	}
	return &RateLimiter{rdb: rdb, prefix: cfg.Prefix, now: time.Now}
}

// Limit admits at most limit requests per key in each window.  Rejected
// requests get 429 with Retry-After set to the end of the window.  Redis
// errors let the request through.
func (l *RateLimiter) Limit(limit int, window time.Duration, key RateKey) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l.rdb == nil {
			return next
		}
		return func(c echo.Context) error {
			k := key(c)
			if k == "" {
				return next(c)
			}
			ctx := c.Request().Context()
			count, resetIn, err := l.hit(ctx, k, window)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("key", k).Msg("rate limit check failed")
				return next(c)
			}

			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if count <= int64(limit) {
				return next(c)
			}

			secs := int(math.Ceil(resetIn.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			zerolog.Ctx(ctx).Debug().Str("key", k).Int64("count", count).Msg("rate limited")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// hit increments the counter of the current window and returns its new
// value and the time left in the window.
func (l *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := l.now()
	start := now.Truncate(window)
	counter := l.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, counter)
		p.Expire(ctx, counter, window)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), start.Add(window).Sub(now), nil
}
