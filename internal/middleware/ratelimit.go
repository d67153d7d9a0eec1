package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errNoRedis = errors.New("rate limit store unavailable")

// Rule is a fixed-window quota for one named action.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	// FailClosed rejects requests with 503 when Redis cannot be reached.
	FailClosed bool
}

// RateLimiter enforces Rules with Redis counters keyed by member or client IP.
type RateLimiter struct {
	rdb      *redis.Client
	disabled bool
}

// NewRateLimiter returns a limiter for env. Local, test and stress
// environments are never throttled.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch env {
	case "", "test", "development", "stress":
		return &RateLimiter{rdb: rdb, disabled: true}
	}
	return &RateLimiter{rdb: rdb}
}

// Allow counts one hit against rule for subject and returns the hits left in
// the current window. remaining < 0 means the request is over quota.
func (l *RateLimiter) Allow(ctx context.Context, rule Rule, subject string) (remaining int, err error) {
	if l.disabled {
		return rule.Limit, nil
	}
	if l.rdb == nil {
		return 0, errNoRedis
	}

	key := "rl:" + rule.Name + ":" + subject
	hits, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if hits == 1 {
		if err := l.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return 0, err
		}
	}
	return rule.Limit - int(hits), nil
}

// Handler enforces rule on a route.
func (l *RateLimiter) Handler(rule Rule) fiber.Handler {
	retryAfter := strconv.Itoa(int(rule.Window / time.Second))

	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		remaining, err := l.Allow(c.UserContext(), rule, subject)
		if err != nil {
			if !rule.FailClosed {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
				slog.String("rule", rule.Name), slog.String("error", err.Error()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  false,
				"message": "Rate limit unavailable",
			})
		}

		if remaining < 0 {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"status":  false,
				"message": "Too many requests, please try again later.",
			})
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		return c.Next()
	}
}
