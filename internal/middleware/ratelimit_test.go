package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var swapRule = Rule{Name: "create_swap", Limit: 2, Window: time.Minute}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled outside production", func(t *testing.T) {
		for _, env := range []string{"", "test", "development", "stress"} {
			remaining, err := NewRateLimiter(nil, env).Allow(ctx, swapRule, "user:1")
			require.NoError(t, err, env)
			assert.Equal(t, swapRule.Limit, remaining, env)
		}
	})

	t.Run("nil redis errors in production", func(t *testing.T) {
		_, err := NewRateLimiter(nil, "production").Allow(ctx, swapRule, "user:1")
		assert.ErrorIs(t, err, errNoRedis)
	})

	t.Run("counts within window", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		l := NewRateLimiter(rdb, "production")

		for want := 1; want >= 0; want-- {
			remaining, err := l.Allow(ctx, swapRule, "user:1")
			require.NoError(t, err)
			assert.Equal(t, want, remaining)
		}
		remaining, err := l.Allow(ctx, swapRule, "user:1")
		require.NoError(t, err)
		assert.Negative(t, remaining)
		assert.Greater(t, mr.TTL("rl:create_swap:user:1"), time.Duration(0))

		other, err := l.Allow(ctx, swapRule, "user:2")
		require.NoError(t, err)
		assert.Equal(t, 1, other, "quota is per subject")

		mr.FastForward(time.Minute + time.Second)
		remaining, err = l.Allow(ctx, swapRule, "user:1")
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
	})
}

func TestRateLimiter_Handler(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	get := func(t *testing.T, app *fiber.App) *http.Response {
		t.Helper()
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/swaps", nil))
		require.NoError(t, err)
		return resp
	}

	t.Run("fails open without redis", func(t *testing.T) {
		app := fiber.New()
		app.Post("/swaps", NewRateLimiter(nil, "production").Handler(swapRule), ok)
		assert.Equal(t, http.StatusOK, get(t, app).StatusCode)
	})

	t.Run("fails closed when asked", func(t *testing.T) {
		rule := swapRule
		rule.FailClosed = true
		app := fiber.New()
		app.Post("/swaps", NewRateLimiter(nil, "production").Handler(rule), ok)
		assert.Equal(t, http.StatusServiceUnavailable, get(t, app).StatusCode)
	})

	t.Run("429 once the quota is spent", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		app := fiber.New()
		app.Post("/swaps", NewRateLimiter(rdb, "production").Handler(swapRule), ok)

		first := get(t, app)
		assert.Equal(t, http.StatusOK, first.StatusCode)
		assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))

		assert.Equal(t, http.StatusOK, get(t, app).StatusCode)

		over := get(t, app)
		assert.Equal(t, http.StatusTooManyRequests, over.StatusCode)
		assert.Equal(t, "60", over.Header.Get(fiber.HeaderRetryAfter))
	})
}
