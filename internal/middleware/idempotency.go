package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader is the optional request header that enables replay protection.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyRecord is a stored successful response.
type IdempotencyRecord struct {
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        string    `json:"body"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. A reused key with a different request is rejected with 409.
// Requests without the header pass through untouched, as does everything
// when Redis is unavailable.
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotency creates the middleware with the default five minute replay window.
func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: 5 * time.Minute}
}

// WithTTL overrides the replay window.
func (i *Idempotency) WithTTL(ttl time.Duration) *Idempotency {
	i.ttl = ttl
	return i
}

// Handle returns the Fiber handler. It must run after authentication so
// keys are scoped per user.
func (i *Idempotency) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(IdempotencyHeader))
		if key == "" || i.rdb == nil {
			return c.Next()
		}
		if _, err := uuid.Parse(key); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  false,
				"code":    "VALIDATION_ERROR",
				"message": "Idempotency-Key must be a valid UUID",
			})
		}

		ctx := c.UserContext()
		redisKey := i.redisKey(c, key)
		fingerprint := fingerprint(c)

		record, err := i.load(ctx, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			Logger.ErrorContext(ctx, "failed to load idempotency record", slog.String("error", err.Error()))
			return c.Next()
		}
		if record != nil {
			if record.Fingerprint != fingerprint {
				IdempotentReplays.WithLabelValues("conflict").Inc()
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"status":  false,
					"code":    "CONFLICT",
					"message": "Request differs from the original request with the same Idempotency-Key",
				})
			}
			IdempotentReplays.WithLabelValues("replayed").Inc()
			c.Set("X-Idempotency-Cached", "true")
			if record.ContentType != "" {
				c.Set(fiber.HeaderContentType, record.ContentType)
			}
			return c.Status(record.StatusCode).SendString(record.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		record = &IdempotencyRecord{
			StatusCode:  status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
			Fingerprint: fingerprint,
			CreatedAt:   time.Now(),
		}
		if err := i.store(ctx, redisKey, record); err != nil {
			Logger.ErrorContext(ctx, "failed to store idempotency record",
				slog.String("idempotency_key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}

func (i *Idempotency) redisKey(c *fiber.Ctx, key string) string {
	owner := "anon"
	if uid := c.Locals("userID"); uid != nil {
		owner = fmt.Sprintf("%v", uid)
	}
	return fmt.Sprintf("idempotency:%s:%s", owner, key)
}

func fingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte(":"))
	h.Write([]byte(c.Path()))
	h.Write([]byte(":"))
	h.Write(c.Request().URI().QueryString())
	h.Write([]byte(":"))
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func (i *Idempotency) load(ctx context.Context, key string) (*IdempotencyRecord, error) {
	data, err := i.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var record IdempotencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	return &record, nil
}

func (i *Idempotency) store(ctx context.Context, key string, record *IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	return i.rdb.Set(ctx, key, data, i.ttl).Err()
}
