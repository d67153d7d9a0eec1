package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"bookswap/internal/middleware"
	"bookswap/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Store is a nil-safe JSON cache over Redis. A Store with a nil client
// misses on every read and ignores writes.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps rdb, which may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// GetJSON reads key into dest. It reports false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, nil
	}
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under key with ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Invalidate removes the given keys.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if s == nil || s.rdb == nil || len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// InvalidateUser drops the cached profile of each user.
func (s *Store) InvalidateUser(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, UserKey(id))
	}
	s.Invalidate(ctx, keys...)
}

// InvalidateBook drops the cached detail of each book.
func (s *Store) InvalidateBook(ctx context.Context, bookIDs ...uint) {
	keys := make([]string, 0, len(bookIDs))
	for _, id := range bookIDs {
		keys = append(keys, BookKey(id))
	}
	s.Invalidate(ctx, keys...)
}

// Aside returns the cached value for key or loads, caches and returns it.
// Cache errors are logged and fall through to the loader; loader errors are returned as is.
func Aside[T any](ctx context.Context, s *Store, entity, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	found, err := s.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		observability.CacheLookups.WithLabelValues(entity, "error").Inc()
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case found:
		observability.CacheLookups.WithLabelValues(entity, "hit").Inc()
		return cached, nil
	default:
		observability.CacheLookups.WithLabelValues(entity, "miss").Inc()
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := s.SetJSON(ctx, key, value, ttl); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return value, nil
}
