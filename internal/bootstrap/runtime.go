// Package bootstrap wires the process-level dependencies shared by the
// server and the maintenance commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bookswap/internal/cache"
	"bookswap/internal/config"
	"bookswap/internal/database"
	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemoData fills an empty development database with demo members and listings.
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis, ensures the development admin and
// optionally seeds demo data. The returned Redis client is nil when Redis
// is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	r, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
	} else {
		middleware.Logger.Info("Redis connected successfully")
	}

	if err := EnsureDevAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedDemoData && strings.EqualFold(cfg.Env, "development") {
		sum, err := seed.IfEmpty(ctx, db, seed.DefaultOptions)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
		if sum != nil {
			middleware.Logger.Info("seeded empty development database",
				slog.Int("users", sum.Users), slog.Int("books", sum.Books))
		}
	}

	return db, r, nil
}

// EnsureDevAdmin creates or promotes the configured admin account. It only
// acts in development with DEV_BOOTSTRAP_ADMIN enabled.
func EnsureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = "bookswap_admin"
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevAdminEmail))
	if email == "" {
		email = "admin@bookswap.local"
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("email = ?", email).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			admin = models.User{
				Username: username,
				Email:    email,
				Password: string(hashed),
				FullName: "BookSwap Admin",
				Location: "Online",
				About:    models.DefaultAbout,
				Role:     models.RoleAdmin,
			}
			return tx.Create(&admin).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&models.User{}).Where("id = ?", admin.ID).
				Updates(map[string]any{"role": models.RoleAdmin, "password": string(hashed)}).Error
		}
	})
	if err != nil {
		return err
	}

	// Profiles are cached by ID; drop a stale copy that still carries the old role.
	var admin models.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&admin).Error; err == nil {
		invalidateCachedUser(ctx, cfg.RedisURL, admin.ID)
	}

	middleware.Logger.Info("development admin bootstrap ensured", slog.String("email", email))
	return nil
}

func invalidateCachedUser(ctx context.Context, redisURL string, userID uint) {
	if redisURL == "" {
		return
	}
	rdb, err := cache.Connect(ctx, redisURL)
	if err != nil {
		return
	}
	defer func() { _ = rdb.Close() }()
	cache.NewStore(rdb).InvalidateUser(ctx, userID)
}
