// Package database opens the PostgreSQL connections and manages the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = 5 * time.Minute

	slowQueryThreshold = 200 * time.Millisecond
)

var (
	// DB is the primary connection opened by Connect.
	DB *gorm.DB
	// ReadDB is the read replica, nil unless DB_READ_HOST is set and reachable.
	ReadDB *gorm.DB
)

// gormLogger sends GORM's output through slog. Only failures and slow
// queries are logged unless the level is raised to Info.
type gormLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns a GORM logger at Warn level writing through l.
func NewGormLogger(l *slog.Logger) logger.Interface {
	return &gormLogger{log: l, level: logger.Warn, slow: slowQueryThreshold}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) printf(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, data []any) {
	if g.level >= at {
		g.log.Log(ctx, lvl, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, logger.Info, slog.LevelInfo, msg, data)
}

func (g *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, logger.Warn, slog.LevelWarn, msg, data)
}

func (g *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.printf(ctx, logger.Error, slog.LevelError, msg, data)
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := g.slow > 0 && elapsed > g.slow

	var (
		lvl slog.Level
		msg string
	)
	switch {
	case failed && g.level >= logger.Error:
		lvl, msg = slog.LevelError, "query failed"
	case slow && g.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case g.level >= logger.Info:
		lvl, msg = slog.LevelInfo, "query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if failed {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	g.log.LogAttrs(ctx, lvl, msg, attrs...)
}

// ConnectOptions tune Connect for commands that manage the schema themselves.
type ConnectOptions struct {
	ApplySchema bool
}

// PrimaryDSN builds the key/value DSN for the primary database.
func PrimaryDSN(cfg *config.Config) string {
	return buildDSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func buildDSN(host, port, user, password, name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode)
}

// Connect opens the primary, applies the schema and attaches the replica.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	return ConnectWithOptions(cfg, ConnectOptions{ApplySchema: true})
}

// ConnectWithOptions is Connect with the schema step optional.
func ConnectWithOptions(cfg *config.Config, opts ConnectOptions) (*gorm.DB, error) {
	primary, err := open(PrimaryDSN(cfg), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect primary: %w", err)
	}
	middleware.Logger.Info("Database connected", slog.String("host", cfg.DBHost), slog.String("db", cfg.DBName))

	if opts.ApplySchema {
		if err := ApplySchema(context.Background(), primary, cfg); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	DB = primary

	if cfg.DBReadHost == "" {
		return primary, nil
	}
	dsn := buildDSN(cfg.DBReadHost, cfg.DBReadPort, cfg.DBReadUser, cfg.DBReadPassword, cfg.DBName, cfg.DBSSLMode)
	replica, err := open(dsn, cfg)
	if err != nil {
		middleware.Logger.Warn("read replica unavailable, reads use the primary",
			slog.String("host", cfg.DBReadHost), slog.String("error", err.Error()))
		return primary, nil
	}
	ReadDB = replica
	middleware.Logger.Info("Read replica connected", slog.String("host", cfg.DBReadHost))
	return primary, nil
}

func open(dsn string, cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(middleware.Logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// ReadReplica returns the replica connection, or nil when reads should use the primary.
func ReadReplica() *gorm.DB {
	return ReadDB
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(positiveOr(cfg.DBMaxOpenConns, defaultMaxOpenConns))
	sqlDB.SetMaxIdleConns(positiveOr(cfg.DBMaxIdleConns, defaultMaxIdleConns))
	lifetime := defaultConnLifetime
	if cfg.DBConnMaxLifetimeMinutes > 0 {
		lifetime = time.Duration(cfg.DBConnMaxLifetimeMinutes) * time.Minute
	}
	sqlDB.SetConnMaxLifetime(lifetime)
	return nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
