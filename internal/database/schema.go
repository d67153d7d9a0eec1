package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookswap/internal/config"
	"bookswap/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes selected by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaStatus describes what ApplySchema would do for the current config.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// plan is what ApplySchema will run for a given config.
type plan struct {
	mode        string
	sql         bool
	autoMigrate bool
}

// planFor resolves DB_SCHEMA_MODE against the environment. Hybrid runs the SQL
// migrations everywhere and AutoMigrate only outside production and staging.
// Auto in production needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE.
func planFor(cfg *config.Config) (plan, error) {
	p := plan{mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))}
	if p.mode == "" {
		p.mode = SchemaModeHybrid
	}

	var prodLike bool
	switch strings.ToLower(strings.TrimSpace(cfg.Env)) {
	case "production", "prod", "staging", "stage":
		prodLike = true
	}

	switch p.mode {
	case SchemaModeSQL:
		p.sql = true
	case SchemaModeHybrid:
		p.sql, p.autoMigrate = true, !prodLike
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan{}, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		p.autoMigrate = true
	default:
		return plan{}, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", p.mode)
	}
	return p, nil
}

// constraintIndexes are partial unique indexes the GORM tags cannot express.
// At most one pending request per requester and book, and at most one
// accepted request per book.
var constraintIndexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS uniq_swap_requests_pending ON swap_requests (requester_id, book_id) WHERE status = 'pending'",
	"CREATE UNIQUE INDEX IF NOT EXISTS uniq_swap_requests_accepted ON swap_requests (book_id) WHERE status = 'accepted'",
}

// AutoMigrate creates or updates every persistent table from the GORM models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return err
	}
	for _, stmt := range constraintIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create constraint index: %w", err)
		}
	}
	return nil
}

// ApplySchema brings the schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	p, err := planFor(cfg)
	if err != nil {
		return err
	}

	if p.sql {
		migrator, err := NewMigrator(db)
		if err != nil {
			return err
		}
		if _, err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !p.autoMigrate {
		return nil
	}

	if p.mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
		middleware.Logger.Warn("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true set for DB_SCHEMA_MODE=auto; review schema diffs before production deployment")
	}
	middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", p.mode), slog.String("env", cfg.Env))
	if err := AutoMigrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the schema mode and any pending SQL migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	p, err := planFor(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:               p.mode,
		Environment:        cfg.Env,
		WillRunSQL:         p.sql,
		WillRunAutoMigrate: p.autoMigrate,
	}
	if !p.sql {
		return status, nil
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	if status.AppliedVersions, err = migrator.Applied(ctx); err != nil {
		return nil, err
	}
	if status.PendingMigrations, err = migrator.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
