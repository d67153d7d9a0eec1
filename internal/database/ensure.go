package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"bookswap/internal/config"
	"bookswap/internal/middleware"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// EnsureDatabase connects to the maintenance database and creates the
// application database when it does not exist yet.
func EnsureDatabase(ctx context.Context, cfg *config.Config) (created bool, err error) {
	maintenance := cfg.DBMaintenanceName
	if maintenance == "" {
		maintenance = "postgres"
	}
	dsn := buildDSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, maintenance, cfg.DBSSLMode)

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return false, fmt.Errorf("open maintenance database: %w", err)
	}
	defer conn.Close()

	return createIfMissing(ctx, conn, cfg.DBName)
}

func createIfMissing(ctx context.Context, conn *sql.DB, name string) (bool, error) {
	var exists bool
	if err := conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE does not accept bind parameters.
	stmt := "CREATE DATABASE " + pgx.Identifier{name}.Sanitize()
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("create database %q: %w", name, err)
	}

	middleware.Logger.InfoContext(ctx, "database created", slog.String("name", name))
	return true, nil
}
