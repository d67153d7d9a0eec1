// Command migrate manages the BookSwap database schema.
//
//	migrate create        create the configured database if missing
//	migrate up            apply pending SQL migrations
//	migrate auto          run GORM AutoMigrate plus constraint indexes
//	migrate status        print schema mode and pending migrations
//	migrate down <ver>    revert one migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bookswap/internal/config"
	"bookswap/internal/database"
	"bookswap/internal/middleware"
)

var errUsage = errors.New("usage: migrate <create|up|auto|status|down> [version]")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		middleware.Logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, os.Getenv("LOG_LEVEL"))
	log := middleware.Logger.With(slog.String("db", cfg.DBName))

	if args[0] == "create" {
		created, err := database.EnsureDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		log.Info("database ready", slog.Bool("created", created))
		return nil
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return err
	}
	migrator, err := database.NewMigrator(db)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		n, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", slog.Int("count", n))

	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return err
		}
		log.Info("automigrate complete")

	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return err
		}
		log.Info("schema status",
			slog.String("mode", status.Mode),
			slog.String("env", status.Environment),
			slog.Bool("run_sql", status.WillRunSQL),
			slog.Bool("run_auto", status.WillRunAutoMigrate),
			slog.Any("applied", status.AppliedVersions))
		for _, m := range status.PendingMigrations {
			log.Info("pending", slog.String("migration", m.ID()))
		}

	case "down":
		if len(args) < 2 {
			return errUsage
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("version %q: %w", args[1], err)
		}
		return migrator.Down(ctx, version)

	default:
		return errUsage
	}
	return nil
}
