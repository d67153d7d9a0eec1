// Command seed fills the database with demo members, listings, requests and ratings.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"bookswap/internal/config"
	"bookswap/internal/database"
	"bookswap/internal/middleware"
	"bookswap/internal/observability"
	"bookswap/internal/seed"
)

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of members to create")
	flag.IntVar(&opts.BooksPerUser, "books", opts.BooksPerUser, "Listings per member")
	flag.IntVar(&opts.NumRequests, "requests", opts.NumRequests, "Swap and buy requests to attempt")
	flag.BoolVar(&opts.ShouldClean, "clean", opts.ShouldClean, "Clean database before seeding")
	flag.BoolVar(&opts.SkipBcrypt, "fast", false, "Hash the demo password with minimum bcrypt cost")
	flag.Int64Var(&opts.RandSeed, "seed", 0, "Random seed for reproducible data (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("load config", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, os.Getenv("LOG_LEVEL"))
	// Per-row repository audit lines drown the summary.
	observability.SetLogger(slog.New(slog.DiscardHandler))

	db, err := database.Connect(cfg)
	if err != nil {
		fatal("connect database", err)
	}

	sum, err := seed.NewSeeder(db, opts).Run(context.Background())
	if err != nil {
		fatal("seed", err)
	}

	middleware.Logger.Info("seed complete",
		slog.Int("members", sum.Users),
		slog.Int("books", sum.Books),
		slog.Int("requests", sum.SwapRequests),
		slog.Int("accepted", sum.Accepted),
		slog.Int("ratings", sum.Ratings),
		slog.Int("wishlist_items", sum.WishlistItems),
		slog.String("password", seed.DemoPassword))
}

func fatal(step string, err error) {
	middleware.Logger.Error(step+" failed", slog.String("error", err.Error()))
	os.Exit(1)
}
