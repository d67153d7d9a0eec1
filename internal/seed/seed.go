package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookswap/internal/featureflags"
	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/repository"
	"bookswap/internal/service"

	"gorm.io/gorm"
)

// Options configures the seeder.
type Options struct {
	NumUsers     int
	BooksPerUser int
	NumRequests  int
	ShouldClean  bool
	SkipBcrypt   bool
	// RandSeed makes runs reproducible; zero picks one from the clock.
	RandSeed int64
}

// DefaultOptions is what cmd/seed runs with when no flags are given.
var DefaultOptions = Options{NumUsers: 12, BooksPerUser: 3, NumRequests: 20, ShouldClean: true}

// Summary counts what a run created.
type Summary struct {
	Users         int
	Books         int
	SwapRequests  int
	Accepted      int
	Ratings       int
	WishlistItems int
}

// tables lists schema tables children first.
var tables = []string{"messages", "ratings", "wishlist_items", "swap_requests", "books", "users"}

// Seeder writes demo data through the service layer so seeded rows obey
// the same rules as API traffic.
type Seeder struct {
	db       *gorm.DB
	opts     Options
	books    *service.BookService
	swaps    *service.SwapService
	ratings  *service.RatingService
	wishlist *service.WishlistService
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	bookRepo := repository.NewBookRepository(db, nil)
	swapRepo := repository.NewSwapRepository(db, nil)
	return &Seeder{
		db:       db,
		opts:     opts,
		books:    service.NewBookService(bookRepo, nil),
		swaps:    service.NewSwapService(swapRepo, repository.NewMessageRepository(db), service.NewPaymentSimulator(0), nil),
		ratings:  service.NewRatingService(repository.NewUserRepository(db, nil), swapRepo, featureflags.NewManager(""), nil),
		wishlist: service.NewWishlistService(repository.NewWishlistRepository(db)),
	}
}

// ClearAll removes every row from the application tables.
func (s *Seeder) ClearAll() error {
	if s.db.Dialector.Name() == "postgres" {
		return s.db.Exec(`TRUNCATE TABLE messages, ratings, wishlist_items, swap_requests, books, users RESTART IDENTITY CASCADE`).Error
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Run populates the database and reports what it created.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	opts := s.opts
	if opts.RandSeed == 0 {
		opts.RandSeed = time.Now().UnixNano()
	}
	log := middleware.Logger.With(slog.String("component", "seed"))
	log.Info("starting database seeding",
		slog.Int("users", opts.NumUsers),
		slog.Int("books_per_user", opts.BooksPerUser),
		slog.Int("requests", opts.NumRequests))

	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	f, err := NewFactory(s.db, opts.RandSeed, opts.SkipBcrypt)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	sum.Users = len(users)
	if len(users) < 2 {
		return sum, nil
	}

	var books []*models.Book
	next := 0
	for _, u := range users {
		for j := 0; j < opts.BooksPerUser; j++ {
			book, err := s.books.Create(ctx, u.ID, f.BookInput(catalog[next%len(catalog)]))
			if err != nil {
				return nil, fmt.Errorf("create book: %w", err)
			}
			books = append(books, book)
			next++
		}
	}
	sum.Books = len(books)
	if len(books) == 0 {
		return sum, nil
	}

	if err := s.seedRequests(ctx, f, users, books, sum); err != nil {
		return nil, err
	}

	for _, u := range users {
		book := books[f.Intn(len(books))]
		if book.OwnerID == u.ID {
			continue
		}
		if err := s.wishlist.Add(ctx, u.ID, book.ID); err != nil {
			return nil, fmt.Errorf("add wishlist item: %w", err)
		}
		sum.WishlistItems++
	}

	log.Info("database seeding completed",
		slog.Int("users", sum.Users),
		slog.Int("books", sum.Books),
		slog.Int("swap_requests", sum.SwapRequests),
		slog.Int("accepted", sum.Accepted),
		slog.Int("ratings", sum.Ratings),
		slog.Int("wishlist_items", sum.WishlistItems))
	return sum, nil
}

// seedRequests opens requests on random listings, accepts about a third of
// them and has both parties of an accepted swap rate each other.
func (s *Seeder) seedRequests(ctx context.Context, f *Factory, users []*models.User, books []*models.Book, sum *Summary) error {
	for i := 0; i < s.opts.NumRequests; i++ {
		book := books[f.Intn(len(books))]
		requester := users[f.Intn(len(users))]
		if requester.ID == book.OwnerID {
			continue
		}

		in := service.CreateSwapInput{RequesterID: requester.ID, BookID: book.ID, Type: string(models.RequestSwap)}
		if book.ListingType == models.ListingSell {
			in.Type = string(models.RequestBuy)
			in.ShippingAddress = f.Address()
		}
		req, err := s.swaps.CreateRequest(ctx, in)
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) && appErr.Code == models.CodeInvalidOperation {
				// already swapped or already pending; pick another pair
				continue
			}
			return fmt.Errorf("create swap request: %w", err)
		}
		sum.SwapRequests++

		if f.Intn(3) != 0 {
			continue
		}
		if _, err := s.swaps.UpdateStatus(ctx, req.ID, book.OwnerID, string(models.ActionAccept)); err != nil {
			return fmt.Errorf("accept swap request: %w", err)
		}
		sum.Accepted++

		for _, pair := range [][2]uint{{requester.ID, book.OwnerID}, {book.OwnerID, requester.ID}} {
			score := 3 + f.Intn(3)
			if _, err := s.ratings.AddRating(ctx, service.AddRatingInput{
				ReviewerID:   pair[0],
				TargetUserID: pair[1],
				Score:        score,
				Review:       f.Review(score),
			}); err != nil {
				return fmt.Errorf("add rating: %w", err)
			}
			sum.Ratings++
		}
	}
	return nil
}

// IfEmpty runs the seeder only when no members exist yet.
func IfEmpty(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}
	opts.ShouldClean = false
	return NewSeeder(db, opts).Run(ctx)
}
