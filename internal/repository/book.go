package repository

import (
	"context"
	"log/slog"
	"strings"

	"bookswap/internal/cache"
	"bookswap/internal/models"
	"bookswap/internal/observability"

	"gorm.io/gorm"
)

// Catalog paging bounds.
const (
	DefaultBookLimit = 10
	MaxBookLimit     = 100
)

// Filter values that mean "no filter" in the catalog UI.
const (
	AllGenres    = "All Genres"
	AllLocations = "All Locations"
)

// sortColumns whitelists the fields clients may sort the catalog by.
var sortColumns = map[string]string{
	"title":         "books.title",
	"author":        "books.author",
	"genre":         "books.genre",
	"condition":     "books.condition",
	"price":         "books.price",
	"publishedYear": "books.published_year",
	"pages":         "books.pages",
	"createdAt":     "books.created_at",
	"updatedAt":     "books.updated_at",
}

// BookRepository defines persistence operations for listings.
type BookRepository interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int64, error)
	GetByID(ctx context.Context, id uint) (*models.Book, error)
	Create(ctx context.Context, book *models.Book) error
	Update(ctx context.Context, book *models.Book) error
	SetImageURL(ctx context.Context, id uint, url string) error
	Delete(ctx context.Context, id uint) ([]models.SwapRequest, error)
	CountByOwner(ctx context.Context, ownerID uint) (int64, error)
}

type bookRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewBookRepository returns a new BookRepository implementation. store may be nil.
func NewBookRepository(db *gorm.DB, store *cache.Store) BookRepository {
	return &bookRepository{db: db, cache: store, log: observability.NewRepoLogger("books")}
}

// NormalizePaging clamps page and limit to the catalog bounds.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultBookLimit
	}
	if limit > MaxBookLimit {
		limit = MaxBookLimit
	}
	return page, limit
}

// OrderClause turns a comma separated sort spec such as "-createdAt,title"
// into an ORDER BY clause. Unknown fields are ignored.
func OrderClause(spec string) string {
	var parts []string
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		if col, ok := sortColumns[field]; ok {
			parts = append(parts, col+" "+dir)
		}
	}
	if len(parts) == 0 {
		return "books.created_at DESC, books.id DESC"
	}
	return strings.Join(parts, ", ") + ", books.id DESC"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (r *bookRepository) filtered(ctx context.Context, f models.BookFilter) *gorm.DB {
	q := readDB(r.db).WithContext(ctx).Model(&models.Book{})

	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Where(`(LOWER(books.title) LIKE ? ESCAPE '\' OR LOWER(books.author) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if f.Genre != "" && f.Genre != AllGenres {
		q = q.Where("books.genre = ?", f.Genre)
	}
	if f.Condition != "" {
		q = q.Where("books.condition = ?", f.Condition)
	}
	if f.ListingType != "" {
		q = q.Where("books.listing_type = ?", f.ListingType)
	}
	if f.OwnerID != 0 {
		q = q.Where("books.owner_id = ?", f.OwnerID)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" && loc != AllLocations {
		pattern := "%" + escapeLike(strings.ToLower(loc)) + "%"
		q = q.Where(`books.owner_id IN (SELECT id FROM users WHERE LOWER(location) LIKE ? ESCAPE '\' AND deleted_at IS NULL)`, pattern)
	}
	return q
}

func (r *bookRepository) List(ctx context.Context, f models.BookFilter) ([]models.Book, int64, error) {
	defer observability.TrackQuery("list", "books")()
	page, limit := NormalizePaging(f.Page, f.Limit)

	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var books []models.Book
	if err := r.filtered(ctx, f).
		Preload("Owner").
		Order(OrderClause(f.Sort)).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&books).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return books, total, nil
}

func (r *bookRepository) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	return cache.Aside(ctx, r.cache, "book", cache.BookKey(id), cache.BookTTL, func(ctx context.Context) (*models.Book, error) {
		defer observability.TrackQuery("select", "books")()
		var book models.Book
		if err := readDB(r.db).WithContext(ctx).Preload("Owner").First(&book, id).Error; err != nil {
			return nil, notFoundOr(err, "Book not found")
		}
		return &book, nil
	})
}

func (r *bookRepository) Create(ctx context.Context, book *models.Book) error {
	book.IsSwapped = false
	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.log.Write(ctx, "create", slog.Any("book_id", book.ID), slog.Any("owner_id", book.OwnerID))
	return nil
}

// Update writes the owner-editable columns. is_swapped is never touched here.
func (r *bookRepository) Update(ctx context.Context, book *models.Book) error {
	err := r.db.WithContext(ctx).
		Model(book).
		Select("title", "author", "genre", "condition", "description", "image_url",
			"published_year", "pages", "language", "listing_type", "price").
		Updates(book).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	r.cache.InvalidateBook(ctx, book.ID)
	r.log.Write(ctx, "update", slog.Any("book_id", book.ID))
	return nil
}

func (r *bookRepository) SetImageURL(ctx context.Context, id uint, url string) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Update("image_url", url)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Book not found")
	}
	r.cache.InvalidateBook(ctx, id)
	return nil
}

// Delete soft-deletes the listing and rejects its pending requests in the
// same transaction. The rejected requests are returned so callers can notify
// the requesters.
func (r *bookRepository) Delete(ctx context.Context, id uint) ([]models.SwapRequest, error) {
	defer observability.TrackQuery("delete", "books")()

	var rejected []models.SwapRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Book{}, id)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Book not found")
		}

		if err := tx.Where("book_id = ? AND status = ?", id, models.StatusPending).
			Find(&rejected).Error; err != nil {
			return models.NewInternalError(err)
		}
		if len(rejected) == 0 {
			return nil
		}
		if err := tx.Model(&models.SwapRequest{}).
			Where("book_id = ? AND status = ?", id, models.StatusPending).
			Update("status", models.StatusRejected).Error; err != nil {
			return models.NewInternalError(err)
		}
		for i := range rejected {
			rejected[i].Status = models.StatusRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.cache.InvalidateBook(ctx, id)
	r.log.Write(ctx, "delete", slog.Any("book_id", id), slog.Any("rejected_requests", len(rejected)))
	return rejected, nil
}

func (r *bookRepository) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Book{}).Where("owner_id = ?", ownerID).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
