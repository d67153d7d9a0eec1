package repository

import (
	"context"

	"bookswap/internal/models"

	"gorm.io/gorm"
)

// WishlistRepository stores the books a user wants.
type WishlistRepository interface {
	List(ctx context.Context, userID uint) ([]models.Book, error)
	Add(ctx context.Context, userID, bookID uint) error
	Remove(ctx context.Context, userID, bookID uint) error
}

type wishlistRepository struct {
	db *gorm.DB
}

// NewWishlistRepository creates a new wishlist repository
func NewWishlistRepository(db *gorm.DB) WishlistRepository {
	return &wishlistRepository{db: db}
}

// List returns wishlisted books that still exist, most recently added first.
func (r *wishlistRepository) List(ctx context.Context, userID uint) ([]models.Book, error) {
	var books []models.Book
	if err := readDB(r.db).WithContext(ctx).
		Joins("JOIN wishlist_items wi ON wi.book_id = books.id").
		Where("wi.user_id = ?", userID).
		Preload("Owner").
		Order("wi.created_at DESC").
		Find(&books).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return books, nil
}

func (r *wishlistRepository) Add(ctx context.Context, userID, bookID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.Select("id").First(&book, bookID).Error; err != nil {
			return notFoundOr(err, "Book not found")
		}
		if err := tx.Create(&models.WishlistItem{UserID: userID, BookID: bookID}).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewInvalidOperationError("Book already in wishlist")
			}
			return models.NewInternalError(err)
		}
		return nil
	})
}

// Remove is idempotent.
func (r *wishlistRepository) Remove(ctx context.Context, userID, bookID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Delete(&models.WishlistItem{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
