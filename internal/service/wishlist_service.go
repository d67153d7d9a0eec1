package service

import (
	"context"

	"bookswap/internal/models"
	"bookswap/internal/repository"
)

type WishlistService struct {
	wishlistRepo repository.WishlistRepository
}

func NewWishlistService(wishlistRepo repository.WishlistRepository) *WishlistService {
	return &WishlistService{wishlistRepo: wishlistRepo}
}

func (s *WishlistService) List(ctx context.Context, userID uint) ([]models.Book, error) {
	return s.wishlistRepo.List(ctx, userID)
}

// Add fails with InvalidOperation when the book is already wishlisted.
func (s *WishlistService) Add(ctx context.Context, userID, bookID uint) error {
	return s.wishlistRepo.Add(ctx, userID, bookID)
}

func (s *WishlistService) Remove(ctx context.Context, userID, bookID uint) error {
	return s.wishlistRepo.Remove(ctx, userID, bookID)
}
