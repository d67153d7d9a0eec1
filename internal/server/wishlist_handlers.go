package server

import (
	"bookswap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetWishlist handles GET /api/wishlist
// @Summary My wishlist
// @Tags wishlist
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=[]models.Book}
// @Router /wishlist [get]
func (s *Server) GetWishlist(c *fiber.Ctx) error {
	books, err := s.wishlistService.List(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, books, "")
}

// AddToWishlist handles POST /api/wishlist/:bookId
// @Summary Add a book to my wishlist
// @Tags wishlist
// @Produce json
// @Security BearerAuth
// @Param bookId path int true "Book ID"
// @Success 200 {object} models.Response
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Router /wishlist/{bookId} [post]
func (s *Server) AddToWishlist(c *fiber.Ctx) error {
	bookID, err := s.parseID(c, "bookId")
	if err != nil {
		return nil
	}
	if err := s.wishlistService.Add(c.UserContext(), currentUserID(c), bookID); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, nil, "Book added to wishlist")
}

// RemoveFromWishlist handles DELETE /api/wishlist/:bookId
// @Summary Remove a book from my wishlist
// @Tags wishlist
// @Produce json
// @Security BearerAuth
// @Param bookId path int true "Book ID"
// @Success 200 {object} models.Response
// @Router /wishlist/{bookId} [delete]
func (s *Server) RemoveFromWishlist(c *fiber.Ctx) error {
	bookID, err := s.parseID(c, "bookId")
	if err != nil {
		return nil
	}
	if err := s.wishlistService.Remove(c.UserContext(), currentUserID(c), bookID); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, nil, "Book removed from wishlist")
}
