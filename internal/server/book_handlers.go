package server

import (
	"io"
	"math"

	"bookswap/internal/models"
	"bookswap/internal/repository"
	"bookswap/internal/service"
	"bookswap/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type bookRequest struct {
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Genre         string   `json:"genre"`
	Condition     string   `json:"condition"`
	Description   string   `json:"description"`
	PublishedYear *int     `json:"publishedYear"`
	Pages         *int     `json:"pages"`
	Language      string   `json:"language"`
	ListingType   string   `json:"listingType"`
	Price         *float64 `json:"price"`
}

func (r bookRequest) input() validation.BookInput {
	return validation.BookInput{
		Title:         r.Title,
		Author:        r.Author,
		Genre:         r.Genre,
		Condition:     r.Condition,
		Description:   r.Description,
		PublishedYear: r.PublishedYear,
		Pages:         r.Pages,
		Language:      r.Language,
		ListingType:   r.ListingType,
		Price:         r.Price,
	}
}

// ListBooks handles GET /api/books
// @Summary Browse the catalog
// @Tags books
// @Produce json
// @Param search query string false "Title or author substring"
// @Param genre query string false "Genre"
// @Param condition query string false "Condition"
// @Param type query string false "Listing type (Swap or Sell)"
// @Param location query string false "Owner location"
// @Param sort query string false "Comma separated fields, - prefix for descending"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 10, max 100)"
// @Success 200 {object} models.Response{data=[]models.Book,pagination=models.Pagination}
// @Router /books [get]
func (s *Server) ListBooks(c *fiber.Ctx) error {
	filter := catalogFilter(c)
	books, total, err := s.bookService.List(c.UserContext(), filter)
	if err != nil {
		return s.respondError(c, err)
	}

	page, limit := repository.NormalizePaging(filter.Page, filter.Limit)
	return models.RespondPaged(c, books, models.Pagination{
		TotalBooks:  total,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	})
}

// GetBook handles GET /api/books/:id
// @Summary Get a book
// @Tags books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} models.Response{data=models.Book}
// @Failure 404 {object} models.Response
// @Router /books/{id} [get]
func (s *Server) GetBook(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	book, err := s.bookService.Get(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, book, "")
}

// CreateBook handles POST /api/books
// @Summary List a book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body bookRequest true "Book"
// @Success 201 {object} models.Response{data=models.Book}
// @Failure 400 {object} models.Response
// @Router /books [post]
func (s *Server) CreateBook(c *fiber.Ctx) error {
	var req bookRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	book, err := s.bookService.Create(c.UserContext(), currentUserID(c), req.input())
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusCreated, book, "Book added successfully")
}

// UpdateBook handles PUT /api/books/:id
// @Summary Update a listing
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Param request body bookRequest true "Book"
// @Success 200 {object} models.Response{data=models.Book}
// @Failure 403 {object} models.Response
// @Router /books/{id} [put]
func (s *Server) UpdateBook(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req bookRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	book, err := s.bookService.Update(c.UserContext(), id, currentUserID(c), req.input())
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, book, "Book updated successfully")
}

// DeleteBook handles DELETE /api/books/:id
// @Summary Remove a listing
// @Description Pending requests for the book are rejected
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Success 200 {object} models.Response
// @Failure 403 {object} models.Response
// @Router /books/{id} [delete]
func (s *Server) DeleteBook(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.bookService.Delete(c.UserContext(), id, currentUserID(c)); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, nil, "Book removed")
}

// UploadCover handles POST /api/books/:id/cover
// @Summary Upload a cover image
// @Tags books
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Param cover formData file true "JPEG, PNG or WebP image"
// @Success 200 {object} models.Response{data=models.Book}
// @Failure 400 {object} models.Response
// @Failure 403 {object} models.Response
// @Router /books/{id}/cover [post]
func (s *Server) UploadCover(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	fh, err := c.FormFile("cover")
	if err != nil {
		return s.respondError(c, models.NewValidationError("No file uploaded"))
	}
	maxBytes := int64(s.coverUploadLimitMB()) * 1024 * 1024
	f, err := fh.Open()
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}

	book, err := s.coverService.Upload(c.UserContext(), service.UploadCoverInput{
		BookID:      id,
		UserID:      currentUserID(c),
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, book, "Cover uploaded successfully")
}

// ServeCover handles GET /media/covers/:hash/:file
func (s *Server) ServeCover(c *fiber.Ctx) error {
	path, err := s.coverService.ResolveForServing(c.Params("hash"), c.Params("file"))
	if err != nil {
		return s.respondError(c, err)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	if err := c.SendFile(path); err != nil {
		return s.respondError(c, models.NewNotFoundError("Image not found"))
	}
	return nil
}
