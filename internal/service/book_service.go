package service

import (
	"context"
	"strings"

	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/repository"
	"bookswap/internal/validation"
)

// BookService manages catalog listings.
type BookService struct {
	bookRepo repository.BookRepository
	events   EventPublisher
}

// NewBookService returns a new BookService. events may be nil.
func NewBookService(bookRepo repository.BookRepository, events EventPublisher) *BookService {
	return &BookService{bookRepo: bookRepo, events: events}
}

// List returns one page of the catalog and the total number of matches.
func (s *BookService) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int64, error) {
	return s.bookRepo.List(ctx, filter)
}

func (s *BookService) Get(ctx context.Context, id uint) (*models.Book, error) {
	return s.bookRepo.GetByID(ctx, id)
}

// Create validates and stores a new listing owned by ownerID.
func (s *BookService) Create(ctx context.Context, ownerID uint, in validation.BookInput) (*models.Book, error) {
	in = normalizeBookInput(in)
	if err := validation.ValidateBook(in); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	book := &models.Book{OwnerID: ownerID}
	applyBookInput(book, in)
	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// Update replaces the owner-editable fields of a listing.
func (s *BookService) Update(ctx context.Context, id, actingUserID uint, in validation.BookInput) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if book.OwnerID != actingUserID {
		return nil, models.NewForbiddenError("Not authorized to update this book")
	}

	in = normalizeBookInput(in)
	if err := validation.ValidateBook(in); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	applyBookInput(book, in)
	if err := s.bookRepo.Update(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// Delete removes a listing. Pending requests for it are rejected and their
// requesters notified.
func (s *BookService) Delete(ctx context.Context, id, actingUserID uint) error {
	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if book.OwnerID != actingUserID {
		return models.NewForbiddenError("Not authorized to delete this book")
	}

	rejected, err := s.bookRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	for i := range rejected {
		req := &rejected[i]
		req.Book = book
		publishEvent(ctx, s.events, req.RequesterID, notifications.EventSwapRequestUpdated, swapEventPayload(req))
	}
	return nil
}

func normalizeBookInput(in validation.BookInput) validation.BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Description = strings.TrimSpace(in.Description)
	in.Language = strings.TrimSpace(in.Language)
	if in.Language == "" {
		in.Language = models.DefaultLanguage
	}
	if in.ListingType == "" {
		in.ListingType = models.ListingSwap
	}
	if in.ListingType == models.ListingSwap {
		in.Price = nil
	}
	return in
}

func applyBookInput(book *models.Book, in validation.BookInput) {
	book.Title = in.Title
	book.Author = in.Author
	book.Genre = in.Genre
	book.Condition = in.Condition
	book.Description = in.Description
	book.PublishedYear = in.PublishedYear
	book.Pages = in.Pages
	book.Language = in.Language
	book.ListingType = in.ListingType
	book.Price = in.Price
}
