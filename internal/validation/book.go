package validation

import (
	"fmt"
	"strings"
	"time"

	"bookswap/internal/models"
)

// BookInput is the mutable subset of a listing supplied by its owner.
type BookInput struct {
	Title         string
	Author        string
	Genre         string
	Condition     string
	Description   string
	PublishedYear *int
	Pages         *int
	Language      string
	ListingType   string
	Price         *float64
}

// ValidateBook checks the listing fields and returns the first problem found.
func ValidateBook(in BookInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(in.Title) > 200 {
		return fmt.Errorf("title must not exceed 200 characters")
	}
	if strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("author is required")
	}
	if strings.TrimSpace(in.Genre) == "" {
		return fmt.Errorf("genre is required")
	}
	if !models.ValidCondition(in.Condition) {
		return fmt.Errorf("condition must be one of New, Like New, Good, Fair, Poor")
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if in.PublishedYear != nil && (*in.PublishedYear < 0 || *in.PublishedYear > time.Now().Year()+1) {
		return fmt.Errorf("published year is out of range")
	}
	if in.Pages != nil && *in.Pages <= 0 {
		return fmt.Errorf("pages must be positive")
	}

	switch in.ListingType {
	case models.ListingSell:
		if in.Price == nil {
			return fmt.Errorf("price is required for books listed for sale")
		}
		if *in.Price < 0 {
			return fmt.Errorf("price must not be negative")
		}
	case models.ListingSwap:
	default:
		return fmt.Errorf("listing type must be Sell or Swap")
	}

	return nil
}
