package models

import (
	"time"

	"gorm.io/gorm"
)

// Book conditions.
const (
	ConditionNew     = "New"
	ConditionLikeNew = "Like New"
	ConditionGood    = "Good"
	ConditionFair    = "Fair"
	ConditionPoor    = "Poor"
)

// Listing types.
const (
	ListingSell = "Sell"
	ListingSwap = "Swap"
)

// DefaultLanguage is applied when a listing omits its language.
const DefaultLanguage = "English"

// Book is a listing owned by a single user. IsSwapped is owned by the swap
// engine; the listing owner never writes it directly.
type Book struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Title         string         `gorm:"size:255;not null;index" json:"title"`
	Author        string         `gorm:"size:255;not null;index" json:"author"`
	Genre         string         `gorm:"size:100;not null;index" json:"genre"`
	Condition     string         `gorm:"size:20;not null" json:"condition"`
	Description   string         `gorm:"type:text;not null" json:"description"`
	ImageURL      string         `gorm:"size:512" json:"imageURL,omitempty"`
	PublishedYear *int           `json:"publishedYear,omitempty"`
	Pages         *int           `json:"pages,omitempty"`
	Language      string         `gorm:"size:50;not null;default:English" json:"language"`
	ListingType   string         `gorm:"size:10;not null;default:Swap;index" json:"listingType"`
	Price         *float64       `json:"price,omitempty"`
	IsSwapped     bool           `gorm:"not null;default:false;index" json:"isSwapped"`
	OwnerID       uint           `gorm:"not null;index" json:"ownerId"`
	Owner         *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// BookFilter narrows a catalog listing.
type BookFilter struct {
	Search      string
	Genre       string
	Condition   string
	ListingType string
	Location    string
	OwnerID     uint
	Sort        string
	Page        int
	Limit       int
}

// ValidCondition reports whether c is one of the accepted book conditions.
func ValidCondition(c string) bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}
