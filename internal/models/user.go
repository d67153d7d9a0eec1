// Package models contains data structures for the book exchange domain.
package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultAbout is stored for users who register without a bio.
const DefaultAbout = "An avid reader and lover of stories. Always seeking new adventures through books and sharing the magic of reading with fellow book enthusiasts. Favorite genres include fantasy, mystery, and literary fiction."

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a marketplace member. AverageRating and ReviewCount are derived
// from the ratings table and only written by the rating repository.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Username      string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email         string         `gorm:"uniqueIndex;size:255;not null" json:"email,omitempty"`
	Password      string         `gorm:"not null" json:"-"`
	FullName      string         `gorm:"size:120;not null" json:"fullName"`
	Location      string         `gorm:"size:120;not null;index" json:"location"`
	About         string         `gorm:"type:text" json:"about"`
	Role          string         `gorm:"size:16;not null;default:user" json:"role"`
	AverageRating float64        `gorm:"not null;default:0" json:"averageRating"`
	ReviewCount   int            `gorm:"not null;default:0" json:"reviewCount"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserSummary is the public view of another member embedded in realtime events
// and conversation listings.
type UserSummary struct {
	ID            uint    `json:"id"`
	Username      string  `json:"username"`
	FullName      string  `json:"fullName"`
	Location      string  `json:"location"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

// Summary returns the public view of u.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:            u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		Location:      u.Location,
		AverageRating: u.AverageRating,
		ReviewCount:   u.ReviewCount,
	}
}

// UserStats is returned by the profile stats endpoint.
type UserStats struct {
	BooksListed   int64   `json:"booksListed"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

// WishlistItem links a user to a book they want.
type WishlistItem struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	BookID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"bookId"`
	CreatedAt time.Time `json:"createdAt"`
	Book      *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName pins the join table name used by the SQL migrations.
func (WishlistItem) TableName() string {
	return "wishlist_items"
}
