package models

import "time"

// Rating bounds.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Rating is a review left by one user about another. Ratings are append-only.
type Rating struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"userId"`
	ReviewerID uint      `gorm:"not null;index" json:"reviewerId"`
	Score      int       `gorm:"column:rating;not null" json:"rating"`
	Review     string    `gorm:"type:text" json:"review,omitempty"`
	Reviewer   *User     `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RatingStats is the aggregate stored on the rated user.
type RatingStats struct {
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}
