package service

import (
	"context"
	"strconv"
	"strings"

	"bookswap/internal/featureflags"
	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/observability"
	"bookswap/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// MaxReviewLength bounds the optional text attached to a rating.
const MaxReviewLength = 1000

// RatingService records peer ratings and keeps the user aggregate in sync.
type RatingService struct {
	userRepo repository.UserRepository
	swapRepo repository.SwapRepository
	flags    *featureflags.Manager
	events   EventPublisher
}

// AddRatingInput is one reviewer's rating of another user.
type AddRatingInput struct {
	TargetUserID uint
	ReviewerID   uint
	Score        int
	Review       string
}

// NewRatingService returns a new RatingService. flags and events may be nil.
func NewRatingService(userRepo repository.UserRepository, swapRepo repository.SwapRepository, flags *featureflags.Manager, events EventPublisher) *RatingService {
	return &RatingService{userRepo: userRepo, swapRepo: swapRepo, flags: flags, events: events}
}

// AddRating appends a rating and returns the target's recomputed aggregate.
func (s *RatingService) AddRating(ctx context.Context, in AddRatingInput) (stats *models.RatingStats, err error) {
	ctx, span := observability.StartSpan(ctx, "rating", "add",
		attribute.Int64("user.id", int64(in.TargetUserID)),
		attribute.Int("rating.score", in.Score),
	)
	defer func() { span.End(err) }()

	if in.Score < models.MinRatingScore || in.Score > models.MaxRatingScore {
		return nil, models.NewValidationError("Rating must be between 1 and 5")
	}
	review := strings.TrimSpace(in.Review)
	if len([]rune(review)) > MaxReviewLength {
		return nil, models.NewValidationError("Review is too long (max 1000 characters)")
	}

	if _, err = s.userRepo.GetByID(ctx, in.TargetUserID); err != nil {
		return nil, err
	}
	if in.TargetUserID == in.ReviewerID {
		return nil, models.NewInvalidOperationError("You cannot rate yourself")
	}

	if s.flags.Enabled(featureflags.RatingRequiresSwap, in.ReviewerID) {
		ok, err := s.swapRepo.HasAcceptedBetween(ctx, in.ReviewerID, in.TargetUserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewInvalidOperationError("You can only rate users you have completed a swap with")
		}
	}

	rating := &models.Rating{
		UserID:     in.TargetUserID,
		ReviewerID: in.ReviewerID,
		Score:      in.Score,
		Review:     review,
	}
	stats, err = s.userRepo.AddRating(ctx, rating)
	if err != nil {
		return nil, err
	}
	observability.RatingsAdded.WithLabelValues(strconv.Itoa(in.Score)).Inc()

	publishEvent(ctx, s.events, in.TargetUserID, notifications.EventRatingReceived, map[string]interface{}{
		"ratingId":      rating.ID,
		"reviewerId":    in.ReviewerID,
		"rating":        in.Score,
		"averageRating": stats.AverageRating,
		"reviewCount":   stats.ReviewCount,
	})
	return stats, nil
}

// ListRatings returns the most recent ratings a user received.
func (s *RatingService) ListRatings(ctx context.Context, userID uint, limit int) ([]models.Rating, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.userRepo.ListRatings(ctx, userID, limit)
}
