package repository

import (
	"context"
	"log/slog"

	"bookswap/internal/cache"
	"bookswap/internal/models"
	"bookswap/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users and their ratings.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	AddRating(ctx context.Context, rating *models.Rating) (*models.RatingStats, error)
	ListRatings(ctx context.Context, userID uint, limit int) ([]models.Rating, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation. store may be nil.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return cache.Aside(ctx, r.cache, "user", cache.UserKey(id), cache.UserTTL, func(ctx context.Context) (*models.User, error) {
		defer observability.TrackQuery("select", "users")()
		var user models.User
		if err := readDB(r.db).WithContext(ctx).First(&user, id).Error; err != nil {
			return nil, notFoundOr(err, "User not found")
		}
		return &user, nil
	})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

// findOne returns nil, nil when nothing matches.
func (r *userRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where(query, arg).Limit(1).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		return models.NewInternalError(err)
	}
	r.log.Write(ctx, "create", slog.Any("user_id", user.ID))
	return nil
}

// Update writes the profile columns. Rating aggregates are left untouched.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).
		Model(user).
		Select("username", "email", "full_name", "location", "about").
		Updates(user).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username or email already in use")
		}
		return models.NewInternalError(err)
	}
	r.cache.InvalidateUser(ctx, user.ID)
	return nil
}

// AddRating appends a rating and recomputes the target's aggregate in one
// transaction holding the target row lock.
func (r *userRepository) AddRating(ctx context.Context, rating *models.Rating) (*models.RatingStats, error) {
	defer observability.TrackQuery("rate", "ratings")()

	var stats models.RatingStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.User
		if err := lockForUpdate(tx).Select("id").First(&target, rating.UserID).Error; err != nil {
			return notFoundOr(err, "User not found")
		}

		if err := tx.Create(rating).Error; err != nil {
			return models.NewInternalError(err)
		}

		var agg struct {
			AvgRating   float64
			ReviewCount int
		}
		if err := tx.Model(&models.Rating{}).
			Select("CAST(COALESCE(AVG(rating), 0) AS FLOAT) AS avg_rating, COUNT(*) AS review_count").
			Where("user_id = ?", rating.UserID).
			Scan(&agg).Error; err != nil {
			return models.NewInternalError(err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", rating.UserID).
			Updates(map[string]interface{}{
				"average_rating": agg.AvgRating,
				"review_count":   agg.ReviewCount,
			}).Error; err != nil {
			return models.NewInternalError(err)
		}

		stats = models.RatingStats{AverageRating: agg.AvgRating, ReviewCount: agg.ReviewCount}
		return nil
	})
	if err != nil {
		r.log.Fail(ctx, "add_rating", err)
		return nil, err
	}

	r.cache.InvalidateUser(ctx, rating.UserID)
	r.log.Write(ctx, "create",
		slog.Any("rating_id", rating.ID),
		slog.Any("user_id", rating.UserID),
		slog.Any("reviewer_id", rating.ReviewerID),
		slog.Any("average_rating", stats.AverageRating),
		slog.Any("review_count", stats.ReviewCount))
	return &stats, nil
}

func (r *userRepository) ListRatings(ctx context.Context, userID uint, limit int) ([]models.Rating, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var ratings []models.Rating
	if err := readDB(r.db).WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Reviewer").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&ratings).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ratings, nil
}
