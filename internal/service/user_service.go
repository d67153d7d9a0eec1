package service

import (
	"context"
	"strings"

	"bookswap/internal/models"
	"bookswap/internal/repository"
	"bookswap/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
	bookRepo repository.BookRepository
}

// RegisterInput carries a new account's details.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Location string
	About    string
}

// UpdateProfileInput is a partial profile update; empty fields are kept.
type UpdateProfileInput struct {
	UserID   uint
	Username string
	FullName string
	Email    string
	Location string
	About    string
}

func NewUserService(userRepo repository.UserRepository, bookRepo repository.BookRepository) *UserService {
	return &UserService{userRepo: userRepo, bookRepo: bookRepo}
}

// Register validates and stores a new account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Location = strings.TrimSpace(in.Location)

	if err := validation.ValidateRegistration(validation.Registration{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		FullName: in.FullName,
		Location: in.Location,
		About:    in.About,
	}); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if existing, err := s.userRepo.GetByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}
	if existing, err := s.userRepo.GetByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	about := strings.TrimSpace(in.About)
	if about == "" {
		about = models.DefaultAbout
	}
	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
		FullName: in.FullName,
		Location: in.Location,
		About:    about,
		Role:     models.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair. Unknown email and wrong
// password produce the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := models.NewUnauthorizedError("Invalid email or password")

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, invalid
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, invalid
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateProfile applies the non-empty fields of in to the user's profile.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	updated := *user

	if v := strings.TrimSpace(in.Username); v != "" {
		if err := validation.ValidateUsername(v); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updated.Username = v
	}
	if v := strings.ToLower(strings.TrimSpace(in.Email)); v != "" {
		if err := validation.ValidateEmail(v); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updated.Email = v
	}
	if v := strings.TrimSpace(in.FullName); v != "" {
		updated.FullName = v
	}
	if v := strings.TrimSpace(in.Location); v != "" {
		updated.Location = v
	}
	if v := strings.TrimSpace(in.About); v != "" {
		updated.About = v
	}
	if err := validation.ValidateProfile(updated.FullName, updated.Location, updated.About); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if err := s.userRepo.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Stats returns the listing count and rating aggregate of a user.
func (s *UserService) Stats(ctx context.Context, userID uint) (*models.UserStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	listed, err := s.bookRepo.CountByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserStats{
		BooksListed:   listed,
		AverageRating: user.AverageRating,
		ReviewCount:   user.ReviewCount,
	}, nil
}
