package server

import (
	"log/slog"
	"time"

	"bookswap/internal/cache"
	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AuthPayload is returned by register and login.
type AuthPayload struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Location string `json:"location"`
	About    string `json:"about"`
}

type profileRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Location string `json:"location"`
	About    string `json:"about"`
}

type rateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and return an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Registration"
// @Success 201 {object} models.Response{data=AuthPayload}
// @Failure 400 {object} models.Response
// @Failure 409 {object} models.Response
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Location: req.Location,
		About:    req.About,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return s.respondWithToken(c, fiber.StatusCreated, user, "User registered successfully")
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} models.Response{data=AuthPayload}
// @Failure 401 {object} models.Response
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}

	return s.respondWithToken(c, fiber.StatusOK, user, "Login successful")
}

func (s *Server) respondWithToken(c *fiber.Ctx, status int, user *models.User, msg string) error {
	token, err := middleware.IssueAccessToken(s.config.JWTSecret, user.ID, user.Username, s.config.JWTTTL())
	if err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}
	return models.RespondOK(c, status, AuthPayload{Token: token, User: user}, msg)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the current access token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*middleware.AccessClaims)
	if claims != nil && claims.JTI != "" && s.redis != nil {
		ttl := time.Until(claims.ExpiresAt)
		if ttl > 0 {
			if err := s.redis.Set(c.UserContext(), cache.BlacklistKey(claims.JTI), "1", ttl).Err(); err != nil {
				middleware.Logger.WarnContext(c.UserContext(), "failed to revoke token",
					slog.String("error", err.Error()))
			}
		}
	}
	return models.RespondOK(c, fiber.StatusOK, nil, "Logged out successfully")
}

// UpdateProfile handles PUT /api/auth/profile
// @Summary Update profile
// @Description Partially update the current user's profile
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body profileRequest true "Fields to change"
// @Success 200 {object} models.Response{data=models.User}
// @Failure 400 {object} models.Response
// @Failure 409 {object} models.Response
// @Router /auth/profile [put]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:   currentUserID(c),
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Location: req.Location,
		About:    req.About,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, user, "Profile updated successfully")
}

// GetMyStats handles GET /api/auth/stats
// @Summary Profile stats
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=models.UserStats}
// @Router /auth/stats [get]
func (s *Server) GetMyStats(c *fiber.Ctx) error {
	stats, err := s.userService.Stats(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, stats, "")
}

// RateUser handles POST /api/auth/rate/:userId
// @Summary Rate a user
// @Description Add a 1 to 5 rating and optional review for another user
// @Tags ratings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "Rated user ID"
// @Param request body rateRequest true "Rating"
// @Success 201 {object} models.Response{data=models.RatingStats}
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Router /auth/rate/{userId} [post]
func (s *Server) RateUser(c *fiber.Ctx) error {
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req rateRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	stats, err := s.ratingService.AddRating(c.UserContext(), service.AddRatingInput{
		TargetUserID: targetID,
		ReviewerID:   currentUserID(c),
		Score:        req.Rating,
		Review:       req.Review,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusCreated, stats, "Rating added successfully")
}
