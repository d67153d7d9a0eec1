package server

import (
	"bookswap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PublicProfile is another member's profile as shown on their page.
type PublicProfile struct {
	*models.UserSummary
	About string            `json:"about"`
	Stats *models.UserStats `json:"stats"`
}

// GetUserProfile handles GET /api/users/:id
// @Summary Get a user's public profile
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.Response{data=PublicProfile}
// @Failure 404 {object} models.Response
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userService.GetUserByID(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	stats, err := s.userService.Stats(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}

	return models.RespondOK(c, fiber.StatusOK, PublicProfile{
		UserSummary: user.Summary(),
		About:       user.About,
		Stats:       stats,
	}, "")
}

// GetUserRatings handles GET /api/users/:id/ratings
// @Summary List ratings received by a user
// @Tags ratings
// @Produce json
// @Param id path int true "User ID"
// @Param limit query int false "Max results (default 20)"
// @Success 200 {object} models.Response{data=[]models.Rating}
// @Failure 404 {object} models.Response
// @Router /users/{id}/ratings [get]
func (s *Server) GetUserRatings(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	ratings, err := s.ratingService.ListRatings(c.UserContext(), id, c.QueryInt("limit", 20))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, ratings, "")
}
