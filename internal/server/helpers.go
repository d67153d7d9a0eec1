package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"bookswap/internal/middleware"
	"bookswap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// respondError writes err with the status mapped from its AppError code.
// Errors without a code are logged and reported as 500 without their detail.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	status := models.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

// currentUserID returns the authenticated user set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// parseBody decodes the request body. On failure it writes a 400 JSON
// response and returns errResponseWritten.
func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "userId" -> "Invalid user ID", "swapRequestId" -> "Invalid swap request ID").
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam turns a route param into a label: "id" -> "ID",
// "swapRequestId" -> "swap request ID". Other names pass through.
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	stem, ok := strings.CutSuffix(param, "Id")
	if !ok {
		return param
	}
	var b strings.Builder
	for i, r := range stem {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String() + " ID"
}

// catalogFilter reads the book listing query string.
func catalogFilter(c *fiber.Ctx) models.BookFilter {
	f := models.BookFilter{
		Search:      strings.TrimSpace(c.Query("search")),
		Genre:       strings.TrimSpace(c.Query("genre")),
		Condition:   strings.TrimSpace(c.Query("condition")),
		ListingType: strings.TrimSpace(c.Query("type")),
		Location:    strings.TrimSpace(c.Query("location")),
		Sort:        c.Query("sort"),
		Page:        c.QueryInt("page", 1),
		Limit:       c.QueryInt("limit", 0),
	}
	if owner := c.QueryInt("owner", 0); owner > 0 {
		f.OwnerID = uint(owner)
	}
	return f
}
