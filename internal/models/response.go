package models

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Response is the envelope every API endpoint writes.
type Response struct {
	Status     bool        `json:"status"`
	Data       interface{} `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Code       string      `json:"code,omitempty"`
	Pagination interface{} `json:"pagination,omitempty"`
}

// Pagination describes a paged book listing.
type Pagination struct {
	TotalBooks  int64 `json:"totalBooks"`
	TotalPages  int   `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
}

// RespondOK writes a successful envelope with the given status code.
func RespondOK(c *fiber.Ctx, status int, data interface{}, message string) error {
	return c.Status(status).JSON(Response{Status: true, Data: data, Message: message})
}

// RespondPaged writes a successful envelope with pagination metadata.
func RespondPaged(c *fiber.Ctx, data interface{}, pagination Pagination) error {
	return c.Status(fiber.StatusOK).JSON(Response{Status: true, Data: data, Pagination: pagination})
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	response := Response{Status: false}

	var appErr *AppError
	if errors.As(err, &appErr) {
		response.Message = appErr.Message
		response.Code = appErr.Code
	} else {
		response.Message = err.Error()
	}

	return c.Status(status).JSON(response)
}

// HTTPStatus maps an AppError code to its HTTP status.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeValidation, CodeInvalidOperation:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
