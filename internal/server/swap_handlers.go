package server

import (
	"bookswap/internal/models"
	"bookswap/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createSwapRequest struct {
	BookID          uint   `json:"bookId"`
	Type            string `json:"type"`
	ShippingAddress string `json:"shippingAddress"`
}

type updateSwapRequest struct {
	Status string `json:"status"`
}

// CreateSwapRequest handles POST /api/swaps
// @Summary Request a book
// @Description Open a swap or buy request. Buy requests are settled before the request is stored.
// @Tags swaps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "UUID replay key"
// @Param request body createSwapRequest true "Request"
// @Success 201 {object} models.Response{data=models.SwapRequest}
// @Failure 400 {object} models.Response
// @Failure 404 {object} models.Response
// @Router /swaps [post]
func (s *Server) CreateSwapRequest(c *fiber.Ctx) error {
	var req createSwapRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.BookID == 0 {
		return s.respondError(c, models.NewValidationError("Book ID is required"))
	}

	created, err := s.swapService.CreateRequest(c.UserContext(), service.CreateSwapInput{
		RequesterID:     currentUserID(c),
		BookID:          req.BookID,
		Type:            req.Type,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusCreated, created, "Swap request created successfully")
}

// ListMySwapRequests handles GET /api/swaps
// @Summary List my requests
// @Description Requests where the caller is requester or owner, newest first
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=[]models.SwapRequest}
// @Router /swaps [get]
func (s *Server) ListMySwapRequests(c *fiber.Ctx) error {
	requests, err := s.swapService.ListMyRequests(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, requests, "")
}

// UpdateSwapStatus handles PUT /api/swaps/:id
// @Summary Change request status
// @Description Owner accepts, rejects, ships or delivers a request
// @Tags swaps
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Swap request ID"
// @Param request body updateSwapRequest true "accepted, rejected, shipped or delivered"
// @Success 200 {object} models.Response{data=models.SwapRequest}
// @Failure 400 {object} models.Response
// @Failure 403 {object} models.Response
// @Failure 409 {object} models.Response
// @Router /swaps/{id} [put]
func (s *Server) UpdateSwapStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req updateSwapRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	updated, err := s.swapService.UpdateStatus(c.UserContext(), id, currentUserID(c), req.Status)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, updated, "Swap request updated successfully")
}

// CancelSwapRequest handles DELETE /api/swaps/:id
// @Summary Cancel a pending request
// @Tags swaps
// @Produce json
// @Security BearerAuth
// @Param id path int true "Swap request ID"
// @Success 200 {object} models.Response
// @Failure 400 {object} models.Response
// @Failure 403 {object} models.Response
// @Router /swaps/{id} [delete]
func (s *Server) CancelSwapRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.swapService.CancelRequest(c.UserContext(), id, currentUserID(c)); err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, nil, "Swap request cancelled successfully")
}
