package service

import (
	"context"
	"log/slog"

	"bookswap/internal/middleware"
	"bookswap/internal/models"
)

// EventPublisher pushes realtime events to a user's connected clients.
type EventPublisher interface {
	PublishEvent(ctx context.Context, userID uint, eventType string, payload any) error
}

// publishEvent delivers best effort; failures are logged and swallowed.
func publishEvent(ctx context.Context, pub EventPublisher, userID uint, eventType string, payload any) {
	if pub == nil || userID == 0 {
		return
	}
	if err := pub.PublishEvent(context.WithoutCancel(ctx), userID, eventType, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish realtime event",
			slog.String("event", eventType),
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// swapEventPayload is the body of swap_request_* events.
func swapEventPayload(req *models.SwapRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"id":             req.ID,
		"bookId":         req.BookID,
		"requesterId":    req.RequesterID,
		"ownerId":        req.OwnerID,
		"type":           req.Type,
		"status":         req.Status,
		"shippingStatus": req.ShippingStatus,
		"paymentStatus":  req.PaymentStatus,
	}
	if req.Book != nil {
		payload["bookTitle"] = req.Book.Title
	}
	if req.Requester != nil {
		payload["requester"] = req.Requester.Summary()
	}
	return payload
}
