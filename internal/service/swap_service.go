package service

import (
	"context"
	"log/slog"
	"strings"

	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/observability"
	"bookswap/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// SwapService runs the swap request lifecycle.
type SwapService struct {
	swapRepo    repository.SwapRepository
	messageRepo repository.MessageRepository
	payments    PaymentProcessor
	events      EventPublisher
}

// CreateSwapInput is a requester's offer for a book.
type CreateSwapInput struct {
	RequesterID     uint
	BookID          uint
	Type            string
	ShippingAddress string
}

// NewSwapService returns a new SwapService. payments and events may be nil.
func NewSwapService(
	swapRepo repository.SwapRepository,
	messageRepo repository.MessageRepository,
	payments PaymentProcessor,
	events EventPublisher,
) *SwapService {
	return &SwapService{
		swapRepo:    swapRepo,
		messageRepo: messageRepo,
		payments:    payments,
		events:      events,
	}
}

// CreateRequest opens a pending request and its greeting message.
func (s *SwapService) CreateRequest(ctx context.Context, in CreateSwapInput) (req *models.SwapRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "swap", "create",
		attribute.Int64("book.id", int64(in.BookID)),
		attribute.Int64("user.id", int64(in.RequesterID)),
	)
	defer func() { span.End(err) }()

	reqType, err := models.ParseRequestType(in.Type)
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(in.ShippingAddress)
	if reqType == models.RequestBuy && address == "" {
		return nil, models.NewValidationError("Shipping address is required for buy requests")
	}

	book, err := s.swapRepo.GetBook(ctx, in.BookID)
	if err != nil {
		return nil, err
	}
	if book.OwnerID == in.RequesterID {
		return nil, models.NewInvalidOperationError("You cannot request your own book")
	}
	if book.IsSwapped {
		return nil, models.NewInvalidOperationError("This book has already been swapped")
	}
	pending, err := s.swapRepo.HasPending(ctx, in.RequesterID, in.BookID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, models.NewInvalidOperationError("You already have a pending request for this book")
	}

	payment := models.PaymentStatusFor(reqType)
	if s.payments != nil {
		var amount float64
		if book.Price != nil {
			amount = *book.Price
		}
		receipt, err := s.payments.Settle(ctx, reqType, amount)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		payment = receipt.Status
	}

	req = &models.SwapRequest{
		RequesterID:     in.RequesterID,
		OwnerID:         book.OwnerID,
		BookID:          book.ID,
		Type:            reqType,
		Status:          models.StatusPending,
		ShippingStatus:  models.ShippingPending,
		PaymentStatus:   payment,
		ShippingAddress: address,
	}
	greeting := &models.Message{
		SenderID:   in.RequesterID,
		ReceiverID: book.OwnerID,
		Content:    greetingFor(reqType, book.Title),
	}
	if err := s.swapRepo.Create(ctx, req, greeting); err != nil {
		return nil, err
	}
	observability.SwapRequestsCreated.WithLabelValues(string(reqType)).Inc()
	observability.MessagesPosted.WithLabelValues("system").Inc()

	created, err := s.swapRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, s.events, created.OwnerID, notifications.EventSwapRequestCreated, swapEventPayload(created))
	publishEvent(ctx, s.events, created.OwnerID, notifications.EventMessageReceived, greeting)
	return created, nil
}

// ListMyRequests returns the requests where userID is requester or owner.
func (s *SwapService) ListMyRequests(ctx context.Context, userID uint) ([]models.SwapRequest, error) {
	return s.swapRepo.ListForUser(ctx, userID)
}

// UpdateStatus applies an owner action to a request. The status message to
// the requester is written after the transition commits; its failure is
// logged and does not fail the call.
func (s *SwapService) UpdateStatus(ctx context.Context, requestID, actingUserID uint, status string) (req *models.SwapRequest, err error) {
	ctx, span := observability.StartSpan(ctx, "swap", "update_status",
		attribute.Int64("swap_request.id", int64(requestID)),
		attribute.String("swap.status", status),
	)
	defer func() { span.End(err) }()

	req, err = s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != actingUserID {
		return nil, models.NewForbiddenError("Not authorized to update this request")
	}
	action, err := models.ParseSwapAction(status)
	if err != nil {
		return nil, err
	}
	defer func() { observability.RecordTransition(string(action), err) }()

	next, err := req.State().Apply(action)
	if err != nil {
		return nil, err
	}

	var rejected []models.SwapRequest
	switch action {
	case models.ActionAccept:
		if req.Book == nil || req.Book.DeletedAt.Valid {
			return nil, models.NewNotFoundError("Book not found")
		}
		if req.Book.IsSwapped {
			return nil, models.NewInvalidOperationError("This book has already been swapped")
		}
		if rejected, err = s.swapRepo.Accept(ctx, req); err != nil {
			return nil, err
		}
	case models.ActionReject:
		if err = s.swapRepo.Reject(ctx, req); err != nil {
			return nil, err
		}
	case models.ActionShip, models.ActionDeliver:
		if err = s.swapRepo.AdvanceShipping(ctx, req, next.Shipping); err != nil {
			return nil, err
		}
	}

	s.postSystemMessage(ctx, req, action)

	publishEvent(ctx, s.events, req.RequesterID, notifications.EventSwapRequestUpdated, swapEventPayload(req))
	for i := range rejected {
		sibling := &rejected[i]
		sibling.Book = req.Book
		publishEvent(ctx, s.events, sibling.RequesterID, notifications.EventSwapRequestUpdated, swapEventPayload(sibling))
	}
	return req, nil
}

func (s *SwapService) postSystemMessage(ctx context.Context, req *models.SwapRequest, action models.SwapAction) {
	title := ""
	if req.Book != nil {
		title = req.Book.Title
	}
	msg := &models.Message{
		SwapRequestID: req.ID,
		SenderID:      req.OwnerID,
		ReceiverID:    req.RequesterID,
		Content:       statusMessageFor(action, title),
	}
	if err := s.messageRepo.Create(context.WithoutCancel(ctx), msg); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to write swap status message",
			slog.Uint64("swap_request_id", uint64(req.ID)),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.MessagesPosted.WithLabelValues("system").Inc()
	publishEvent(ctx, s.events, req.RequesterID, notifications.EventMessageReceived, msg)
}

// CancelRequest withdraws a pending request and deletes its conversation.
func (s *SwapService) CancelRequest(ctx context.Context, requestID, actingUserID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "swap", "cancel", attribute.Int64("swap_request.id", int64(requestID)))
	defer func() { span.End(err) }()

	req, err := s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != actingUserID {
		return models.NewForbiddenError("Not authorized to cancel this request")
	}
	if req.Status != models.StatusPending {
		return models.NewInvalidOperationError("Cannot cancel a processed request")
	}
	if err = s.swapRepo.Cancel(ctx, requestID, actingUserID); err != nil {
		return err
	}

	publishEvent(ctx, s.events, req.OwnerID, notifications.EventSwapRequestCancelled, map[string]interface{}{
		"id":          req.ID,
		"bookId":      req.BookID,
		"requesterId": req.RequesterID,
	})
	return nil
}
