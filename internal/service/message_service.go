package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/observability"
	"bookswap/internal/repository"
)

// MaxMessageLength bounds a single conversation message.
const MaxMessageLength = 2000

// MessageService provides the conversation attached to each swap request.
type MessageService struct {
	swapRepo    repository.SwapRepository
	messageRepo repository.MessageRepository
	events      EventPublisher
}

// NewMessageService returns a new MessageService. events may be nil.
func NewMessageService(swapRepo repository.SwapRepository, messageRepo repository.MessageRepository, events EventPublisher) *MessageService {
	return &MessageService{swapRepo: swapRepo, messageRepo: messageRepo, events: events}
}

// ListConversations returns one entry per request the user is party to,
// newest request first.
func (s *MessageService) ListConversations(ctx context.Context, userID uint) ([]models.Conversation, error) {
	reqs, err := s.swapRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(reqs))
	for i := range reqs {
		ids[i] = reqs[i].ID
	}
	latest, err := s.messageRepo.LatestByRequests(ctx, ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.messageRepo.UnreadByRequests(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Conversation, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		other := req.Owner
		if req.OwnerID == userID {
			other = req.Requester
		}
		out = append(out, models.Conversation{
			SwapRequest: req,
			LastMessage: latest[req.ID],
			UnreadCount: unread[req.ID],
			OtherUser:   other.Summary(),
		})
	}
	return out, nil
}

// loadForParty fetches the request and checks userID takes part in it.
func (s *MessageService) loadForParty(ctx context.Context, requestID, userID uint, forbidden string) (*models.SwapRequest, error) {
	req, err := s.swapRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsParty(userID) {
		return nil, models.NewForbiddenError(forbidden)
	}
	return req, nil
}

// GetThread returns the messages of a request, oldest first.
func (s *MessageService) GetThread(ctx context.Context, requestID, userID uint) ([]models.Message, error) {
	if _, err := s.loadForParty(ctx, requestID, userID, "Not authorized to view this conversation"); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByRequest(ctx, requestID)
}

// PostMessage appends an unread message addressed to the sender's counterpart.
func (s *MessageService) PostMessage(ctx context.Context, requestID, senderID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, models.NewValidationError("Message is too long (max 2000 characters)")
	}

	req, err := s.loadForParty(ctx, requestID, senderID, "Not authorized to send messages in this conversation")
	if err != nil {
		return nil, err
	}
	receiverID, err := req.Counterpart(senderID)
	if err != nil {
		return nil, models.NewForbiddenError("Not authorized to send messages in this conversation")
	}

	msg := &models.Message{
		SwapRequestID: req.ID,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Content:       content,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	observability.MessagesPosted.WithLabelValues("user").Inc()

	if senderID == req.RequesterID {
		msg.Sender = req.Requester
	} else {
		msg.Sender = req.Owner
	}
	publishEvent(ctx, s.events, receiverID, notifications.EventMessageReceived, msg)
	return msg, nil
}

// MarkRead flags a message as read. Only its receiver may do so; repeating
// the call is harmless.
func (s *MessageService) MarkRead(ctx context.Context, messageID, userID uint) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ReceiverID != userID {
		return nil, models.NewForbiddenError("Not authorized")
	}
	if msg.Read {
		return msg, nil
	}
	if err := s.messageRepo.MarkRead(ctx, messageID); err != nil {
		return nil, err
	}
	msg.Read = true
	return msg, nil
}

// UnreadCount returns how many messages addressed to userID are unread.
func (s *MessageService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.messageRepo.CountUnread(ctx, userID)
}

// DeleteThread removes every message of a request. The request itself stays.
func (s *MessageService) DeleteThread(ctx context.Context, requestID, userID uint) (int64, error) {
	if _, err := s.loadForParty(ctx, requestID, userID, "Not authorized to delete this conversation"); err != nil {
		return 0, err
	}
	return s.messageRepo.DeleteByRequest(ctx, requestID)
}
