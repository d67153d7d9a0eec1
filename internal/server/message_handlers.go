package server

import (
	"bookswap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListConversations handles GET /api/messages/conversations
// @Summary Inbox
// @Description One entry per swap request with its latest message and unread count
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=[]models.Conversation}
// @Router /messages/conversations [get]
func (s *Server) ListConversations(c *fiber.Ctx) error {
	convs, err := s.messageService.ListConversations(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, convs, "")
}

// GetThread handles GET /api/messages/:swapRequestId
// @Summary Messages of a swap request
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param swapRequestId path int true "Swap request ID"
// @Success 200 {object} models.Response{data=[]models.Message}
// @Failure 403 {object} models.Response
// @Failure 404 {object} models.Response
// @Router /messages/{swapRequestId} [get]
func (s *Server) GetThread(c *fiber.Ctx) error {
	requestID, err := s.parseID(c, "swapRequestId")
	if err != nil {
		return nil
	}
	msgs, err := s.messageService.GetThread(c.UserContext(), requestID, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, msgs, "")
}

// SendMessage handles POST /api/messages/:swapRequestId
// @Summary Send a message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param swapRequestId path int true "Swap request ID"
// @Param Idempotency-Key header string false "UUID replay key"
// @Param request body object{content=string} true "Message"
// @Success 201 {object} models.Response{data=models.Message}
// @Failure 400 {object} models.Response
// @Failure 403 {object} models.Response
// @Router /messages/{swapRequestId} [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	requestID, err := s.parseID(c, "swapRequestId")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.messageService.PostMessage(c.UserContext(), requestID, currentUserID(c), req.Content)
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusCreated, msg, "Message sent")
}

// MarkMessageRead handles PUT /api/messages/:messageId/read
// @Summary Mark a message read
// @Description Only the receiver may mark a message read
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param messageId path int true "Message ID"
// @Success 200 {object} models.Response{data=models.Message}
// @Failure 403 {object} models.Response
// @Router /messages/{messageId}/read [put]
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	messageID, err := s.parseID(c, "messageId")
	if err != nil {
		return nil
	}
	msg, err := s.messageService.MarkRead(c.UserContext(), messageID, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, msg, "")
}

// GetUnreadCount handles GET /api/messages/unread/count
// @Summary Unread message count
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=object{count=int}}
// @Router /messages/unread/count [get]
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	count, err := s.messageService.UnreadCount(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, fiber.Map{"count": count}, "")
}

// DeleteThread handles DELETE /api/messages/:swapRequestId
// @Summary Delete a conversation
// @Description Removes the messages; the swap request itself is kept
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param swapRequestId path int true "Swap request ID"
// @Success 200 {object} models.Response{data=object{deleted=int}}
// @Failure 403 {object} models.Response
// @Router /messages/{swapRequestId} [delete]
func (s *Server) DeleteThread(c *fiber.Ctx) error {
	requestID, err := s.parseID(c, "swapRequestId")
	if err != nil {
		return nil
	}
	deleted, err := s.messageService.DeleteThread(c.UserContext(), requestID, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return models.RespondOK(c, fiber.StatusOK, fiber.Map{"deleted": deleted}, "Conversation deleted")
}
