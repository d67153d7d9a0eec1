package server

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"bookswap/internal/cache"
	"bookswap/internal/featureflags"
	"bookswap/internal/middleware"
	"bookswap/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

var errRealtimeUnavailable = errors.New("realtime notifications are unavailable")

// WSTicket is a short-lived, single-use credential for the websocket upgrade.
type WSTicket struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expiresIn"`
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Browsers cannot set headers on the upgrade request, so the socket authenticates with a ticket query parameter instead
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Response{data=WSTicket}
// @Failure 503 {object} models.Response
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errRealtimeUnavailable))
	}

	ticket := uuid.NewString()
	userID := currentUserID(c)
	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket),
		strconv.FormatUint(uint64(userID), 10), cache.WSTicketTTL).Err(); err != nil {
		return s.respondError(c, models.NewInternalError(err))
	}

	return models.RespondOK(c, fiber.StatusOK, WSTicket{
		Ticket:    ticket,
		ExpiresIn: int(cache.WSTicketTTL / time.Second),
	}, "")
}

// WebsocketHandler upgrades to a notification socket for the authenticated member.
// The ticket check happens in AuthRequired; the user id arrives in locals.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(uint)
		if !ok || s.hub == nil {
			_ = conn.Close()
			return
		}

		session, err := s.hub.Attach(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket attach failed",
				slog.Uint64("user_id", uint64(uid)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			_ = conn.Close()
			return
		}
		session.Serve()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !s.featureFlags.Enabled(featureflags.RealtimeNotifications, currentUserID(c)) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewInternalError(errRealtimeUnavailable))
		}
		return upgrade(c)
	}
}
