package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"bookswap/internal/middleware"
	"bookswap/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	hubName = "notifications"

	maxSessionsPerUser = 12
	maxSessions        = 10000
)

// Errors returned by Attach.
var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub tracks the open sessions of every member and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint]map[*Session]struct{}
	total    int
	log      *observability.WSLogger
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[uint]map[*Session]struct{}),
		log:      observability.NewWSLogger(hubName),
	}
}

// Name identifies the hub in logs and metrics.
func (h *Hub) Name() string { return hubName }

// Attach registers conn for userID.
func (h *Hub) Attach(userID uint, conn *websocket.Conn) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxSessions {
		return nil, ErrServerFull
	}
	set := h.sessions[userID]
	if len(set) >= maxSessionsPerUser {
		return nil, ErrUserFull
	}
	if set == nil {
		set = make(map[*Session]struct{})
		h.sessions[userID] = set
	}

	s := newSession(h, conn, userID)
	set[s] = struct{}{}
	h.total++
	observability.WebSocketConnectionsTotal.Inc()
	middleware.ActiveWebSockets.Inc()
	h.log.LogConnect(context.Background(), userID)
	return s, nil
}

// Detach removes s and stops its writer. Safe to call more than once.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	set := h.sessions[s.userID]
	_, present := set[s]
	if present {
		delete(set, s)
		h.total--
		if len(set) == 0 {
			delete(h.sessions, s.userID)
		}
	}
	h.mu.Unlock()

	s.close()
	if present {
		observability.WebSocketConnectionsTotal.Dec()
		middleware.ActiveWebSockets.Dec()
		h.log.LogDisconnect(context.Background(), s.userID, "closed")
	}
}

// IsOnline reports whether userID has at least one open session.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// ConnectionCount is the number of open sessions across all members.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// SendToUser queues frame on every session of userID and returns how many accepted it.
func (h *Hub) SendToUser(userID uint, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.sessions[userID] {
		if s.enqueue(frame) {
			n++
		}
	}
	return n
}

// SendToAll queues frame on every open session.
func (h *Hub) SendToAll(frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.sessions {
		for s := range set {
			if s.enqueue(frame) {
				n++
			}
		}
	}
	return n
}

// StartWiring subscribes to the notifier's channels and routes each
// published event to the sessions it addresses.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		frame := []byte(payload)
		observability.WebSocketEventsTotal.WithLabelValues(eventType(frame)).Inc()

		if channel == broadcastChannel {
			h.SendToAll(frame)
			return
		}
		userID, ok := userFromChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid notification channel", slog.String("channel", channel))
			return
		}
		h.SendToUser(userID, frame)
	})
}

func userFromChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func eventType(frame []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(frame, &head) != nil || head.Type == "" {
		return "unknown"
	}
	return head.Type
}

// Shutdown detaches every session; their writers send a going-away close frame.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		h.Detach(s)
	}
	return nil
}
