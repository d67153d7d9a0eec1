package notifications

import (
	"log/slog"
	"sync"
	"time"

	"bookswap/internal/middleware"
	"bookswap/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Members only send control frames; anything larger closes the socket.
	maxInboundFrame = 4096

	sessionBuffer = 64
)

var resyncFrame = []byte(`{"type":"resync","payload":{"reason":"buffer_full"}}`)

// Session is one member's websocket connection registered with a Hub.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, userID uint) *Session {
	return &Session{
		hub:    hub,
		conn:   conn,
		userID: userID,
		out:    make(chan []byte, sessionBuffer),
		done:   make(chan struct{}),
	}
}

// UserID is the member the session belongs to.
func (s *Session) UserID() uint { return s.userID }

// Serve pumps frames until the peer goes away, then detaches from the hub.
func (s *Session) Serve() {
	go s.writeLoop()
	s.readLoop()
	s.hub.Detach(s)
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(maxInboundFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Warn("websocket read failed",
					slog.Uint64("user_id", uint64(s.userID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// enqueue never blocks. A slow reader loses the frame and gets a resync
// hint so the client re-fetches over REST.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		observability.WebSocketBackpressureDrops.WithLabelValues(hubName, "closed").Inc()
		return false
	default:
	}

	select {
	case s.out <- frame:
		return true
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues(hubName, "full").Inc()
	middleware.Logger.Warn("websocket buffer full, dropped frame",
		slog.Uint64("user_id", uint64(s.userID)))
	select {
	case s.out <- resyncFrame:
	default:
	}
	return false
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
