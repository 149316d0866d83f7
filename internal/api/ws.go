package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Daemon binds to loopback; the browser client is served from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// handleWebSocket streams bus events to the browser. Authentication rides on
// a token query parameter since browsers cannot set headers on websocket
// upgrades. A slow client that falls behind the buffer is disconnected.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	s.logger.Info("websocket client connected", zap.String("user_id", session.UserID))

	// Reader only notices closes; the client never sends application data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt := <-events:
			msg := wsEvent{
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp.UnixMilli(),
				Payload:   evt.Payload,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.logger.Info("websocket client disconnected", zap.String("user_id", session.UserID))
			return
		case <-r.Context().Done():
			return
		}
	}
}
