package api

import (
	"net/http"
	"time"

	"support-chat/auth"
	"support-chat/domain/event"
	"support-chat/errors"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxControlSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the storefront and the console are served from other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feed streams change events of one topic as JSON text frames.
// The subscription is closed when the connection ends, whichever side ends it.
// "sessions" is reserved to staff, a session topic is open to whoever knows the id.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if err := event.ValidateTopic(topic); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if topic == event.TopicSessions && !auth.ActorFrom(r.Context()).IsStaff() {
		writeError(w, r, s.log, errors.ErrForbiddenActor)
		return
	}
	sub, err := s.deps.Feed.Subscribe(topic)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "topic", topic, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	s.log.Debug("Feed subscriber connected", "topic", topic)

	// the read side only handles control frames and notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxControlSize)
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			s.log.Debug("Feed subscriber left", "topic", topic)
			return
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Debug("Feed write failed", "topic", topic, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
