package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"support-chat/contract"
	"support-chat/domain/event"
	"support-chat/errors"

	"github.com/gorilla/websocket"
)

// Subscription reads one feed topic over WebSocket. Events is closed when the
// connection ends, whatever the reason.
type Subscription struct {
	conn   *websocket.Conn
	events chan event.ChangeEvent
	once   sync.Once
	done   chan struct{}
}

var _ contract.Subscription = (*Subscription)(nil)

// Subscribe opens the feed on topic. Failures wrap ErrSubscriptionFailed,
// callers are expected to fall back on polling.
func (c *Client) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if err := event.ValidateTopic(topic); err != nil {
		return nil, err
	}
	target := *c.baseURL
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = "/ws"
	query := url.Values{"topic": {topic}}
	if c.token != "" {
		query.Set("token", c.token)
	}
	target.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: server answered %d: %w", errors.ErrSubscriptionFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err)
	}
	sub := &Subscription{
		conn:   conn,
		events: make(chan event.ChangeEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.read()
	return sub, nil
}

func (s *Subscription) read() {
	defer close(s.events)
	for {
		var e event.ChangeEvent
		if err := s.conn.ReadJSON(&e); err != nil {
			return
		}
		select {
		case s.events <- e:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) Events() <-chan event.ChangeEvent {
	return s.events
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
}
