package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/projection"

	"github.com/google/uuid"
)

// Widget is the customer side of one session. A single goroutine, Run,
// reconciles the view from the session feed and a poll ticker.
type Widget struct {
	client    *Client
	sessionID uuid.UUID
	view      *projection.SessionView
	poll      time.Duration
	log       *slog.Logger
	onChange  func(*projection.SessionView)
}

func NewWidget(client *Client, sessionID uuid.UUID, poll time.Duration, log *slog.Logger) *Widget {
	return &Widget{
		client:    client,
		sessionID: sessionID,
		view:      projection.NewSessionView(),
		poll:      poll,
		log:       log,
		onChange:  func(*projection.SessionView) {},
	}
}

// OnChange registers the redraw callback, called from the Run goroutine.
func (w *Widget) OnChange(fn func(*projection.SessionView)) *Widget {
	w.onChange = fn
	return w
}

func (w *Widget) View() *projection.SessionView {
	return w.view
}

// Send posts a customer message and shows it without waiting for the feed.
func (w *Widget) Send(ctx context.Context, content string) (chat.Message, error) {
	msg, err := w.client.Send(ctx, w.sessionID, content)
	if err != nil {
		return chat.Message{}, err
	}
	w.view.ApplyMessage(msg)
	return msg, nil
}

// Open acknowledges the staff replies. Badge failures are only logged.
func (w *Widget) Open(ctx context.Context) {
	if _, err := w.client.MarkRead(ctx, w.sessionID); err != nil {
		w.log.Debug("Mark read failed", "session_id", w.sessionID, "error", err)
		return
	}
	w.view.MarkRead(chat.SenderCustomer)
}

// Run subscribes before the first load so no write falls in between.
func (w *Widget) Run(ctx context.Context) error {
	topic := event.SessionTopic(w.sessionID)
	sub := w.subscribe(ctx, topic)
	defer func() { closeSubscription(sub) }()

	if err := w.reload(ctx); err != nil {
		return fmt.Errorf("failed to load session %s: %w", w.sessionID, err)
	}
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events(sub):
			if !ok {
				w.log.Warn("Session feed lost, polling only", "session_id", w.sessionID)
				sub = nil
				continue
			}
			w.apply(ctx, e)
		case <-ticker.C:
			if err := w.reload(ctx); err != nil {
				w.log.Debug("Poll failed", "session_id", w.sessionID, "error", err)
			}
			if sub == nil {
				sub = w.subscribe(ctx, topic)
			}
		}
	}
}

func (w *Widget) subscribe(ctx context.Context, topic string) *Subscription {
	sub, err := w.client.Subscribe(ctx, topic)
	if err != nil {
		w.log.Warn("Subscription failed, polling only", "topic", topic, "error", err)
		return nil
	}
	return sub
}

func (w *Widget) apply(ctx context.Context, e event.ChangeEvent) {
	switch e.Entity {
	case event.EntitySession:
		session, err := w.client.GetSession(ctx, w.sessionID)
		if err != nil {
			w.log.Debug("Session refresh failed", "session_id", w.sessionID, "error", err)
			return
		}
		w.view.ApplySession(session)
	case event.EntityMessage:
		messages, err := w.client.ListMessages(ctx, w.sessionID)
		if err != nil {
			w.log.Debug("Transcript refresh failed", "session_id", w.sessionID, "error", err)
			return
		}
		for _, m := range messages {
			w.view.ApplyMessage(m)
		}
	}
	w.onChange(w.view)
}

func (w *Widget) reload(ctx context.Context) error {
	session, err := w.client.GetSession(ctx, w.sessionID)
	if err != nil {
		return err
	}
	messages, err := w.client.ListMessages(ctx, w.sessionID)
	if err != nil {
		return err
	}
	w.view.Load(session, messages)
	w.onChange(w.view)
	return nil
}

// events is nil, hence never ready, once the loop runs poll-only.
func events(sub *Subscription) <-chan event.ChangeEvent {
	if sub == nil {
		return nil
	}
	return sub.Events()
}

func closeSubscription(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}
