package runtime

import (
	"context"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/domain/event"

	"github.com/google/uuid"
)

// ObservedSessions publishes a change event after every successful session write.
// A publish failure is logged and never fails the write: the row is already
// committed and consumers fall back on polling.
type ObservedSessions struct {
	contract.ISessionRepository
	publisher contract.IPublisher
	log       *slog.Logger
}

func NewObservedSessions(inner contract.ISessionRepository, publisher contract.IPublisher, log *slog.Logger) ObservedSessions {
	return ObservedSessions{ISessionRepository: inner, publisher: publisher, log: log}
}

func (o ObservedSessions) CreateSession(ctx context.Context, session chat.Session, first chat.Message) (chat.Session, chat.Message, error) {
	created, msg, err := o.ISessionRepository.CreateSession(ctx, session, first)
	if err != nil {
		return created, msg, err
	}
	publish(ctx, o.publisher, o.log,
		event.SessionInserted(created.ID, created.CreatedAt),
		event.MessageInserted(msg.ID, created.ID, msg.CreatedAt))
	return created, msg, nil
}

func (o ObservedSessions) UpdateStatus(ctx context.Context, id uuid.UUID, upd chat.StatusUpdate) (chat.Session, chat.Transition, error) {
	session, transition, err := o.ISessionRepository.UpdateStatus(ctx, id, upd)
	if err != nil {
		return session, transition, err
	}
	publish(ctx, o.publisher, o.log, event.SessionUpdated(session.ID, session.UpdatedAt))
	return session, transition, nil
}

// ObservedMessages is the message side of ObservedSessions.
type ObservedMessages struct {
	contract.IMessageRepository
	publisher contract.IPublisher
	log       *slog.Logger
}

func NewObservedMessages(inner contract.IMessageRepository, publisher contract.IPublisher, log *slog.Logger) ObservedMessages {
	return ObservedMessages{IMessageRepository: inner, publisher: publisher, log: log}
}

// AppendMessage also touches the session row (last_message_at), hence two events.
func (o ObservedMessages) AppendMessage(ctx context.Context, msg chat.Message, requireActive bool) (chat.Message, chat.Session, error) {
	stored, session, err := o.IMessageRepository.AppendMessage(ctx, msg, requireActive)
	if err != nil {
		return stored, session, err
	}
	publish(ctx, o.publisher, o.log,
		event.MessageInserted(stored.ID, stored.SessionID, stored.CreatedAt),
		event.SessionUpdated(session.ID, stored.CreatedAt))
	return stored, session, nil
}

func (o ObservedMessages) MarkRead(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error) {
	n, err := o.IMessageRepository.MarkRead(ctx, sessionID, senders)
	if err != nil || n == 0 {
		return n, err
	}
	publish(ctx, o.publisher, o.log, event.MessagesUpdated(sessionID, nowUTC()))
	return n, nil
}

func publish(ctx context.Context, publisher contract.IPublisher, log *slog.Logger, events ...event.ChangeEvent) {
	for _, e := range events {
		if err := publisher.Publish(ctx, e); err != nil {
			log.Warn("Change event not published", "entity", e.Entity, "kind", e.Kind,
				"session_id", e.SessionID, "error", err)
		}
	}
}

var nowUTC = func() time.Time { return time.Now().UTC() }
