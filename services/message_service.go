package services

import (
	"context"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/google/uuid"
)

type IMessageService interface {
	Send(ctx context.Context, cmd chat.SendMessageCommand) (chat.Message, error)
	List(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error)
	MarkRead(ctx context.Context, sessionID uuid.UUID, reader chat.SenderKind) (int, error)
	UnreadCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	UnreadFor(ctx context.Context, sessionID uuid.UUID, reader chat.SenderKind) (int, error)
}

// MessageService routes messages into sessions.
type MessageService struct {
	messages contract.IMessageRepository
	filter   contract.IContentFilter
	opts     Options
	log      *slog.Logger
}

var _ IMessageService = (*MessageService)(nil)

func NewMessageService(messages contract.IMessageRepository, filter contract.IContentFilter, opts Options, log *slog.Logger) *MessageService {
	return &MessageService{messages: messages, filter: filter, opts: opts.withDefaults(), log: log}
}

// Send stamps the message with server time. Customer messages are moderated
// and only accepted while the session is active, checked by the store in
// the same write. Staff may write into any session.
func (s *MessageService) Send(ctx context.Context, cmd chat.SendMessageCommand) (chat.Message, error) {
	if err := cmd.Validate(s.opts.MaxContentLength); err != nil {
		return chat.Message{}, err
	}
	customer := cmd.Sender == chat.SenderCustomer
	content := cmd.Content
	if customer {
		content = moderate(s.filter, content)
	}
	msg := chat.Message{
		ID:        uuid.New(),
		SessionID: cmd.SessionID,
		UserID:    cmd.UserID,
		Sender:    cmd.Sender,
		Content:   content,
		CreatedAt: s.opts.Clock(),
	}
	stored, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (chat.Message, error) {
		stored, _, err := s.messages.AppendMessage(ctx, msg, customer)
		return stored, err
	})
	if err != nil {
		s.log.Debug("Message rejected", "session_id", cmd.SessionID, "sender", cmd.Sender, "error", err)
		return chat.Message{}, err
	}
	return stored, nil
}

// List returns the whole transcript, oldest first.
func (s *MessageService) List(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error) {
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) ([]chat.Message, error) {
		return s.messages.ListMessages(ctx, sessionID)
	})
}

// MarkRead flips the other side's messages for reader and returns how many
// changed. Calling it again returns 0.
func (s *MessageService) MarkRead(ctx context.Context, sessionID uuid.UUID, reader chat.SenderKind) (int, error) {
	senders, err := readable(reader)
	if err != nil {
		return 0, err
	}
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (int, error) {
		return s.messages.MarkRead(ctx, sessionID, senders)
	})
}

// UnreadCount is the staff badge: customer messages not read yet.
func (s *MessageService) UnreadCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return s.UnreadFor(ctx, sessionID, chat.SenderOperator)
}

// UnreadFor counts what reader has not acknowledged yet.
func (s *MessageService) UnreadFor(ctx context.Context, sessionID uuid.UUID, reader chat.SenderKind) (int, error) {
	senders, err := readable(reader)
	if err != nil {
		return 0, err
	}
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (int, error) {
		return s.messages.CountUnread(ctx, sessionID, senders)
	})
}

func readable(reader chat.SenderKind) ([]chat.SenderKind, error) {
	senders := reader.ReadableBy()
	if len(senders) == 0 {
		return nil, errors.ErrInvalidSender
	}
	return senders, nil
}
