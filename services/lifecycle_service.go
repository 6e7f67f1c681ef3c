package services

import (
	"context"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

type ILifecycleService interface {
	Start(ctx context.Context, cmd chat.CreateSessionCommand) (chat.Session, chat.Message, error)
	ChangeStatus(ctx context.Context, cmd chat.ChangeStatusCommand) (chat.Session, chat.Message, error)
	Get(ctx context.Context, id uuid.UUID) (chat.Session, error)
	Stats(ctx context.Context) (chat.Stats, error)
}

// LifecycleService owns the session state machine.
type LifecycleService struct {
	sessions contract.ISessionRepository
	messages contract.IMessageRepository
	filter   contract.IContentFilter
	opts     Options
	log      *slog.Logger
	// noticeBackOff builds the retry policy of the system message insert.
	noticeBackOff func() backoff.BackOff
}

var _ ILifecycleService = (*LifecycleService)(nil)

// NewLifecycleService takes an optional content filter applied to the first
// customer message, nil disables moderation.
func NewLifecycleService(
	sessions contract.ISessionRepository,
	messages contract.IMessageRepository,
	filter contract.IContentFilter,
	opts Options,
	log *slog.Logger,
) *LifecycleService {
	opts = opts.withDefaults()
	return &LifecycleService{
		sessions: sessions,
		messages: messages,
		filter:   filter,
		opts:     opts,
		log:      log,
		noticeBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 50 * time.Millisecond
			policy.MaxInterval = 2 * time.Second
			policy.MaxElapsedTime = opts.OperationTimeout
			return policy
		},
	}
}

// Start opens an active session together with its first customer message.
func (s *LifecycleService) Start(ctx context.Context, cmd chat.CreateSessionCommand) (chat.Session, chat.Message, error) {
	if err := cmd.Validate(s.opts.MaxContentLength); err != nil {
		return chat.Session{}, chat.Message{}, err
	}
	now := s.opts.Clock()
	session := chat.Session{
		ID:           uuid.New(),
		Name:         cmd.Name,
		Email:        cmd.Email,
		UserID:       cmd.UserID,
		RestaurantID: cmd.RestaurantID,
		Topic:        cmd.Topic,
		Status:       chat.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	first := chat.Message{
		ID:        uuid.New(),
		SessionID: session.ID,
		UserID:    cmd.UserID,
		Sender:    chat.SenderCustomer,
		Content:   moderate(s.filter, cmd.FirstMessage),
		CreatedAt: now,
	}

	type created struct {
		session chat.Session
		first   chat.Message
	}
	res, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (created, error) {
		stored, msg, err := s.sessions.CreateSession(ctx, session, first)
		return created{session: stored, first: msg}, err
	})
	if err != nil {
		s.log.Warn("Chat session not created", "topic", cmd.Topic, "error", err)
		return chat.Session{}, chat.Message{}, err
	}
	s.log.Info("Chat session started", "session_id", res.session.ID, "topic", res.session.Topic, "origin", res.session.Origin())
	return res.session, res.first, nil
}

// ChangeStatus applies a transition then records its system message.
// The status write is final: when the notice insert fails it is retried
// with backoff under the same message ID, the status is never rolled back.
// The returned message is zero if the notice could not be stored in time.
func (s *LifecycleService) ChangeStatus(ctx context.Context, cmd chat.ChangeStatusCommand) (chat.Session, chat.Message, error) {
	if err := cmd.Validate(); err != nil {
		return chat.Session{}, chat.Message{}, err
	}
	now := s.opts.Clock()

	type changed struct {
		session    chat.Session
		transition chat.Transition
	}
	res, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (changed, error) {
		session, transition, err := s.sessions.UpdateStatus(ctx, cmd.SessionID, chat.StatusUpdate{
			To:               cmd.Status,
			ExpectedRevision: cmd.ExpectedRevision,
			At:               now,
		})
		return changed{session: session, transition: transition}, err
	})
	if err != nil {
		return chat.Session{}, chat.Message{}, err
	}
	s.log.Info("Chat session status changed", "session_id", cmd.SessionID,
		"from", res.transition.From, "to", res.transition.To, "actor", cmd.Actor, "revision", res.session.Revision)

	notice, err := s.recordNotice(ctx, chat.NewSystemMessage(cmd.SessionID, res.transition, now))
	if err != nil {
		s.log.Error("System message lost after status change", "session_id", cmd.SessionID,
			"to", res.transition.To, "error", err)
		return res.session, chat.Message{}, nil
	}
	return res.session, notice, nil
}

// recordNotice outlives the caller's cancellation: the transition is already
// committed and its notice must follow.
func (s *LifecycleService) recordNotice(ctx context.Context, notice chat.Message) (chat.Message, error) {
	ctx = context.WithoutCancel(ctx)
	var stored chat.Message
	attempt := 0
	op := func() error {
		attempt++
		var err error
		stored, err = call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (chat.Message, error) {
			msg, _, err := s.messages.AppendMessage(ctx, notice, false)
			return msg, err
		})
		switch {
		case err == nil:
			return nil
		case errors.IsRetryable(err):
			s.log.Warn("System message insert failed, retrying", "session_id", notice.SessionID, "attempt", attempt, "error", err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	err := backoff.Retry(op, backoff.WithContext(s.noticeBackOff(), ctx))
	return stored, err
}

func (s *LifecycleService) Get(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (chat.Session, error) {
		return s.sessions.GetSession(ctx, id)
	})
}

func (s *LifecycleService) Stats(ctx context.Context) (chat.Stats, error) {
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (chat.Stats, error) {
		return s.sessions.Stats(ctx)
	})
}

// moderate masks censored words, filter may be nil.
func moderate(filter contract.IContentFilter, content string) string {
	if filter == nil {
		return content
	}
	censored, _ := filter.Censor(content)
	return censored
}
