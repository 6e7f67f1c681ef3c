package services

import (
	"context"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"

	"github.com/samber/lo"
)

type IActivityService interface {
	Board(ctx context.Context, filter chat.SessionFilter) ([]chat.Activity, error)
}

// ActivityService recomputes the admin board from scratch on every call.
type ActivityService struct {
	sessions contract.ISessionRepository
	messages contract.IMessageRepository
	opts     Options
	log      *slog.Logger
}

var _ IActivityService = (*ActivityService)(nil)

func NewActivityService(sessions contract.ISessionRepository, messages contract.IMessageRepository, opts Options, log *slog.Logger) *ActivityService {
	return &ActivityService{sessions: sessions, messages: messages, opts: opts.withDefaults(), log: log}
}

// Board lists sessions, most recently active first, each with its unread
// customer message count.
func (s *ActivityService) Board(ctx context.Context, filter chat.SessionFilter) ([]chat.Activity, error) {
	return call(ctx, s.opts.OperationTimeout, func(ctx context.Context) ([]chat.Activity, error) {
		sessions, err := s.sessions.ListSessions(ctx, filter)
		if err != nil {
			return nil, err
		}
		board := make([]chat.Activity, 0, len(sessions))
		for _, session := range sessions {
			unread, err := s.messages.CountUnread(ctx, session.ID, chat.SenderOperator.ReadableBy())
			if err != nil {
				return nil, err
			}
			board = append(board, chat.Activity{Session: session, Unread: unread})
		}
		s.log.Debug("Activity board computed", "sessions", len(board),
			"unread", lo.SumBy(board, func(a chat.Activity) int { return a.Unread }))
		return board, nil
	})
}
