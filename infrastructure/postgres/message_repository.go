package postgres

import (
	"context"
	stderrors "errors"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

var _ contract.IMessageRepository = MessageRepository{}

func NewMessageRepository(db *gorm.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// AppendMessage moves last_message_at forward with a conditional UPDATE,
// guarded on status when requireActive, then inserts the row. Both happen in
// one transaction, so a rejected send leaves no trace.
func (r MessageRepository) AppendMessage(ctx context.Context, msg chat.Message, requireActive bool) (chat.Message, chat.Session, error) {
	var (
		stored  MessageModel
		session SessionModel
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", msg.ID).Take(&stored).Error
		switch {
		case err == nil:
			session, err = takeSession(tx, stored.SessionID)
			return err
		case !stderrors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		guard := tx.Model(&SessionModel{}).Where("id = ?", msg.SessionID)
		if requireActive {
			guard = guard.Where("status = ?", string(chat.StatusActive))
		}
		res := guard.Update("last_message_at",
			gorm.Expr("CASE WHEN last_message_at < ? THEN ? ELSE last_message_at END", msg.CreatedAt, msg.CreatedAt))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err = takeSession(tx, msg.SessionID); err != nil {
				return err
			}
			return errors.ErrSessionNotActive
		}

		stored = fromMessage(msg)
		if err = tx.Create(&stored).Error; err != nil {
			return err
		}
		session, err = takeSession(tx, msg.SessionID)
		return err
	})
	if err != nil {
		return chat.Message{}, chat.Session{}, classify(err)
	}
	return stored.toDomain(), session.toDomain(), nil
}

func (r MessageRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error) {
	db := r.db.WithContext(ctx)
	if _, err := takeSession(db, sessionID); err != nil {
		return nil, classify(err)
	}
	var models []MessageModel
	err := db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, classify(err)
	}
	return lo.Map(models, func(m MessageModel, _ int) chat.Message { return m.toDomain() }), nil
}

func (r MessageRepository) GetMessage(ctx context.Context, sessionID, id uuid.UUID) (chat.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).Where("id = ? AND session_id = ?", id, sessionID).Take(&model).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return chat.Message{}, classify(err)
	}
	return model.toDomain(), nil
}

// MarkRead is a single UPDATE: rows already read are not matched again.
func (r MessageRepository) MarkRead(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error) {
	db := r.db.WithContext(ctx)
	if _, err := takeSession(db, sessionID); err != nil {
		return 0, classify(err)
	}
	if len(senders) == 0 {
		return 0, nil
	}
	res := db.Model(&MessageModel{}).
		Where("session_id = ? AND is_read = ? AND sender_type IN ?", sessionID, false, senderNames(senders)).
		Update("is_read", true)
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r MessageRepository) CountUnread(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error) {
	db := r.db.WithContext(ctx)
	if _, err := takeSession(db, sessionID); err != nil {
		return 0, classify(err)
	}
	if len(senders) == 0 {
		return 0, nil
	}
	var count int64
	err := db.Model(&MessageModel{}).
		Where("session_id = ? AND is_read = ? AND sender_type IN ?", sessionID, false, senderNames(senders)).
		Count(&count).Error
	if err != nil {
		return 0, classify(err)
	}
	return int(count), nil
}

func senderNames(senders []chat.SenderKind) []string {
	return lo.Map(senders, func(k chat.SenderKind, _ int) string { return string(k) })
}
