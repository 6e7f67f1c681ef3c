package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const maxStatusRetries = 3

// errLostRace is internal: the row changed between read and conditional write.
var errLostRace = stderrors.New("session row changed concurrently")

type SessionRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

var _ contract.ISessionRepository = SessionRepository{}

func NewSessionRepository(db *gorm.DB, log *slog.Logger) SessionRepository {
	return SessionRepository{db: db, log: log}
}

func (r SessionRepository) CreateSession(ctx context.Context, session chat.Session, first chat.Message) (chat.Session, chat.Message, error) {
	first.SessionID = session.ID
	session.Touch(first.CreatedAt)
	sessionModel := fromSession(session)
	messageModel := fromMessage(first)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SessionModel{}).Where("id = ?", session.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.ErrSessionExists
		}
		if err := tx.Create(&sessionModel).Error; err != nil {
			return err
		}
		return tx.Create(&messageModel).Error
	})
	if err != nil {
		return chat.Session{}, chat.Message{}, classify(err)
	}
	return sessionModel.toDomain(), messageModel.toDomain(), nil
}

func (r SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	model, err := takeSession(r.db.WithContext(ctx), id)
	if err != nil {
		return chat.Session{}, classify(err)
	}
	return model.toDomain(), nil
}

func (r SessionRepository) ListSessions(ctx context.Context, filter chat.SessionFilter) ([]chat.Session, error) {
	query := r.db.WithContext(ctx).Model(&SessionModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	var models []SessionModel
	if err := query.Order("last_message_at DESC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	sessions := lo.Map(models, func(m SessionModel, _ int) chat.Session { return m.toDomain() })
	// id ordering differs between uuid and text columns
	chat.SortSessions(sessions)
	return sessions, nil
}

// UpdateStatus writes with a conditional UPDATE on the revision read in the
// same transaction. Without ExpectedRevision a lost race is replayed, so the
// last writer wins with a transition validated against the fresh status.
func (r SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, upd chat.StatusUpdate) (chat.Session, chat.Transition, error) {
	var (
		session    chat.Session
		transition chat.Transition
	)
	op := func() error {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := takeSession(tx, id)
			if err != nil {
				return err
			}
			if upd.ExpectedRevision != nil && *upd.ExpectedRevision != current.Revision {
				return errors.ErrStaleSession
			}
			transition, err = chat.NextTransition(chat.Status(current.Status), upd.To)
			if err != nil {
				return err
			}
			res := tx.Model(&SessionModel{}).
				Where("id = ? AND revision = ?", id, current.Revision).
				Updates(map[string]any{
					"status":     string(upd.To),
					"updated_at": upd.At,
					"revision":   gorm.Expr("revision + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errLostRace
			}
			current.Status = string(upd.To)
			current.UpdatedAt = upd.At
			current.Revision++
			session = current.toDomain()
			return nil
		})
		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, errLostRace) && upd.ExpectedRevision != nil:
			return backoff.Permanent(errors.ErrStaleSession)
		case stderrors.Is(err, errLostRace):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), maxStatusRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if stderrors.Is(err, errLostRace) {
			err = errors.ErrStaleSession
		}
		return chat.Session{}, chat.Transition{}, classify(err)
	}
	return session, transition, nil
}

func (r SessionRepository) Stats(ctx context.Context) (chat.Stats, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := r.db.WithContext(ctx).Model(&SessionModel{}).
		Select("status, count(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return chat.Stats{}, classify(err)
	}
	var stats chat.Stats
	for _, row := range rows {
		stats.AddCount(chat.Status(row.Status), row.N)
	}
	return stats, nil
}

func takeSession(db *gorm.DB, id uuid.UUID) (SessionModel, error) {
	var model SessionModel
	err := db.Where("id = ?", id).Take(&model).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return SessionModel{}, errors.ErrSessionNotFound
	}
	return model, err
}

// classify keeps domain errors, maps context failures to ErrTimeout and
// constraint violations to ErrConstraint. Anything else from the driver is
// treated as the backend being unavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrSessionNotFound),
		stderrors.Is(err, errors.ErrSessionExists),
		stderrors.Is(err, errors.ErrMessageNotFound),
		stderrors.Is(err, errors.ErrSessionNotActive),
		stderrors.Is(err, errors.ErrInvalidTransition),
		stderrors.Is(err, errors.ErrStaleSession),
		stderrors.Is(err, errors.ErrLeaseNotFound):
		return err
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.Classify(err)
	case stderrors.Is(err, gorm.ErrDuplicatedKey), stderrors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %w", errors.ErrConstraint, err)
	default:
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
}
