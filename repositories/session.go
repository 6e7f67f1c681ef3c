package repositories

import (
	"context"
	stderrors "errors"
	"log/slog"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type SessionRepository struct {
	db  *badger.DB
	seq *Sequencer
	log *slog.Logger
}

var _ contract.ISessionRepository = SessionRepository{}

func NewSessionRepository(db *badger.DB, seq *Sequencer, log *slog.Logger) SessionRepository {
	return SessionRepository{db: db, seq: seq, log: log}
}

// CreateSession stores the session and its first message in one transaction.
// last_message_at starts at the first message's timestamp.
func (r SessionRepository) CreateSession(ctx context.Context, session chat.Session, first chat.Message) (chat.Session, chat.Message, error) {
	if first.Seq == 0 {
		seq, err := r.seq.Next()
		if err != nil {
			return chat.Session{}, chat.Message{}, err
		}
		first.Seq = seq
	}
	first.SessionID = session.ID
	session.Touch(first.CreatedAt)

	err := update(ctx, r.db, func(txn *badger.Txn) error {
		_, err := txn.Get(sessionKey(session.ID))
		switch {
		case err == nil:
			return errors.ErrSessionExists
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err = putSession(txn, session); err != nil {
			return err
		}
		return putMessage(txn, first)
	})
	if err != nil {
		return chat.Session{}, chat.Message{}, err
	}
	r.log.Debug("Chat session created", "session_id", session.ID, "origin", session.Origin())
	return session, first, nil
}

func (r SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (chat.Session, error) {
	var session chat.Session
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		var err error
		session, err = getSession(txn, id)
		return err
	})
	return session, err
}

// ListSessions scans every session, most recently active first.
func (r SessionRepository) ListSessions(ctx context.Context, filter chat.SessionFilter) ([]chat.Session, error) {
	sessions := make([]chat.Session, 0)
	err := r.scan(ctx, func(s chat.Session) {
		if filter.Match(s) {
			sessions = append(sessions, s)
		}
	})
	if err != nil {
		return nil, err
	}
	chat.SortSessions(sessions)
	return sessions, nil
}

// UpdateStatus reads the current status, validates the edge and writes the
// new status, updated_at and revision in the same transaction.
func (r SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, upd chat.StatusUpdate) (chat.Session, chat.Transition, error) {
	var (
		session    chat.Session
		transition chat.Transition
	)
	err := update(ctx, r.db, func(txn *badger.Txn) error {
		current, err := getSession(txn, id)
		if err != nil {
			return err
		}
		if upd.ExpectedRevision != nil && *upd.ExpectedRevision != current.Revision {
			return errors.ErrStaleSession
		}
		transition, err = chat.NextTransition(current.Status, upd.To)
		if err != nil {
			return err
		}
		current.Status = upd.To
		current.UpdatedAt = upd.At
		current.Revision++
		session = current
		return putSession(txn, current)
	})
	if err != nil {
		return chat.Session{}, chat.Transition{}, err
	}
	return session, transition, nil
}

func (r SessionRepository) Stats(ctx context.Context) (chat.Stats, error) {
	var stats chat.Stats
	err := r.scan(ctx, func(s chat.Session) {
		stats.Add(s.Status)
	})
	return stats, err
}

func (r SessionRepository) scan(ctx context.Context, fn func(chat.Session)) error {
	return view(ctx, r.db, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(sessionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				s, err := decodeSession(val)
				if err != nil {
					return err
				}
				fn(s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
