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
	"github.com/samber/lo"
)

// defaultMarkReadBatch bounds the flips committed per transaction.
const defaultMarkReadBatch = 500

type MessageRepository struct {
	db            *badger.DB
	seq           *Sequencer
	log           *slog.Logger
	markReadBatch int
}

var _ contract.IMessageRepository = MessageRepository{}

func NewMessageRepository(db *badger.DB, seq *Sequencer, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, seq: seq, log: log, markReadBatch: defaultMarkReadBatch}
}

// AppendMessage persists a message under "msg:{session}:{nanos}:{seq}".
// The padded key gives the transcript order for free on a prefix scan.
// A message id already stored is returned as is, so replays never duplicate.
// With requireActive the session must be active in the same transaction,
// otherwise nothing is written.
func (r MessageRepository) AppendMessage(ctx context.Context, msg chat.Message, requireActive bool) (chat.Message, chat.Session, error) {
	if msg.Seq == 0 {
		seq, err := r.seq.Next()
		if err != nil {
			return chat.Message{}, chat.Session{}, err
		}
		msg.Seq = seq
	}

	var (
		stored  chat.Message
		session chat.Session
	)
	err := update(ctx, r.db, func(txn *badger.Txn) error {
		var err error
		session, err = getSession(txn, msg.SessionID)
		if err != nil {
			return err
		}
		existing, found, err := findMessage(txn, msg.ID)
		if err != nil {
			return err
		}
		if found {
			stored = existing
			return nil
		}
		if requireActive && session.Status != chat.StatusActive {
			return errors.ErrSessionNotActive
		}
		if err = putMessage(txn, msg); err != nil {
			return err
		}
		session.Touch(msg.CreatedAt)
		stored = msg
		return putSession(txn, session)
	})
	if err != nil {
		return chat.Message{}, chat.Session{}, err
	}
	return stored, session, nil
}

// ListMessages returns the whole transcript in (created_at, seq) order.
func (r MessageRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]chat.Message, error) {
	messages := make([]chat.Message, 0)
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		if _, err := getSession(txn, sessionID); err != nil {
			return err
		}
		return scanMessages(txn, sessionID, func(_ []byte, m chat.Message) error {
			messages = append(messages, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r MessageRepository) GetMessage(ctx context.Context, sessionID, id uuid.UUID) (chat.Message, error) {
	var msg chat.Message
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		found, ok, err := findMessage(txn, id)
		if err != nil {
			return err
		}
		if !ok || found.SessionID != sessionID {
			return errors.ErrMessageNotFound
		}
		msg = found
		return nil
	})
	return msg, err
}

// MarkRead flips is_read on unread messages written by one of senders.
// It returns how many were flipped, zero on a second call.
// Flips are committed in batches so a long transcript never exceeds the
// transaction limits; an interrupted call leaves a prefix read, and calling
// again finishes the rest.
func (r MessageRepository) MarkRead(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error) {
	var keys [][]byte
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		if _, err := getSession(txn, sessionID); err != nil {
			return err
		}
		return scanMessages(txn, sessionID, func(key []byte, m chat.Message) error {
			if !m.IsRead && lo.Contains(senders, m.Sender) {
				keys = append(keys, key)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	flipped := 0
	for len(keys) > 0 {
		batch := keys[:min(len(keys), r.markReadBatch)]
		done, n, err := r.flipRead(ctx, batch)
		if err != nil {
			return flipped, err
		}
		flipped += n
		keys = keys[done:]
	}
	if flipped > 0 {
		r.log.Debug("Messages marked read", "session_id", sessionID, "count", flipped)
	}
	return flipped, nil
}

// flipRead marks the messages under keys as read in one transaction. When the
// transaction fills up it commits what it holds and reports how many keys it
// got through, the caller resumes from there.
func (r MessageRepository) flipRead(ctx context.Context, keys [][]byte) (done, flipped int, err error) {
	err = update(ctx, r.db, func(txn *badger.Txn) error {
		done, flipped = 0, 0
		for _, key := range keys {
			msg, err := getMessageAt(txn, key)
			if err != nil {
				return err
			}
			if !msg.IsRead {
				msg.IsRead = true
				b, err := encodeMessage(msg)
				if err != nil {
					return err
				}
				err = txn.Set(key, b)
				if stderrors.Is(err, badger.ErrTxnTooBig) && done > 0 {
					return nil
				}
				if err != nil {
					return err
				}
				flipped++
			}
			done++
		}
		return nil
	})
	return done, flipped, err
}

func getMessageAt(txn *badger.Txn, key []byte) (chat.Message, error) {
	item, err := txn.Get(key)
	if err != nil {
		return chat.Message{}, err
	}
	var msg chat.Message
	err = item.Value(func(val []byte) error {
		msg, err = decodeMessage(val)
		return err
	})
	return msg, err
}

// CountUnread is computed on every call, nothing is cached.
func (r MessageRepository) CountUnread(ctx context.Context, sessionID uuid.UUID, senders []chat.SenderKind) (int, error) {
	var count int
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		if _, err := getSession(txn, sessionID); err != nil {
			return err
		}
		return scanMessages(txn, sessionID, func(_ []byte, m chat.Message) error {
			if !m.IsRead && lo.Contains(senders, m.Sender) {
				count++
			}
			return nil
		})
	})
	return count, err
}

func scanMessages(txn *badger.Txn, sessionID uuid.UUID, fn func(key []byte, m chat.Message) error) error {
	prefix := sessionMessagesPrefix(sessionID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			m, err := decodeMessage(val)
			if err != nil {
				return err
			}
			return fn(key, m)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
