package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	session:{uuid}                          -> session record
//	msg:{session}:{nanos 19}:{seq 20}       -> message record, chronological
//	msgid:{uuid}                            -> message key (idempotence, lookups)
//	lease:{user}                            -> presence lease, with TTL
//	seq:messages                            -> badger sequence
const (
	sessionPrefix  = "session:"
	messagePrefix  = "msg:"
	msgIndexPrefix = "msgid:"
	leasePrefix    = "lease:"
	sequenceKey    = "seq:messages"

	sequenceBandwidth  = 100
	maxConflictRetries = 10
)

func sessionKey(id uuid.UUID) []byte {
	return []byte(sessionPrefix + id.String())
}

func sessionMessagesPrefix(sessionID uuid.UUID) []byte {
	return []byte(messagePrefix + sessionID.String() + ":")
}

// messageKey is padded so that lexicographical order is (created_at, seq).
func messageKey(sessionID uuid.UUID, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%020d", messagePrefix, sessionID, toNanos(at), seq))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte(msgIndexPrefix + id.String())
}

func leaseKey(userID string) []byte {
	return []byte(leasePrefix + userID)
}

// Sequencer hands out strictly increasing message numbers.
type Sequencer struct {
	seq *badger.Sequence
}

func NewSequencer(db *badger.DB) (*Sequencer, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &Sequencer{seq: seq}, nil
}

// Next never returns 0, which marks an unassigned seq.
func (s *Sequencer) Next() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (s *Sequencer) Release() error {
	return s.seq.Release()
}

// update runs fn in a read-write transaction and retries it on conflict.
// Badger transactions are optimistic, two concurrent sends into one session
// both touch the session record and one of them has to replay.
func update(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Classify(err)
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond

	op := func() error {
		err := db.Update(fn)
		if err != nil && !stderrors.Is(err, badger.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxConflictRetries), ctx))
	return errors.Classify(err)
}

func view(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Classify(err)
	}
	return errors.Classify(db.View(fn))
}

func getSession(txn *badger.Txn, id uuid.UUID) (chat.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Session{}, errors.ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, err
	}
	var session chat.Session
	err = item.Value(func(val []byte) error {
		session, err = decodeSession(val)
		return err
	})
	return session, err
}

func putSession(txn *badger.Txn, s chat.Session) error {
	b, err := encodeSession(s)
	if err != nil {
		return err
	}
	return txn.Set(sessionKey(s.ID), b)
}

// putMessage writes the record and its id index.
func putMessage(txn *badger.Txn, m chat.Message) error {
	b, err := encodeMessage(m)
	if err != nil {
		return err
	}
	key := messageKey(m.SessionID, m.CreatedAt, m.Seq)
	if err = txn.Set(key, b); err != nil {
		return err
	}
	return txn.Set(messageIndexKey(m.ID), key)
}

// findMessage follows the id index. ok is false when the id is unknown.
func findMessage(txn *badger.Txn, id uuid.UUID) (chat.Message, bool, error) {
	idx, err := txn.Get(messageIndexKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, err
	}
	key, err := idx.ValueCopy(nil)
	if err != nil {
		return chat.Message{}, false, err
	}
	item, err := txn.Get(key)
	if err != nil {
		return chat.Message{}, false, err
	}
	var msg chat.Message
	err = item.Value(func(val []byte) error {
		msg, err = decodeMessage(val)
		return err
	})
	return msg, err == nil, err
}
