package repositories

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

// LeaseRepository keeps presence leases in badger.
// Entries carry a TTL of lease length plus retention so that last_seen_at
// stays readable for a while after the user went offline.
type LeaseRepository struct {
	db        *badger.DB
	retention time.Duration
	log       *slog.Logger
}

var _ contract.ILeaseRepository = LeaseRepository{}

func NewLeaseRepository(db *badger.DB, retention time.Duration, log *slog.Logger) LeaseRepository {
	return LeaseRepository{db: db, retention: retention, log: log}
}

func (r LeaseRepository) PutLease(ctx context.Context, lease presence.Lease) error {
	b, err := encodeLease(lease)
	if err != nil {
		return err
	}
	ttl := lease.ExpiresAt.Sub(lease.LastSeenAt) + r.retention
	return update(ctx, r.db, func(txn *badger.Txn) error {
		entry := badger.NewEntry(leaseKey(lease.UserID), b)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (r LeaseRepository) GetLease(ctx context.Context, userID string) (presence.Lease, error) {
	var lease presence.Lease
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		item, err := txn.Get(leaseKey(userID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrLeaseNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			lease, err = decodeLease(val)
			return err
		})
	})
	return lease, err
}

// ListLeases returns leases still valid at activeAt, most recent first.
// limit <= 0 means no limit.
func (r LeaseRepository) ListLeases(ctx context.Context, activeAt time.Time, limit int) ([]presence.Lease, error) {
	leases := make([]presence.Lease, 0)
	err := view(ctx, r.db, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(leasePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				lease, err := decodeLease(val)
				if err != nil {
					return err
				}
				leases = append(leases, lease)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return presence.Roster(leases, activeAt, limit), nil
}
