package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"support-chat/contract"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/redis/go-redis/v9"
)

const (
	leaseKeyPrefix = "presence:"
	leaseIndexKey  = "presence:expiry"
)

// LeaseRepository stores one JSON lease per user plus a sorted set scored
// by expiry, so the roster is a range query instead of a scan.
type LeaseRepository struct {
	client    *redis.Client
	retention time.Duration
	log       *slog.Logger
}

var _ contract.ILeaseRepository = LeaseRepository{}

func NewLeaseRepository(client *redis.Client, retention time.Duration, log *slog.Logger) LeaseRepository {
	return LeaseRepository{client: client, retention: retention, log: log}
}

func (r LeaseRepository) PutLease(ctx context.Context, lease presence.Lease) error {
	data, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}
	ttl := lease.ExpiresAt.Sub(lease.LastSeenAt) + r.retention

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, leaseKeyPrefix+lease.UserID, data, ttl)
	pipe.ZAdd(ctx, leaseIndexKey, redis.Z{Score: float64(lease.ExpiresAt.UnixMilli()), Member: lease.UserID})
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: failed to store lease: %w", errors.ErrUnavailable, err)
	}
	return nil
}

func (r LeaseRepository) GetLease(ctx context.Context, userID string) (presence.Lease, error) {
	data, err := r.client.Get(ctx, leaseKeyPrefix+userID).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return presence.Lease{}, errors.ErrLeaseNotFound
	}
	if err != nil {
		return presence.Lease{}, fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
	var lease presence.Lease
	if err = json.Unmarshal(data, &lease); err != nil {
		return presence.Lease{}, fmt.Errorf("failed to unmarshal lease: %w", err)
	}
	return lease, nil
}

// ListLeases reads the users whose expiry is after activeAt, then re-checks
// each lease at activeAt since the index may lag a concurrent write.
func (r LeaseRepository) ListLeases(ctx context.Context, activeAt time.Time, limit int) ([]presence.Lease, error) {
	userIDs, err := r.client.ZRangeByScore(ctx, leaseIndexKey, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(activeAt.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
	r.prune(ctx, activeAt)
	if len(userIDs) == 0 {
		return []presence.Lease{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.Get(ctx, leaseKeyPrefix+userID)
	}
	if _, err = pipe.Exec(ctx); err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}

	leases := make([]presence.Lease, 0, len(cmds))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var lease presence.Lease
		if err = json.Unmarshal(data, &lease); err != nil {
			r.log.Warn("Malformed lease", "user_id", userIDs[i], "error", err)
			continue
		}
		leases = append(leases, lease)
	}
	return presence.Roster(leases, activeAt, limit), nil
}

// prune drops index entries whose record has outlived its retention.
func (r LeaseRepository) prune(ctx context.Context, activeAt time.Time) {
	horizon := activeAt.Add(-r.retention).UnixMilli()
	if err := r.client.ZRemRangeByScore(ctx, leaseIndexKey, "-inf", "("+strconv.FormatInt(horizon, 10)).Err(); err != nil {
		r.log.Debug("Lease index prune failed", "error", err)
	}
}
