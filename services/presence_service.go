package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"support-chat/contract"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/samber/lo"
)

const (
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultPresenceWindow    = 90 * time.Second
	DefaultRosterLimit       = 50
)

type IPresenceService interface {
	Heartbeat(ctx context.Context, userID, deviceInfo string) (presence.Status, error)
	Signal(ctx context.Context, userID string, signal presence.Signal, deviceInfo string) (presence.Status, error)
	UpdateStatus(ctx context.Context, userID string, isOnline bool, deviceInfo string) (presence.Status, error)
	Status(ctx context.Context, userID string) (presence.Status, error)
	Online(ctx context.Context, limit int) ([]presence.Status, error)
}

// PresenceService renews and reads leases. Nothing expires them in the
// background, reads compare ExpiresAt with the clock.
type PresenceService struct {
	leases contract.ILeaseRepository
	window time.Duration
	opts   Options
	log    *slog.Logger
}

var _ IPresenceService = (*PresenceService)(nil)

func NewPresenceService(leases contract.ILeaseRepository, window time.Duration, opts Options, log *slog.Logger) *PresenceService {
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	return &PresenceService{leases: leases, window: window, opts: opts.withDefaults(), log: log}
}

func (s *PresenceService) Heartbeat(ctx context.Context, userID, deviceInfo string) (presence.Status, error) {
	return s.Signal(ctx, userID, presence.SignalHeartbeat, deviceInfo)
}

// UpdateStatus maps the boolean form onto visibility signals.
func (s *PresenceService) UpdateStatus(ctx context.Context, userID string, isOnline bool, deviceInfo string) (presence.Status, error) {
	return s.Signal(ctx, userID, lo.Ternary(isOnline, presence.SignalVisible, presence.SignalHidden), deviceInfo)
}

// Signal moves the caller's lease. An empty deviceInfo keeps the stored one.
func (s *PresenceService) Signal(ctx context.Context, userID string, signal presence.Signal, deviceInfo string) (presence.Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return presence.Status{}, fmt.Errorf("%w: user id is required", errors.ErrValidation)
	}
	if _, err := presence.ParseSignal(string(signal)); err != nil {
		return presence.Status{}, err
	}
	now := s.opts.Clock()

	lease, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (presence.Lease, error) {
		current, err := s.leases.GetLease(ctx, userID)
		if stderrors.Is(err, errors.ErrLeaseNotFound) {
			current, err = presence.Lease{UserID: userID}, nil
		}
		if err != nil {
			return presence.Lease{}, err
		}
		next := current.Apply(signal, now, s.window)
		if deviceInfo != "" {
			next.DeviceInfo = deviceInfo
		}
		return next, s.leases.PutLease(ctx, next)
	})
	if err != nil {
		s.log.Warn("Presence not updated", "user_id", userID, "signal", signal, "error", err)
		return presence.Status{}, err
	}
	return lease.Status(now), nil
}

func (s *PresenceService) Status(ctx context.Context, userID string) (presence.Status, error) {
	lease, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) (presence.Lease, error) {
		return s.leases.GetLease(ctx, userID)
	})
	if err != nil {
		return presence.Status{}, err
	}
	return lease.Status(s.opts.Clock()), nil
}

// Online lists unexpired leases, most recently seen first.
func (s *PresenceService) Online(ctx context.Context, limit int) ([]presence.Status, error) {
	if limit <= 0 {
		limit = DefaultRosterLimit
	}
	now := s.opts.Clock()
	leases, err := call(ctx, s.opts.OperationTimeout, func(ctx context.Context) ([]presence.Lease, error) {
		return s.leases.ListLeases(ctx, now, limit)
	})
	if err != nil {
		s.log.Warn("Presence roster unavailable", "error", err)
		return nil, err
	}
	return lo.Map(leases, func(l presence.Lease, _ int) presence.Status { return l.Status(now) }), nil
}
