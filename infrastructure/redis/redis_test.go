package redis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"support-chat/domain/event"
	"support-chat/domain/presence"
	"support-chat/errors"
	"support-chat/runtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestLeaseRepository(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewClient(ctx, "redis://"+mr.Addr(), 0)
	req.NoError(err)
	defer client.Close()

	repo := NewLeaseRepository(client, time.Hour, slog.Default())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	window := time.Minute

	req.NoError(repo.PutLease(ctx, presence.Lease{UserID: "op-1", DeviceInfo: "darwin"}.Renew(now, window)))
	req.NoError(repo.PutLease(ctx, presence.Lease{UserID: "op-2"}.Renew(now.Add(10*time.Second), window)))
	req.NoError(repo.PutLease(ctx, presence.Lease{UserID: "op-3"}.Expire(now.Add(10*time.Second))))

	lease, err := repo.GetLease(ctx, "op-1")
	req.NoError(err)
	req.Equal("darwin", lease.DeviceInfo)
	req.True(lease.LastSeenAt.Equal(now))

	_, err = repo.GetLease(ctx, "ghost")
	req.ErrorIs(err, errors.ErrLeaseNotFound)

	roster, err := repo.ListLeases(ctx, now.Add(20*time.Second), 0)
	req.NoError(err)
	req.Equal([]string{"op-2", "op-1"}, lo.Map(roster, func(l presence.Lease, _ int) string { return l.UserID }))

	roster, err = repo.ListLeases(ctx, now.Add(65*time.Second), 0)
	req.NoError(err)
	req.Equal([]string{"op-2"}, lo.Map(roster, func(l presence.Lease, _ int) string { return l.UserID }))

	// the record itself expires after lease length + retention
	mr.FastForward(window + time.Hour + time.Second)
	_, err = repo.GetLease(ctx, "op-1")
	req.ErrorIs(err, errors.ErrLeaseNotFound)
}

func TestPublisher_RelaysIntoLocalRegistry(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr(), 0)
	req.NoError(err)
	defer client.Close()

	local := runtime.NewRegistry(slog.Default(), 8)
	sessionID := uuid.New()
	sub, err := local.Subscribe(event.SessionTopic(sessionID))
	req.NoError(err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := NewRelayWorker(client, DefaultFeedChannel, local, slog.Default())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	req.Eventually(func() bool {
		return mr.PubSubNumSub(DefaultFeedChannel)[DefaultFeedChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	evt := event.MessageInserted(uuid.New(), sessionID, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	req.NoError(NewPublisher(client, DefaultFeedChannel).Publish(context.Background(), evt))

	select {
	case got := <-sub.Events():
		req.Equal(evt.ID, got.ID)
		req.Equal(evt.SessionID, got.SessionID)
		req.True(evt.At.Equal(got.At))
	case <-time.After(2 * time.Second):
		req.Fail("event was not relayed")
	}

	cancel()
	req.NoError(<-done)
}
