package presence

import (
	"testing"
	"time"

	"support-chat/errors"

	"github.com/stretchr/testify/require"
)

func TestLease_OnlineIsEvaluatedAtReadTime(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	window := 90 * time.Second

	lease := Lease{UserID: "u-1"}.Renew(now, window)
	req.True(lease.Online(now))
	req.True(lease.Online(now.Add(window - time.Nanosecond)))
	req.False(lease.Online(now.Add(window)))
	req.False(lease.Status(now.Add(10 * time.Minute)).Online)
}

func TestLease_Apply(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	window := time.Minute

	lease := Lease{UserID: "u-1"}.Apply(SignalVisible, now, window)
	req.True(lease.Online(now))

	later := now.Add(10 * time.Second)
	lease = lease.Apply(SignalHidden, later, window)
	req.False(lease.Online(later))
	req.Equal(later, lease.LastSeenAt)

	lease = lease.Apply(SignalNetworkOnline, later, window)
	req.True(lease.Online(later))
	lease = lease.Apply(SignalNetworkOffline, later, window)
	req.False(lease.Online(later))
}

func TestParseSignal(t *testing.T) {
	req := require.New(t)
	s, err := ParseSignal("HIDDEN")
	req.NoError(err)
	req.Equal(SignalHidden, s)
	_, err = ParseSignal("sleeping")
	req.ErrorIs(err, errors.ErrInvalidSignal)
}

func TestRoster(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	window := time.Minute
	leases := []Lease{
		Lease{UserID: "stale"}.Renew(now.Add(-2*window), window),
		Lease{UserID: "a"}.Renew(now.Add(-10*time.Second), window),
		Lease{UserID: "b"}.Renew(now.Add(-5*time.Second), window),
		Lease{UserID: "hidden"}.Expire(now),
	}

	roster := Roster(leases, now, 0)
	req.Len(roster, 2)
	req.Equal("b", roster[0].UserID)
	req.Equal("a", roster[1].UserID)

	req.Len(Roster(leases, now, 1), 1)
	req.Empty(Roster(leases, now.Add(2*window), 0))
}
