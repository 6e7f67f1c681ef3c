// Package presence models online status as leases.
// A lease is online while now < ExpiresAt; nothing sweeps expired leases,
// readers evaluate them against their own clock.
package presence

import (
	"sort"
	"strings"
	"time"

	"support-chat/errors"

	"github.com/samber/lo"
)

type Lease struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	DeviceInfo string    `json:"device_info,omitempty"`
}

// Renew extends the lease by window from now.
func (l Lease) Renew(now time.Time, window time.Duration) Lease {
	l.LastSeenAt = now
	l.ExpiresAt = now.Add(window)
	return l
}

// Expire records activity but ends the lease immediately.
func (l Lease) Expire(now time.Time) Lease {
	l.LastSeenAt = now
	l.ExpiresAt = now
	return l
}

func (l Lease) Online(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

func (l Lease) Status(now time.Time) Status {
	return Status{UserID: l.UserID, LastSeenAt: l.LastSeenAt, Online: l.Online(now), DeviceInfo: l.DeviceInfo}
}

// Status is the read model of a lease at a given instant.
type Status struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Online     bool      `json:"online"`
	DeviceInfo string    `json:"device_info,omitempty"`
}

// Signal is a client side event that moves a lease.
type Signal string

const (
	SignalHeartbeat      Signal = "heartbeat"
	SignalVisible        Signal = "visible"
	SignalHidden         Signal = "hidden"
	SignalNetworkOnline  Signal = "network_online"
	SignalNetworkOffline Signal = "network_offline"
)

func ParseSignal(raw string) (Signal, error) {
	s := Signal(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SignalHeartbeat, SignalVisible, SignalHidden, SignalNetworkOnline, SignalNetworkOffline:
		return s, nil
	}
	return "", errors.ErrInvalidSignal
}

// KeepsOnline reports whether the signal renews rather than ends the lease.
func (s Signal) KeepsOnline() bool {
	return s == SignalHeartbeat || s == SignalVisible || s == SignalNetworkOnline
}

// Apply moves the lease according to the signal.
func (l Lease) Apply(s Signal, now time.Time, window time.Duration) Lease {
	if s.KeepsOnline() {
		return l.Renew(now, window)
	}
	return l.Expire(now)
}

// Roster keeps the leases online at now, most recently seen first.
// limit <= 0 means no limit.
func Roster(leases []Lease, now time.Time, limit int) []Lease {
	online := lo.Filter(leases, func(l Lease, _ int) bool {
		return l.Online(now)
	})
	sort.SliceStable(online, func(i, j int) bool {
		if !online[i].LastSeenAt.Equal(online[j].LastSeenAt) {
			return online[i].LastSeenAt.After(online[j].LastSeenAt)
		}
		return online[i].UserID < online[j].UserID
	})
	if limit > 0 && len(online) > limit {
		return online[:limit]
	}
	return online
}
