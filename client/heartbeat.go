package client

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"support-chat/domain/presence"

	"github.com/shirou/gopsutil/host"
)

// HeartbeatWorker keeps the caller's presence lease alive.
// Signals are sent right away. Ticks pause while the app is hidden or the
// network is down, and resume once both are back. Failures are logged and retried on the
// next tick.
type HeartbeatWorker struct {
	client     *Client
	log        *slog.Logger
	interval   time.Duration
	deviceInfo string
	signals    chan presence.Signal
}

func NewHeartbeatWorker(client *Client, interval time.Duration, log *slog.Logger) *HeartbeatWorker {
	return &HeartbeatWorker{
		client:     client,
		log:        log,
		interval:   interval,
		deviceInfo: DeviceInfo(),
		signals:    make(chan presence.Signal, 8),
	}
}

// DeviceInfo describes the local machine, e.g. "desk-42 linux/ubuntu".
func DeviceInfo() string {
	info, err := host.Info()
	if err != nil || info == nil {
		return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("%s %s/%s", info.Hostname, info.OS, info.Platform)
}

// Notify queues a visibility or network signal. A full queue drops it, the
// next tick repairs the lease anyway.
func (w *HeartbeatWorker) Notify(signal presence.Signal) {
	select {
	case w.signals <- signal:
	default:
		w.log.Debug("Presence signal dropped", "signal", signal)
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var state visibility
	w.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if state.online() {
				w.beat(ctx)
			}
		case signal := <-w.signals:
			effective := state.apply(signal)
			if _, err := w.client.Signal(ctx, effective, w.deviceInfo); err != nil {
				w.log.Debug("Presence signal failed", "signal", effective, "error", err)
			}
		}
	}
}

// visibility tracks the app and the network separately: the lease is renewed
// only while the app is in the foreground and the network is up.
type visibility struct {
	hidden  bool
	offline bool
}

func (v visibility) online() bool {
	return !v.hidden && !v.offline
}

// apply records the signal and returns the one to send to the server.
func (v *visibility) apply(signal presence.Signal) presence.Signal {
	switch signal {
	case presence.SignalHidden:
		v.hidden = true
	case presence.SignalVisible:
		v.hidden = false
	case presence.SignalNetworkOffline:
		v.offline = true
	case presence.SignalNetworkOnline:
		v.offline = false
	}
	switch {
	case v.online():
		return signal
	case v.hidden:
		return presence.SignalHidden
	default:
		return presence.SignalNetworkOffline
	}
}

func (w *HeartbeatWorker) beat(ctx context.Context) {
	if _, err := w.client.Heartbeat(ctx, w.deviceInfo); err != nil {
		w.log.Debug("Heartbeat failed", "error", err)
	}
}
