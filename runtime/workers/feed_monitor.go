package workers

import (
	"context"
	"log/slog"
	"time"

	"support-chat/domain/event"
)

// FeedLoad is the part of the change feed the monitor samples.
type FeedLoad interface {
	Load() []event.TopicLoad
	Dropped() uint64
}

// FeedMonitorWorker periodically logs how loaded the feed buffers are.
// Sampling is lock-light and never blocks a publisher.
type FeedMonitorWorker struct {
	log       *slog.Logger
	feed      FeedLoad
	interval  time.Duration
	threshold float64
	dropped   uint64
}

// NewFeedMonitorWorker warns when a topic's fullest buffer reaches threshold
// (0..1) or when events were dropped since the previous sample.
func NewFeedMonitorWorker(log *slog.Logger, feed FeedLoad, interval time.Duration, threshold float64) *FeedMonitorWorker {
	return &FeedMonitorWorker{log: log, feed: feed, interval: interval, threshold: threshold}
}

func (w *FeedMonitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping feed monitor")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample logs one reading and returns the topics over threshold.
func (w *FeedMonitorWorker) Sample() []event.TopicLoad {
	var hot []event.TopicLoad
	for _, load := range w.feed.Load() {
		if load.Saturation() >= w.threshold {
			hot = append(hot, load)
			w.log.Warn("Feed subscribers falling behind",
				"topic", load.Topic, "subscribers", load.Subscribers,
				"buffered", load.Buffered, "capacity", load.Capacity)
			continue
		}
		w.log.Debug("Feed topic load", "topic", load.Topic,
			"subscribers", load.Subscribers, "buffered", load.Buffered)
	}
	if dropped := w.feed.Dropped(); dropped > w.dropped {
		w.log.Warn("Change events dropped", "since_last_sample", dropped-w.dropped, "total", dropped)
		w.dropped = dropped
	}
	return hot
}
