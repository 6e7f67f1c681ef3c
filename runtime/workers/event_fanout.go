package workers

import (
	"context"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/event"
	"support-chat/errors"
)

// EventFanout forwards every change event of the all-sessions topic to
// in-process sinks (search index...).
//
// Best effort: no retries, a slow sink is cut by sinkTimeout and the next
// event goes on. Sinks must not be part of a write's success path.
type EventFanout struct {
	log         *slog.Logger
	subscriber  contract.ISubscriber
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, subscriber contract.ISubscriber, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, subscriber: subscriber, sinks: sinks, sinkTimeout: sinkTimeout}
}

// Run subscribes on start; a closed feed is reported as a failure so the
// supervisor subscribes again.
func (w *EventFanout) Run(ctx context.Context) error {
	sub, err := w.subscriber.Subscribe(event.TopicSessions)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return errors.ErrSubscriptionFailed
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout hands the event to each sink with its own deadline.
func (w *EventFanout) Fanout(ctx context.Context, evt event.ChangeEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume change event",
				"sink", sinkName(sink), "entity", evt.Entity, "id", evt.ID, "error", err)
		}
		cancel()
	}
}

func sinkName(sink contract.EventSink) string {
	if w, ok := sink.(contract.Worker); ok {
		return contract.GetWorkerName(w)
	}
	return "sink"
}
