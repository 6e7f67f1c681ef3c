// Package runtime carries change events from the write path to whoever
// listens: feed subscribers, background sinks and relays. It holds no
// business rules.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"support-chat/contract"
	"support-chat/moderation"
	"support-chat/runtime/workers"
)

// Flusher is a sink holding a buffer that must be drained on shutdown.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Orchestrator owns the background side of the server: the fan-out from the
// feed to the sinks, plus any extra worker (redis relay...), all under one
// supervisor.
type Orchestrator struct {
	mu          sync.Mutex
	log         *slog.Logger
	supervisor  contract.ISupervisor
	subscriber  contract.ISubscriber
	sinks       []contract.EventSink
	workers     []contract.Worker
	sinkTimeout time.Duration
	cancel      context.CancelFunc
}

func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor, subscriber contract.ISubscriber, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		subscriber:  subscriber,
		sinkTimeout: sinkTimeout,
	}
}

func (o *Orchestrator) Add(sinks ...contract.EventSink) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sinks...)
	return o
}

func (o *Orchestrator) AddWorker(w ...contract.Worker) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, w...)
	return o
}

// Start blocks until Stop is called or ctx is done.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.cancel = cancel
	fanout := workers.NewEventFanout(o.log, o.subscriber, o.sinkTimeout, o.sinks...)
	o.supervisor.Add(fanout)
	o.supervisor.Add(o.workers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator", "sinks", len(o.sinks), "workers", len(o.workers)+1)
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels every worker, then drains buffered sinks within timeout.
func (o *Orchestrator) Stop(timeout time.Duration) {
	o.log.Info("Requesting orchestrator shutdown")
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	sinks := append([]contract.EventSink(nil), o.sinks...)
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, sink := range sinks {
		if f, ok := sink.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				o.log.Warn("Sink flush failed on shutdown", "error", err)
			}
		}
	}
}

// PrepareModeration loads the dictionaries under dir and builds the moderator.
func PrepareModeration(loader *moderation.CensoredLoader, dir string, censoredChar rune, log *slog.Logger) (*moderation.Moderator, error) {
	data, err := loader.LoadAll(dir)
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(data.Languages), strings.Join(data.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, censoredChar, log)
}
