package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"support-chat/contract"
	"support-chat/domain/event"

	"github.com/samber/lo"
)

// SearchSink feeds the transcript index from the change feed.
// Inserted messages are buffered and flushed either when the batch is full
// or when bufferTimeout elapses after the first buffered event.
type SearchSink struct {
	mu            sync.Mutex
	timer         *time.Timer
	messages      contract.IMessageRepository
	indexer       contract.IIndexer
	log           *slog.Logger
	events        []event.ChangeEvent
	maxBatch      int
	bufferTimeout time.Duration
	indexTimeout  time.Duration
}

func NewSearchSink(
	messages contract.IMessageRepository,
	indexer contract.IIndexer,
	log *slog.Logger,
	maxBatch int,
	bufferTimeout time.Duration,
	indexTimeout time.Duration,
) *SearchSink {
	return &SearchSink{
		messages:      messages,
		indexer:       indexer,
		log:           log,
		maxBatch:      max(maxBatch, 1),
		bufferTimeout: bufferTimeout,
		indexTimeout:  indexTimeout,
	}
}

// Consume implements contract.EventSink. Only message inserts are indexed,
// read flips and session changes do not touch content.
func (s *SearchSink) Consume(ctx context.Context, e event.ChangeEvent) error {
	if e.Entity != event.EntityMessage || e.Kind != event.KindInsert {
		return nil
	}

	s.mu.Lock()
	s.events = append(s.events, e)
	if len(s.events) == 1 && s.timer == nil {
		// the fan-out cancels ctx once Consume returns
		detached := context.WithoutCancel(ctx)
		s.timer = time.AfterFunc(s.bufferTimeout, func() {
			if err := s.flush(detached); err != nil {
				s.log.Error("Search sink: timeout flush failed", "error", err)
			}
		})
	}
	isFull := len(s.events) >= s.maxBatch
	s.mu.Unlock()

	if isFull {
		return s.flush(ctx)
	}
	return nil
}

// Flush indexes whatever is buffered, used on shutdown.
func (s *SearchSink) Flush(ctx context.Context) error {
	return s.flush(ctx)
}

func (s *SearchSink) flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.events) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.events
	s.events = make([]event.ChangeEvent, 0, s.maxBatch)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	return s.index(ctx, batch)
}

func (s *SearchSink) index(ctx context.Context, batch []event.ChangeEvent) error {
	// a replayed insert shows up twice in a batch
	batch = lo.UniqBy(batch, func(e event.ChangeEvent) string { return e.ID.String() })

	var failed int
	for _, e := range batch {
		msg, err := s.messages.GetMessage(ctx, e.SessionID, e.ID)
		if err != nil {
			failed++
			s.log.Warn("Search sink: message lookup failed", "message_id", e.ID, "session_id", e.SessionID, "error", err)
			continue
		}
		if err = s.indexer.Index(ctx, msg); err != nil {
			failed++
			s.log.Warn("Search sink: indexing failed", "message_id", e.ID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to index %d of %d messages", failed, len(batch))
	}
	s.log.Debug("Search batch indexed", "count", len(batch))
	return nil
}

var _ contract.EventSink = (*SearchSink)(nil)

