package sink_test

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/mocks"
	"support-chat/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSearchSink_Consume(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	sessionID := uuid.New()
	at := time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)

	t.Run("Flush triggered by batch size", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		messages := mocks.NewMockIMessageRepository(ctrl)
		indexer := mocks.NewMockIIndexer(ctrl)
		s := sink.NewSearchSink(messages, indexer, logger, 3, 10*time.Second, time.Second)

		messages.EXPECT().GetMessage(gomock.Any(), sessionID, gomock.Any()).
			DoAndReturn(func(_ context.Context, sid, id uuid.UUID) (chat.Message, error) {
				return chat.Message{ID: id, SessionID: sid, Content: "hello"}, nil
			}).Times(3)
		indexer.EXPECT().Index(gomock.Any(), gomock.Any()).Return(nil).Times(3)

		for i := 0; i < 3; i++ {
			req.NoError(s.Consume(ctx, event.MessageInserted(uuid.New(), sessionID, at)))
		}
	})

	t.Run("Flush triggered by timeout", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		messages := mocks.NewMockIMessageRepository(ctrl)
		indexer := mocks.NewMockIIndexer(ctrl)
		s := sink.NewSearchSink(messages, indexer, logger, 100, 30*time.Millisecond, time.Second)

		indexed := make(chan struct{})
		messages.EXPECT().GetMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(chat.Message{Content: "late"}, nil)
		indexer.EXPECT().Index(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, chat.Message) error {
			close(indexed)
			return nil
		})

		// a cancelled caller context must not abort the deferred flush
		consumeCtx, cancel := context.WithCancel(ctx)
		req.NoError(s.Consume(consumeCtx, event.MessageInserted(uuid.New(), sessionID, at)))
		cancel()

		select {
		case <-indexed:
		case <-time.After(time.Second):
			t.Fatal("timer flush did not run")
		}
	})

	t.Run("Ignores everything but message inserts", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		s := sink.NewSearchSink(mocks.NewMockIMessageRepository(ctrl), mocks.NewMockIIndexer(ctrl), logger, 1, time.Second, time.Second)

		req.NoError(s.Consume(ctx, event.SessionUpdated(sessionID, at)))
		req.NoError(s.Consume(ctx, event.MessagesUpdated(sessionID, at)))
		req.NoError(s.Flush(ctx))
	})

	t.Run("Duplicated inserts are indexed once and failures reported", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		messages := mocks.NewMockIMessageRepository(ctrl)
		indexer := mocks.NewMockIIndexer(ctrl)
		s := sink.NewSearchSink(messages, indexer, logger, 3, 10*time.Second, time.Second)

		dup := event.MessageInserted(uuid.New(), sessionID, at)
		missing := event.MessageInserted(uuid.New(), sessionID, at)
		messages.EXPECT().GetMessage(gomock.Any(), sessionID, dup.ID).Return(chat.Message{ID: dup.ID}, nil)
		messages.EXPECT().GetMessage(gomock.Any(), sessionID, missing.ID).Return(chat.Message{}, stderrors.New("gone"))
		indexer.EXPECT().Index(gomock.Any(), chat.Message{ID: dup.ID}).Return(nil)

		req.NoError(s.Consume(ctx, dup))
		req.NoError(s.Consume(ctx, dup))
		err := s.Consume(ctx, missing)
		req.Error(err)
		req.Contains(err.Error(), "1 of 2")
	})

	t.Run("Concurrent access safety", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		messages := mocks.NewMockIMessageRepository(ctrl)
		indexer := mocks.NewMockIIndexer(ctrl)
		numWorkers, eventsPerWorker := 10, 10
		s := sink.NewSearchSink(messages, indexer, logger, numWorkers*eventsPerWorker, 10*time.Second, time.Second)

		messages.EXPECT().GetMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(chat.Message{}, nil).Times(numWorkers * eventsPerWorker)
		indexer.EXPECT().Index(gomock.Any(), gomock.Any()).Return(nil).Times(numWorkers * eventsPerWorker)

		var wg sync.WaitGroup
		for w := 0; w < numWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < eventsPerWorker; i++ {
					_ = s.Consume(ctx, event.MessageInserted(uuid.New(), sessionID, at))
				}
			}()
		}
		wg.Wait()
	})
}
