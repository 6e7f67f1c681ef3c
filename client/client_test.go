package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"support-chat/api"
	"support-chat/auth"
	"support-chat/domain/chat"
	"support-chat/domain/presence"
	"support-chat/errors"
	"support-chat/projection"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	guest    *Client
	operator *Client
	customer *Client
	tokens   *auth.TokenManager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	seq, err := repositories.NewSequencer(db)
	require.NoError(t, err)
	writer, err := repositories.OpenSearchWriter("")
	require.NoError(t, err)

	registry := runtime.NewRegistry(quiet, runtime.DefaultSubscriberBuffer)
	sessions := runtime.NewObservedSessions(repositories.NewSessionRepository(db, seq, quiet), registry, quiet)
	messages := runtime.NewObservedMessages(repositories.NewMessageRepository(db, seq, quiet), registry, quiet)
	opts := services.Options{}
	tokens := auth.NewTokenManager("client-test-secret", time.Hour)

	server := api.NewServer(api.Dependencies{
		Lifecycle: services.NewLifecycleService(sessions, messages, nil, opts, quiet),
		Messages:  services.NewMessageService(messages, nil, opts, quiet),
		Presence:  services.NewPresenceService(repositories.NewLeaseRepository(db, time.Hour, quiet), time.Minute, opts, quiet),
		Activity:  services.NewActivityService(sessions, messages, opts, quiet),
		Searcher:  repositories.NewSearchRepository(writer, quiet),
		Feed:      registry,
	}, tokens, quiet)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = writer.Close()
		_ = seq.Release()
		_ = db.Close()
	})

	guest, err := New(Config{ServerURL: srv.URL, RequestTimeout: 5 * time.Second, MaxRetries: 1}, quiet)
	require.NoError(t, err)
	operatorToken, err := tokens.Generate("op-1", chat.SenderOperator)
	require.NoError(t, err)
	customerToken, err := tokens.Generate("cust-1", chat.SenderCustomer)
	require.NoError(t, err)
	return fixture{
		guest:    guest,
		operator: guest.WithToken(operatorToken),
		customer: guest.WithToken(customerToken),
		tokens:   tokens,
	}
}

func (f fixture) open(t *testing.T, c *Client) CreatedSession {
	t.Helper()
	created, err := c.CreateSession(context.Background(), chat.CreateSessionCommand{
		Name: "Ivan", Topic: "Delivery", FirstMessage: "Where is my order?",
	})
	require.NoError(t, err)
	return created
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New(Config{ServerURL: "not a url"}, quiet)
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestClient_SessionFlow(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	created := f.open(t, f.guest)
	id := created.Session.ID

	board, err := f.operator.Board(ctx, nil)
	req.NoError(err)
	req.Len(board, 1)
	req.Equal(1, board[0].Unread)

	_, err = f.guest.Board(ctx, nil)
	req.ErrorIs(err, errors.ErrForbiddenActor)

	marked, err := f.operator.MarkRead(ctx, id)
	req.NoError(err)
	req.Equal(1, marked)

	_, err = f.operator.Send(ctx, id, "Your rider is close")
	req.NoError(err)
	unread, err := f.guest.Unread(ctx, id)
	req.NoError(err)
	req.Equal(1, unread)

	stale := uint64(7)
	_, err = f.operator.ChangeStatus(ctx, id, chat.StatusResolved, &stale)
	req.ErrorIs(err, errors.ErrStaleSession)

	current := uint64(0)
	change, err := f.operator.ChangeStatus(ctx, id, chat.StatusResolved, &current)
	req.NoError(err)
	req.Equal(chat.StatusResolved, change.Session.Status)
	req.NotNil(change.Notice)

	_, err = f.guest.Send(ctx, id, "Hello?")
	req.ErrorIs(err, errors.ErrSessionNotActive)
	_, err = f.operator.ChangeStatus(ctx, id, chat.StatusClosed, nil)
	req.ErrorIs(err, errors.ErrInvalidTransition)
	_, err = f.guest.Send(ctx, id, "   ")
	req.ErrorIs(err, errors.ErrEmptyMessage)

	transcript, err := f.guest.ListMessages(ctx, id)
	req.NoError(err)
	req.Len(transcript, 3)

	stats, err := f.operator.Stats(ctx)
	req.NoError(err)
	req.Equal(chat.Stats{Total: 1, Resolved: 1}, stats)

	result, err := f.operator.Search(ctx, "rider")
	req.NoError(err)
	req.Empty(result.Hits)
}

func TestClient_Presence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.guest.Heartbeat(ctx, "")
	req.ErrorIs(err, errors.ErrUnauthenticated)

	worker := NewHeartbeatWorker(f.operator, 20*time.Millisecond, quiet)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	req.Eventually(func() bool {
		online, err := f.customer.Online(context.Background(), 10)
		return err == nil && len(online) == 1 && online[0].UserID == "op-1"
	}, 2*time.Second, 10*time.Millisecond)

	worker.Notify(presence.SignalHidden)
	req.Eventually(func() bool {
		status, err := f.customer.UserStatus(context.Background(), "op-1")
		return err == nil && !status.Online
	}, 2*time.Second, 10*time.Millisecond)

	// paused: ticks do not bring the lease back
	time.Sleep(60 * time.Millisecond)
	status, err := f.customer.UserStatus(context.Background(), "op-1")
	req.NoError(err)
	req.False(status.Online)
	req.NotEmpty(status.DeviceInfo)

	worker.Notify(presence.SignalVisible)
	req.Eventually(func() bool {
		status, err := f.customer.UserStatus(context.Background(), "op-1")
		return err == nil && status.Online
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.customer.UserStatus(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrLeaseNotFound)
}

func TestClient_PresenceStaysOfflineWhileHidden(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	worker := NewHeartbeatWorker(f.operator, 20*time.Millisecond, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	isOnline := func() bool {
		status, err := f.customer.UserStatus(context.Background(), "op-1")
		return err == nil && status.Online
	}
	req.Eventually(isOnline, 2*time.Second, 10*time.Millisecond)

	worker.Notify(presence.SignalHidden)
	worker.Notify(presence.SignalNetworkOffline)
	worker.Notify(presence.SignalNetworkOnline)
	req.Eventually(func() bool { return !isOnline() }, 2*time.Second, 10*time.Millisecond)

	// network is back but the app is still in the background
	time.Sleep(80 * time.Millisecond)
	req.False(isOnline())

	worker.Notify(presence.SignalVisible)
	req.Eventually(isOnline, 2*time.Second, 10*time.Millisecond)
}

func TestVisibility_Apply(t *testing.T) {
	req := require.New(t)
	var state visibility

	req.Equal(presence.SignalHidden, state.apply(presence.SignalHidden))
	req.Equal(presence.SignalHidden, state.apply(presence.SignalNetworkOffline))
	req.Equal(presence.SignalHidden, state.apply(presence.SignalNetworkOnline))
	req.False(state.online())

	req.Equal(presence.SignalNetworkOffline, state.apply(presence.SignalNetworkOffline))
	req.Equal(presence.SignalNetworkOffline, state.apply(presence.SignalVisible))
	req.False(state.online())

	req.Equal(presence.SignalNetworkOnline, state.apply(presence.SignalNetworkOnline))
	req.True(state.online())
	req.Equal(presence.SignalHeartbeat, state.apply(presence.SignalHeartbeat))
}

func TestWidget_ReconcilesFromFeed(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	created := f.open(t, f.guest)

	var mu sync.Mutex
	redraws := 0
	widget := NewWidget(f.guest, created.Session.ID, time.Hour, quiet).
		OnChange(func(*projection.SessionView) {
			mu.Lock()
			redraws++
			mu.Unlock()
		})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- widget.Run(ctx) }()
	defer func() {
		cancel()
		req.NoError(<-done)
	}()

	req.Eventually(func() bool { return len(widget.View().Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := f.operator.Send(context.Background(), created.Session.ID, "On its way")
	req.NoError(err)
	req.Eventually(func() bool { return widget.View().Unread(chat.SenderCustomer) == 1 }, 2*time.Second, 10*time.Millisecond)

	widget.Open(context.Background())
	req.Zero(widget.View().Unread(chat.SenderCustomer))

	_, err = f.operator.ChangeStatus(context.Background(), created.Session.ID, chat.StatusResolved, nil)
	req.NoError(err)
	req.Eventually(func() bool {
		return widget.View().Session().Status == chat.StatusResolved && len(widget.View().Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	_, err = widget.Send(context.Background(), "Thanks")
	req.ErrorIs(err, errors.ErrSessionNotActive)

	mu.Lock()
	defer mu.Unlock()
	req.Greater(redraws, 1)
}

func TestWidget_FailsOnUnknownSession(t *testing.T) {
	f := newFixture(t)
	created := f.open(t, f.guest)
	err := NewWidget(f.guest, created.Message.ID, time.Hour, quiet).Run(context.Background())
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestConsole_FeedAndPollOnly(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	staff := NewConsole(f.operator, nil, time.Hour, quiet)
	// customers may not follow every session: the console degrades to polling
	own := NewConsole(f.customer, nil, 20*time.Millisecond, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, console := range []*Console{staff, own} {
		wg.Add(1)
		go func(c *Console) {
			defer wg.Done()
			_ = c.Run(ctx)
		}(console)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	f.open(t, f.guest)
	mine := f.open(t, f.customer)

	req.Eventually(func() bool { return len(staff.Board().Rows(nil)) == 2 }, 2*time.Second, 10*time.Millisecond)
	req.Eventually(func() bool {
		rows := own.Board().Rows(nil)
		return len(rows) == 1 && rows[0].ID == mine.Session.ID
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal(2, staff.Board().TotalUnread())
}
