package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"support-chat/auth"
	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/domain/presence"
	"support-chat/domain/search"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret-2026"

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	tokens   *auth.TokenManager
	registry *runtime.Registry
	index    repositories.SearchRepository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	seq, err := repositories.NewSequencer(db)
	require.NoError(t, err)
	writer, err := repositories.OpenSearchWriter("")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := runtime.NewRegistry(log, runtime.DefaultSubscriberBuffer)
	sessions := runtime.NewObservedSessions(repositories.NewSessionRepository(db, seq, log), registry, log)
	messages := runtime.NewObservedMessages(repositories.NewMessageRepository(db, seq, log), registry, log)
	leases := repositories.NewLeaseRepository(db, time.Hour, log)
	index := repositories.NewSearchRepository(writer, log)
	opts := services.Options{}

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	server := NewServer(Dependencies{
		Lifecycle: services.NewLifecycleService(sessions, messages, nil, opts, log),
		Messages:  services.NewMessageService(messages, nil, opts, log),
		Presence:  services.NewPresenceService(leases, time.Minute, opts, log),
		Activity:  services.NewActivityService(sessions, messages, opts, log),
		Searcher:  index,
		Feed:      registry,
	}, tokens, log)
	srv := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		srv.Close()
		_ = writer.Close()
		_ = seq.Release()
		_ = db.Close()
	})
	return harness{t: t, srv: srv, tokens: tokens, registry: registry, index: index}
}

func (h harness) token(userID string, role chat.SenderKind) string {
	h.t.Helper()
	raw, err := h.tokens.Generate(userID, role)
	require.NoError(h.t, err)
	return raw
}

// do sends a JSON request and decodes the JSON answer into out when given.
func (h harness) do(method, path, token string, body any, out any) int {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(b)
	}
	r, err := http.NewRequest(method, h.srv.URL+path, reader)
	require.NoError(h.t, err)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(h.t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionEndpoints(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	operator := h.token("op-1", chat.SenderOperator)

	var created createSessionResponse
	code := h.do(http.MethodPost, "/api/sessions", "", chat.CreateSessionCommand{
		Name: "Ivan", Topic: "Delivery", FirstMessage: "Where is my order?",
	}, &created)
	req.Equal(http.StatusCreated, code)
	req.Equal(created.Session.ID.String(), created.SessionID)
	sessionPath := "/api/sessions/" + created.SessionID

	var board []chat.Activity
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/sessions", operator, nil, &board))
	req.Len(board, 1)
	req.Equal(1, board[0].Unread)

	var errBody errorBody
	req.Equal(http.StatusForbidden, h.do(http.MethodGet, "/api/sessions", "", nil, &errBody))

	var counter map[string]int
	req.Equal(http.StatusOK, h.do(http.MethodPost, sessionPath+"/read", operator, nil, &counter))
	req.Equal(1, counter["marked"])
	req.Equal(http.StatusOK, h.do(http.MethodGet, sessionPath+"/unread", operator, nil, &counter))
	req.Zero(counter["unread"])

	var reply chat.Message
	req.Equal(http.StatusCreated, h.do(http.MethodPost, sessionPath+"/messages", operator, sendMessageRequest{Content: "On its way"}, &reply))
	req.Equal(chat.SenderOperator, reply.Sender)
	req.Equal("op-1", *reply.UserID)

	// the guest reads the staff reply
	req.Equal(http.StatusOK, h.do(http.MethodGet, sessionPath+"/unread", "", nil, &counter))
	req.Equal(1, counter["unread"])

	var changed changeStatusResponse
	req.Equal(http.StatusOK, h.do(http.MethodPost, sessionPath+"/status", operator, changeStatusRequest{Status: "resolved"}, &changed))
	req.Equal(chat.StatusResolved, changed.Session.Status)
	req.NotNil(changed.Notice)
	req.Equal(chat.NoticeResolved, changed.Notice.Content)

	req.Equal(http.StatusConflict, h.do(http.MethodPost, sessionPath+"/messages", "", sendMessageRequest{Content: "Hello?"}, &errBody))
	req.Contains(errBody.Error, "reopen")

	stale := uint64(0)
	req.Equal(http.StatusConflict, h.do(http.MethodPost, sessionPath+"/status", operator, changeStatusRequest{Status: "active", ExpectedRevision: &stale}, &errBody))
	req.Equal(http.StatusForbidden, h.do(http.MethodPost, sessionPath+"/status", "", changeStatusRequest{Status: "active"}, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodPost, sessionPath+"/status", operator, changeStatusRequest{Status: "archived"}, &errBody))

	var transcript []chat.Message
	req.Equal(http.StatusOK, h.do(http.MethodGet, sessionPath+"/messages", "", nil, &transcript))
	req.Len(transcript, 3)
	req.Equal(chat.SenderSystem, transcript[2].Sender)

	var stats chat.Stats
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/stats", operator, nil, &stats))
	req.Equal(chat.Stats{Total: 1, Resolved: 1}, stats)
	req.Equal(http.StatusForbidden, h.do(http.MethodGet, "/api/stats", "", nil, &errBody))

	var session chat.Session
	req.Equal(http.StatusOK, h.do(http.MethodGet, sessionPath, "", nil, &session))
	req.Equal(uint64(1), session.Revision)
	req.Equal(http.StatusNotFound, h.do(http.MethodGet, "/api/sessions/"+uuid.NewString(), "", nil, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodGet, "/api/sessions/not-a-uuid", "", nil, &errBody))
	req.Equal(http.StatusUnauthorized, h.do(http.MethodGet, sessionPath, "forged", nil, &errBody))
}

func TestSessionEndpoints_AuthenticatedCustomer(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	customer := h.token("cust-9", chat.SenderCustomer)

	var created createSessionResponse
	req.Equal(http.StatusCreated, h.do(http.MethodPost, "/api/sessions", customer, chat.CreateSessionCommand{
		Name: "Olga", Topic: "Payment", FirstMessage: "Charged twice",
	}, &created))
	req.Equal(chat.OriginAuthenticated, created.Session.Origin())
	h.do(http.MethodPost, "/api/sessions", "", chat.CreateSessionCommand{Name: "Guest", Topic: "Menu", FirstMessage: "Vegan?"}, nil)

	var board []chat.Activity
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/sessions?status=active", customer, nil, &board))
	req.Len(board, 1)
	req.Equal(created.Session.ID, board[0].ID)

	var errBody errorBody
	req.Equal(http.StatusBadRequest, h.do(http.MethodPost, "/api/sessions", customer, chat.CreateSessionCommand{Name: "Olga", Topic: "Payment"}, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodGet, "/api/sessions?status=done", customer, nil, &errBody))
}

func TestPresenceEndpoints(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	operator := h.token("op-1", chat.SenderOperator)
	manager := h.token("mgr-1", chat.SenderManager)
	admin := h.token("admin", chat.SenderAdministrator)

	var status presence.Status
	req.Equal(http.StatusOK, h.do(http.MethodPost, "/api/presence/heartbeat", operator, heartbeatRequest{DeviceInfo: "linux/amd64"}, &status))
	req.True(status.Online)
	req.Equal(http.StatusOK, h.do(http.MethodPost, "/api/presence/heartbeat", manager, nil, &status))

	var online []onlineUser
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/presence/online?limit=1", operator, nil, &online))
	req.Len(online, 1)
	req.Equal("mgr-1", online[0].UserID)

	req.Equal(http.StatusOK, h.do(http.MethodPost, "/api/presence/signal", manager, signalRequest{Signal: "hidden"}, &status))
	req.False(status.Online)
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/presence/online", operator, nil, &online))
	req.Len(online, 1)
	req.Equal("op-1", online[0].UserID)

	req.Equal(http.StatusOK, h.do(http.MethodPost, "/api/presence/status", admin, userStatusRequest{UserID: "op-1", IsOnline: false}, &status))
	req.Equal("op-1", status.UserID)
	req.Equal(http.StatusOK, h.do(http.MethodGet, "/api/presence/op-1", "", nil, &status))
	req.False(status.Online)
	req.Equal("linux/amd64", status.DeviceInfo)

	var errBody errorBody
	req.Equal(http.StatusForbidden, h.do(http.MethodPost, "/api/presence/status", operator, userStatusRequest{UserID: "mgr-1", IsOnline: true}, &errBody))
	req.Equal(http.StatusUnauthorized, h.do(http.MethodPost, "/api/presence/heartbeat", "", nil, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodPost, "/api/presence/signal", operator, signalRequest{Signal: "sleeping"}, &errBody))
	req.Equal(http.StatusNotFound, h.do(http.MethodGet, "/api/presence/nobody", "", nil, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodGet, "/api/presence/online?limit=-3", operator, nil, &errBody))
}

func TestSearchEndpoint(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sessionID := uuid.New()
	req.NoError(h.index.Index(context.Background(), chat.Message{
		ID: uuid.New(), SessionID: sessionID, Sender: chat.SenderCustomer, Content: "my burger arrived cold", CreatedAt: time.Now().UTC(),
	}))
	req.NoError(h.index.Index(context.Background(), chat.Message{
		ID: uuid.New(), SessionID: uuid.New(), Sender: chat.SenderCustomer, Content: "cold drinks please", CreatedAt: time.Now().UTC(),
	}))

	var result search.Result
	path := "/api/search?q=cold&session=" + sessionID.String()
	req.Equal(http.StatusOK, h.do(http.MethodGet, path, h.token("op-1", chat.SenderOperator), nil, &result))
	req.Len(result.Hits, 1)
	req.Equal(sessionID, result.Hits[0].SessionID)

	var errBody errorBody
	req.Equal(http.StatusForbidden, h.do(http.MethodGet, path, "", nil, &errBody))
	req.Equal(http.StatusBadRequest, h.do(http.MethodGet, "/api/search?q=cold&session=x", h.token("op-1", chat.SenderOperator), nil, &errBody))
}

func TestFeedEndpoint(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	operator := h.token("op-1", chat.SenderOperator)
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?topic=sessions&token="+operator, nil)
	req.NoError(err)
	req.Eventually(func() bool { return h.registry.Subscribers(event.TopicSessions) == 1 }, time.Second, 10*time.Millisecond)

	var created createSessionResponse
	req.Equal(http.StatusCreated, h.do(http.MethodPost, "/api/sessions", "", chat.CreateSessionCommand{
		Name: "Ivan", Topic: "Delivery", FirstMessage: "Where is my order?",
	}, &created))

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var first, second event.ChangeEvent
	req.NoError(conn.ReadJSON(&first))
	req.NoError(conn.ReadJSON(&second))
	req.Equal(event.EntitySession, first.Entity)
	req.Equal(event.KindInsert, first.Kind)
	req.Equal(created.Session.ID, first.SessionID)
	req.Equal(event.EntityMessage, second.Entity)
	req.Equal(created.Message.ID, second.ID)

	// closing the socket releases the subscription
	req.NoError(conn.Close())
	req.Eventually(func() bool { return h.registry.Subscribers(event.TopicSessions) == 0 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?topic=sessions", nil)
	req.Error(err)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?topic=rooms", nil)
	req.Error(err)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	// a guest may follow its own session
	guest, _, err := websocket.DefaultDialer.Dial(wsURL+"?topic="+event.SessionTopic(created.Session.ID), nil)
	req.NoError(err)
	defer func() { _ = guest.Close() }()
}
