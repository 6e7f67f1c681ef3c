// Package api exposes the chat services over HTTP and the change feed over
// WebSocket.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"support-chat/auth"
	"support-chat/contract"
	"support-chat/domain/search"
	"support-chat/services"

	"github.com/gorilla/mux"
)

// Searcher runs transcript queries.
type Searcher interface {
	Search(ctx context.Context, query search.Query) (search.Result, error)
}

type Dependencies struct {
	Lifecycle services.ILifecycleService
	Messages  services.IMessageService
	Presence  services.IPresenceService
	Activity  services.IActivityService
	Searcher  Searcher
	Feed      contract.ISubscriber
}

type Server struct {
	deps   Dependencies
	tokens *auth.TokenManager
	log    *slog.Logger
	router *mux.Router
	// pingInterval paces WebSocket keepalives.
	pingInterval time.Duration
}

func NewServer(deps Dependencies, tokens *auth.TokenManager, log *slog.Logger) *Server {
	s := &Server{
		deps:         deps,
		tokens:       tokens,
		log:          log,
		router:       mux.NewRouter(),
		pingInterval: 30 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(s.tokens, s.log))

	api.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", s.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", s.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/read", s.markRead).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/unread", s.unread).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/status", s.changeStatus).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)

	api.HandleFunc("/presence/heartbeat", s.heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/presence/signal", s.signal).Methods(http.MethodPost)
	api.HandleFunc("/presence/status", s.updateUserStatus).Methods(http.MethodPost)
	api.HandleFunc("/presence/online", s.onlineUsers).Methods(http.MethodGet)
	api.HandleFunc("/presence/{userID}", s.userStatus).Methods(http.MethodGet)

	api.HandleFunc("/search", s.search).Methods(http.MethodGet)

	s.router.Handle("/ws", auth.Middleware(s.tokens, s.log)(http.HandlerFunc(s.feed))).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "support-chat",
		"timestamp": time.Now().UTC(),
	})
}
