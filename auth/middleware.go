package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"support-chat/errors"
)

// Middleware resolves the actor of every HTTP request.
// No token means a guest customer; a token that does not validate is a 401.
// WebSocket clients cannot set headers, they pass ?token= instead.
func Middleware(tokens *TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), Guest)))
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				log.Debug("Rejected token", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": errors.ErrUnauthenticated.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorFromClaims(claims))))
		})
	}
}

func extractToken(r *http.Request) string {
	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
