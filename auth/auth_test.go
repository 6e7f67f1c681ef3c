package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const secret = "test-secret-with-enough-entropy-2026"

func TestTokenManager(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager(secret, time.Hour)

	raw, err := tokens.Generate("op-42", chat.SenderOperator)
	req.NoError(err)
	claims, err := tokens.Validate(raw)
	req.NoError(err)
	req.Equal("op-42", claims.UserID)
	req.Equal(chat.SenderOperator, claims.Role)

	_, err = tokens.Generate("op-42", chat.SenderSystem)
	req.ErrorIs(err, errors.ErrInvalidSender)
	_, err = tokens.Generate("", chat.SenderCustomer)
	req.ErrorIs(err, errors.ErrValidation)

	other := NewTokenManager("another-secret", time.Hour)
	_, err = other.Validate(raw)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	expired := NewTokenManager(secret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Generate("op-42", chat.SenderOperator)
	req.NoError(err)
	_, err = tokens.Validate(old)
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = tokens.Validate("not-a-jwt")
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestTokenManager_RejectsForeignAlgorithm(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager(secret, time.Hour)
	claims := &Claims{UserID: "x", Role: chat.SenderAdministrator, RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	_, err = tokens.Validate(unsigned)
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokenManager(secret, time.Hour)
	var seen Actor
	handler := Middleware(tokens, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("no token is a guest customer", func(t *testing.T) {
		req := require.New(t)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal(Guest, seen)
		req.Nil(seen.UserRef())
	})

	t.Run("bearer header", func(t *testing.T) {
		req := require.New(t)
		raw, err := tokens.Generate("mgr-1", chat.SenderManager)
		req.NoError(err)
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		r.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal(Actor{UserID: "mgr-1", Kind: chat.SenderManager}, seen)
		req.True(seen.IsStaff())
	})

	t.Run("query token for websockets", func(t *testing.T) {
		req := require.New(t)
		raw, err := tokens.Generate("cust-7", chat.SenderCustomer)
		req.NoError(err)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?topic=sessions&token="+raw, nil))
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal("cust-7", *seen.UserRef())
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		r.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		req.Equal(http.StatusUnauthorized, rec.Code)
		var body map[string]string
		req.NoError(json.NewDecoder(rec.Body).Decode(&body))
		req.Equal(errors.ErrUnauthenticated.Error(), body["error"])
	})
}

func TestUnaryInterceptor(t *testing.T) {
	tokens := NewTokenManager(secret, time.Hour)
	interceptor := UnaryInterceptor(tokens)
	echo := func(ctx context.Context, _ any) (any, error) { return ActorFrom(ctx), nil }

	t.Run("health is public", func(t *testing.T) {
		req := require.New(t)
		info := &grpc.UnaryServerInfo{FullMethod: grpc_health_v1.Health_Check_FullMethodName}
		res, err := interceptor(context.Background(), nil, info, echo)
		req.NoError(err)
		req.Equal(Guest, res)
	})

	t.Run("protected method needs a token", func(t *testing.T) {
		req := require.New(t)
		info := &grpc.UnaryServerInfo{FullMethod: "/support.Chat/Send"}
		_, err := interceptor(context.Background(), nil, info, echo)
		req.Equal(codes.Unauthenticated, status.Code(err))

		raw, err := tokens.Generate("op-1", chat.SenderOperator)
		req.NoError(err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+raw))
		res, err := interceptor(ctx, nil, info, echo)
		req.NoError(err)
		req.Equal(Actor{UserID: "op-1", Kind: chat.SenderOperator}, res)
	})
}
