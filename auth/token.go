package auth

import (
	"fmt"
	"time"

	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIssuer   = "support-chat"
	DefaultTokenTTL = 24 * time.Hour
)

// Claims carries who is calling and on which side of the conversation.
type Claims struct {
	UserID string          `json:"user_id"`
	Role   chat.SenderKind `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and checks HS256 tokens with a shared secret.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), issuer: DefaultIssuer, ttl: ttl, now: time.Now}
}

// Generate issues a token for userID acting as role.
func (m *TokenManager) Generate(userID string, role chat.SenderKind) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", errors.ErrValidation)
	}
	if !role.Valid() || role == chat.SenderSystem {
		return "", errors.ErrInvalidSender
	}
	now := m.now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate checks signature, expiry and issuer. Every failure is ErrUnauthenticated.
func (m *TokenManager) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.UserID == "" || !claims.Role.Valid() || claims.Role == chat.SenderSystem {
		return nil, errors.ErrUnauthenticated
	}
	return claims, nil
}
