package auth

import (
	"context"

	"support-chat/domain/chat"
)

// Actor is the caller of a request. Guests are customers without a user id.
type Actor struct {
	UserID string
	Kind   chat.SenderKind
}

var Guest = Actor{Kind: chat.SenderCustomer}

func (a Actor) IsStaff() bool {
	return a.Kind.IsStaff()
}

// UserRef is the optional author reference stored on messages.
func (a Actor) UserRef() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}

type contextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the guest actor when none was attached.
func ActorFrom(ctx context.Context) Actor {
	if actor, ok := ctx.Value(contextKey{}).(Actor); ok {
		return actor
	}
	return Guest
}

func actorFromClaims(claims *Claims) Actor {
	return Actor{UserID: claims.UserID, Kind: claims.Role}
}
