package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the resolved caller on the context.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the caller, or a guest when no token was presented.
func ActorFromContext(ctx context.Context) auth.Actor {
	if ctx == nil {
		return auth.Guest()
	}
	if actor, ok := ctx.Value(ctxActor).(auth.Actor); ok {
		return actor
	}
	return auth.Guest()
}

func UserIDFromContext(ctx context.Context) string {
	actor := ActorFromContext(ctx)
	if actor.UserID == uuid.Nil {
		return ""
	}
	return actor.UserID.String()
}

func RoleFromContext(ctx context.Context) enums.Role {
	return ActorFromContext(ctx).Role
}
