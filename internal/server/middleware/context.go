package middleware

import (
	"context"

	"github.com/gosuda/dossier/internal/domain"
)

type contextKey string

const ContextKeyActor contextKey = "actor"

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	v, ok := ctx.Value(ContextKeyActor).(domain.Actor)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return "", false
	}
	return a.Role, true
}
