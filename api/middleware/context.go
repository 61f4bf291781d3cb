package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/scope"
)

type contextKey string

const (
	ctxActor  contextKey = "actor"
	ctxBrand  contextKey = "current_brand"
	ctxAccess contextKey = "brand_access"
)

// ActorFromContext returns the authenticated caller, or false when the
// request never passed the Auth middleware.
func ActorFromContext(ctx context.Context) (rbac.Actor, bool) {
	if ctx == nil {
		return rbac.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(rbac.Actor)
	return actor, ok
}

// CurrentBrand returns the resolved brand for the request, nil when the
// caller has no brand selected.
func CurrentBrand(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(ctxBrand).(uuid.UUID); ok {
		return &id
	}
	return nil
}

// AccessFromContext returns the caller's brand visibility tier.
func AccessFromContext(ctx context.Context) scope.Access {
	if ctx == nil {
		return scope.Access{}
	}
	if access, ok := ctx.Value(ctxAccess).(scope.Access); ok {
		return access
	}
	return scope.Access{}
}

// WithActor injects the authenticated caller into the context.
func WithActor(ctx context.Context, actor rbac.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// WithBrand injects the resolved brand into the context.
func WithBrand(ctx context.Context, brandID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBrand, brandID)
}

// WithAccess injects the caller's brand visibility into the context.
func WithAccess(ctx context.Context, access scope.Access) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccess, access)
}
