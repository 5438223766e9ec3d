package testutil

import (
	"context"
	"time"

	domain "baseproof/pkg/domain"
	"baseproof/pkg/requestcontext"
)

// Ctx returns a context carrying an authenticated actor and a pinned clock,
// matching what the middleware chain provides in production.
func Ctx(actor domain.Address, at time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithTime(ctx, at)
}

// AnonymousCtx returns a context with a pinned clock and no actor.
func AnonymousCtx(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}
