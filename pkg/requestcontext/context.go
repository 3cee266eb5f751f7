// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	actor := requestcontext.ActorID(ctx)
package requestcontext

import (
	"context"

	"jornada/pkg/domain"
)

type (
	requestIDKey struct{}
	actorIDKey   struct{}
	clientIPKey  struct{}
)

// RequestID returns the correlation ID of the current request, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ActorID returns the back-office user acting on the request. The zero value
// means the driver acted through the mobile app.
func ActorID(ctx context.Context) domain.UserID {
	if v, ok := ctx.Value(actorIDKey{}).(domain.UserID); ok {
		return v
	}
	return domain.UserID{}
}

func WithActorID(ctx context.Context, actor domain.UserID) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actor)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}
