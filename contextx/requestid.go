// Package contextx carries request-scoped values through the client.
package contextx

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader is the header the client sends the request ID in.
const RequestIDHeader = "X-Request-ID"

// WithRequestID returns a derived context that carries the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID stored in ctx.
// It returns an empty string when no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// EnsureRequestID returns ctx unchanged if it already carries a request ID,
// otherwise a derived context with a fresh random one.
func EnsureRequestID(ctx context.Context) context.Context {
	if RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}
