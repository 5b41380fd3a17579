package transport

import (
	"context"
	"net/http"
)

// Middleware wraps an http.Handler to add one pipeline stage.
type Middleware func(http.Handler) http.Handler

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type (
	requestIDKeyType     struct{}
	clientAddressKeyType struct{}
	bodyKeyType          struct{}
)

var (
	requestIDKey     = requestIDKeyType{}
	clientAddressKey = clientAddressKeyType{}
	bodyKey          = bodyKeyType{}
)

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ClientAddressFromContext extracts the client address from the context.
func ClientAddressFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(clientAddressKey).(string); ok {
		return addr
	}
	return ""
}

// ContextWithClientAddress returns a new context with the given client address.
func ContextWithClientAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddressKey, addr)
}

// BodyFromContext returns the captured request body, or nil when the body
// was not captured.
func BodyFromContext(ctx context.Context) *Body {
	if b, ok := ctx.Value(bodyKey).(*Body); ok {
		return b
	}
	return nil
}

// ContextWithBody returns a new context carrying b.
func ContextWithBody(ctx context.Context, b *Body) context.Context {
	return context.WithValue(ctx, bodyKey, b)
}
