package transport

import (
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID carries the correlation ID in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestID returns middleware that assigns a correlation ID to each
// request: the inbound X-Request-ID header when present, otherwise a fresh
// UUID. The ID is stored in the context and echoed in the response header.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

// ClientAddress returns middleware that records the caller's address: the
// X-Forwarded-For header as sent, or the connection's remote address.
func ClientAddress() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := r.Header.Get("X-Forwarded-For")
			if addr == "" {
				addr = r.RemoteAddr
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClientAddress(r.Context(), addr)))
		})
	}
}
