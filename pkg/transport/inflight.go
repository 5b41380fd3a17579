package transport

import (
	"context"
	"net/http"
	"sync"
)

// InFlightRegistry holds a cancel function for every request currently
// being served, so a forced shutdown can abort them.
type InFlightRegistry struct {
	mu      sync.Mutex
	next    uint64
	cancels map[uint64]context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{cancels: make(map[uint64]context.CancelFunc)}
}

// add registers cancel and returns the function that unregisters it.
func (r *InFlightRegistry) add(cancel context.CancelFunc) (remove func()) {
	r.mu.Lock()
	r.next++
	token := r.next
	r.cancels[token] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.cancels, token)
		r.mu.Unlock()
	}
}

// CancelAll cancels every tracked request and reports how many there were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
	n := len(r.cancels)
	clear(r.cancels)
	return n
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Track returns middleware that gives every request a cancellable context
// and keeps it registered until the handler returns.
func (r *InFlightRegistry) Track() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx, cancel := context.WithCancel(req.Context())
			defer cancel()
			defer r.add(cancel)()
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
