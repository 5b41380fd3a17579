package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// idleTimeout is how long a key's limiter is kept after its last request.
const idleTimeout = 10 * time.Minute

// InProcessLimiter is a token bucket rate limiter per key, kept in memory.
type InProcessLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*limiterEntry
	calls   int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInProcessLimiter creates a limiter allowing requestsPerMinute per key,
// with bursts of the same size. A value <= 0 disables limiting.
func NewInProcessLimiter(requestsPerMinute int) *InProcessLimiter {
	return &InProcessLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute,
		now:     time.Now,
		entries: make(map[string]*limiterEntry, 256),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, key string) error {
	if l.burst <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%1024 == 0 {
		l.prune(now)
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	if !e.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

func (l *InProcessLimiter) prune(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > idleTimeout {
			delete(l.entries, key)
		}
	}
}
