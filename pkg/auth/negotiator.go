package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/observability"
)

// Strategy resolves a claimed key id to the secret it signs with. state is
// the current application state, for strategies that keep keys there.
// Strategies may be called concurrently and must not share mutable state
// without synchronization.
type Strategy interface {
	ResolveSecret(ctx context.Context, claimedID string, state eventlog.State) (string, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, claimedID string, state eventlog.State) (string, error)

// ResolveSecret calls f.
func (f StrategyFunc) ResolveSecret(ctx context.Context, claimedID string, state eventlog.State) (string, error) {
	return f(ctx, claimedID, state)
}

// Negotiator holds an ordered, append-only list of strategies.
type Negotiator struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewNegotiator creates a negotiator with no strategies.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Register appends s. It fails with ErrStrategyNotCallable for a nil
// strategy.
func (n *Negotiator) Register(s Strategy) error {
	if s == nil {
		return ErrStrategyNotCallable
	}
	if f, ok := s.(StrategyFunc); ok && f == nil {
		return ErrStrategyNotCallable
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.strategies = append(n.strategies, s)
	return nil
}

// Len returns the number of registered strategies. A nil Negotiator has
// none.
func (n *Negotiator) Len() int {
	if n == nil {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.strategies)
}

type outcome struct {
	secret string
	err    error
}

// ResolveSecret resolves claimedID to a secret.
//
// With no strategies it fails with ErrNoStrategyRegistered. A single
// strategy is called directly and its error returned unchanged. Two or
// more run concurrently: the first to succeed wins and the others'
// contexts are cancelled, their results discarded. Only when every
// strategy has failed does the call fail, with ErrAllStrategiesFailed.
func (n *Negotiator) ResolveSecret(ctx context.Context, claimedID string, state eventlog.State) (string, error) {
	n.mu.RLock()
	strategies := make([]Strategy, len(n.strategies))
	copy(strategies, n.strategies)
	n.mu.RUnlock()

	switch len(strategies) {
	case 0:
		observability.NegotiationsTotal.WithLabelValues("none", "failed").Inc()
		return "", ErrNoStrategyRegistered
	case 1:
		secret, err := strategies[0].ResolveSecret(ctx, claimedID, state)
		observability.NegotiationsTotal.WithLabelValues("single", result(err)).Inc()
		return secret, err
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so abandoned strategies never block.
	results := make(chan outcome, len(strategies))
	for _, s := range strategies {
		go func() {
			results <- call(raceCtx, s, claimedID, state)
		}()
	}

	for range strategies {
		select {
		case o := <-results:
			if o.err == nil {
				observability.NegotiationsTotal.WithLabelValues("race", "ok").Inc()
				return o.secret, nil
			}
		case <-ctx.Done():
			observability.NegotiationsTotal.WithLabelValues("race", "failed").Inc()
			return "", ctx.Err()
		}
	}

	observability.NegotiationsTotal.WithLabelValues("race", "failed").Inc()
	return "", ErrAllStrategiesFailed
}

// call runs one raced strategy, turning a panic into a failure so a
// misbehaving strategy cannot take the process down from its goroutine.
func call(ctx context.Context, s Strategy, claimedID string, state eventlog.State) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: fmt.Errorf("strategy panicked: %v", r)}
		}
	}()
	secret, err := s.ResolveSecret(ctx, claimedID, state)
	return outcome{secret: secret, err: err}
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
