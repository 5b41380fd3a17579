// Package statickeys provides credential strategies that resolve secrets
// from a fixed key list or from the application state.
package statickeys

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/eventlog"
)

// ErrUnknownKey is returned for a key id no entry matches.
var ErrUnknownKey = errors.New("unknown key id")

// Strategy resolves secrets from configured key entries. Entries are
// copied at construction; the strategy is safe for concurrent use.
type Strategy struct {
	secrets map[string]string
}

// New creates a strategy from key entries. Secret file references must
// already be resolved (config.Load does this). Later entries with the same
// key id replace earlier ones.
func New(keys []config.KeyConfig) *Strategy {
	s := &Strategy{secrets: make(map[string]string, len(keys))}
	for _, k := range keys {
		if k.KeyID == "" {
			continue
		}
		s.secrets[k.KeyID] = k.Secret
	}
	return s
}

// Len returns the number of configured keys.
func (s *Strategy) Len() int {
	return len(s.secrets)
}

// ResolveSecret returns the secret of claimedID.
func (s *Strategy) ResolveSecret(_ context.Context, claimedID string, _ eventlog.State) (string, error) {
	secret, ok := s.secrets[claimedID]
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, claimedID)
	}
	return secret, nil
}

// FromState returns a strategy that looks secrets up in the application
// state under field, a map from key id to secret (for applications that
// manage keys through events).
func FromState(field string) *StateStrategy {
	return &StateStrategy{Field: field}
}

// StateStrategy resolves secrets from a map held in the state.
type StateStrategy struct {
	Field string
}

// ResolveSecret returns state[Field][claimedID] when it is a non-empty
// string.
func (s *StateStrategy) ResolveSecret(_ context.Context, claimedID string, state eventlog.State) (string, error) {
	keys, ok := state[s.Field].(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: %q (no %q in state)", ErrUnknownKey, claimedID, s.Field)
	}
	secret, ok := keys[claimedID].(string)
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, claimedID)
	}
	return secret, nil
}
