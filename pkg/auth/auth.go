package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision represents the three possible outcomes of authentication.
type Decision int

const (
	// Abstain means this authenticator found no credentials it handles.
	// The chain continues to the next authenticator.
	Abstain Decision = iota

	// Verified means the credentials are valid. The chain stops and the
	// claimed id becomes the identity.
	Verified

	// Rejected means credentials are present but could not be verified.
	// The chain stops; the request proceeds anonymously.
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Verified:
		return "verified"
	case Rejected:
		return "rejected"
	default:
		return "anonymous"
	}
}

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision

	// Identity is the verified key id, set only when Decision == Verified.
	Identity string

	// Err and Reason describe a rejection. Reason is a short stable label
	// for metrics; neither is ever shown to the caller.
	Err    error
	Reason string
}

// Reasons recorded for rejected credentials.
const (
	ReasonMalformedHeader = "malformed_header"
	ReasonNoStrategy      = "no_strategy"
	ReasonUnknownKey      = "unknown_key"
	ReasonBadSignature    = "bad_signature"
	ReasonClockSkew       = "clock_skew"
)

// Reject builds a rejected Result. The reason is derived from err for
// negotiation failures and taken from fallback otherwise.
func Reject(err error, fallback string) Result {
	reason := fallback
	switch {
	case errors.Is(err, ErrNoStrategyRegistered):
		reason = ReasonNoStrategy
	case errors.Is(err, ErrAllStrategiesFailed):
		reason = ReasonUnknownKey
	}
	return Result{Decision: Rejected, Err: err, Reason: reason}
}

// Authenticator examines request credentials and returns a three-outcome
// vote. body is the full raw request body.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request, body []byte) Result
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, r *http.Request, body []byte) Result

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request, body []byte) Result {
	return f(ctx, r, body)
}

// Sentinel errors.
var (
	ErrNoStrategyRegistered = errors.New("no auth strategy registered")
	ErrAllStrategiesFailed  = errors.New("all auth strategies failed")
	ErrStrategyNotCallable  = errors.New("auth strategy is not callable")
	ErrTooManyRequests      = errors.New("rate limit exceeded")
)

// AuthChain evaluates authenticators in order using three-outcome voting.
type AuthChain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator
}

// Authenticate runs the chain. Stops on the first Verified or Rejected.
// If all abstain, the request is anonymous.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request, body []byte) Result {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r, body)
		if result.Decision != Abstain {
			return result
		}
	}
	return Result{Decision: Abstain}
}

// Timestamp returns the request's signing timestamp: the X-Date header
// when set, otherwise Date.
func Timestamp(r *http.Request) string {
	if ts := r.Header.Get("X-Date"); ts != "" {
		return ts
	}
	return r.Header.Get("Date")
}
