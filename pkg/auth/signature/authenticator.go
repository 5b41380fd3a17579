package signature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/eventlog"
)

// DefaultMaxSkew is the default allowed distance between the signed
// timestamp and the server clock.
const DefaultMaxSkew = 15 * time.Minute

// ErrClockSkew is returned when the signed timestamp is missing, invalid
// or too far from the server clock.
var ErrClockSkew = errors.New("request timestamp outside allowed skew")

// Authenticator verifies Signature headers, resolving the secret of the
// claimed key id through a Negotiator.
type Authenticator struct {
	// Negotiator resolves secrets. Required.
	Negotiator *auth.Negotiator

	// State returns the current application state handed to strategies.
	// May be nil.
	State func() eventlog.State

	// MaxSkew bounds the age of the signed timestamp. Zero disables the
	// check.
	MaxSkew time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Authenticate abstains when the request carries no Signature header or
// no strategy is registered, and otherwise verifies it.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, body []byte) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" || !IsSignature(header) {
		return auth.Result{Decision: auth.Abstain}
	}
	// Without strategies there is nothing to verify against.
	if a.Negotiator.Len() == 0 {
		return auth.Result{Decision: auth.Abstain}
	}

	params, err := Parse(header)
	if err != nil {
		return auth.Reject(err, auth.ReasonMalformedHeader)
	}

	timestamp := auth.Timestamp(r)
	if err := a.checkSkew(timestamp); err != nil {
		return auth.Reject(err, auth.ReasonClockSkew)
	}

	var state eventlog.State
	if a.State != nil {
		state = a.State()
	}
	secret, err := a.Negotiator.ResolveSecret(ctx, params.KeyID, state)
	if err != nil {
		return auth.Reject(fmt.Errorf("resolving secret for %q: %w", params.KeyID, err), auth.ReasonUnknownKey)
	}

	if err := Verify(secret, r.Method, r.URL.RequestURI(), timestamp, body, params.Signature); err != nil {
		return auth.Reject(err, auth.ReasonBadSignature)
	}
	return auth.Result{Decision: auth.Verified, Identity: params.KeyID}
}

func (a *Authenticator) checkSkew(timestamp string) error {
	if a.MaxSkew <= 0 {
		return nil
	}
	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrClockSkew, timestamp)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if d := now().Sub(ts); d > a.MaxSkew || d < -a.MaxSkew {
		return fmt.Errorf("%w: %s", ErrClockSkew, d.Round(time.Second))
	}
	return nil
}

// parseTimestamp accepts the HTTP date formats and RFC 3339, which
// browser clients produce with Date.toISOString.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := http.ParseTime(s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// SignRequest sets the Date and Authorization headers of r. body must be
// the exact bytes sent as the request body.
func SignRequest(r *http.Request, keyID, secret string, body []byte, now time.Time) {
	timestamp := now.UTC().Format(http.TimeFormat)
	r.Header.Set("Date", timestamp)
	r.Header.Set("Authorization", Params{
		KeyID:     keyID,
		Signature: Sign(secret, r.Method, r.URL.RequestURI(), timestamp, body),
	}.String())
}
