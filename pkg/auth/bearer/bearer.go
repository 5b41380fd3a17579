// Package bearer provides a second credential scheme next to request
// signatures: an HS256 JWT in an "Authorization: Bearer" header.
//
// The token's kid header is the claimed key id. Its secret is resolved
// through the same auth.Negotiator as signature verification, so one set
// of strategies serves both schemes.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/eventlog"
)

// ErrMissingKeyID is returned for tokens without a kid header.
var ErrMissingKeyID = errors.New("token missing kid header")

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	// Negotiator resolves the secret of the token's kid. Required.
	Negotiator *auth.Negotiator

	// State returns the state handed to strategies. May be nil.
	State func() eventlog.State

	// Leeway is the allowed clock skew for exp, nbf and iat.
	Leeway time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Authenticate extracts the bearer token and validates it.
//
// Decision outcomes:
//   - Abstain: no Authorization header, not a Bearer scheme, or no
//     strategy registered
//   - Rejected: token present but invalid (expired, bad signature, unknown kid)
//   - Verified: valid token; the identity is its kid
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, _ []byte) auth.Result {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || a.Negotiator.Len() == 0 {
		return auth.Result{Decision: auth.Abstain}
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenStr == "" {
		return auth.Reject(errors.New("empty bearer token"), auth.ReasonMalformedHeader)
	}

	var (
		keyID      string
		resolveErr error
	)
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrMissingKeyID
		}
		keyID = kid

		var state eventlog.State
		if a.State != nil {
			state = a.State()
		}
		secret, err := a.Negotiator.ResolveSecret(ctx, kid, state)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		return []byte(secret), nil
	}, a.parserOptions()...)

	switch {
	case resolveErr != nil:
		return auth.Reject(fmt.Errorf("resolving secret for %q: %w", keyID, resolveErr), auth.ReasonUnknownKey)
	case errors.Is(err, ErrMissingKeyID), errors.Is(err, jwtlib.ErrTokenMalformed):
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err), auth.ReasonMalformedHeader)
	case errors.Is(err, jwtlib.ErrTokenExpired), errors.Is(err, jwtlib.ErrTokenNotValidYet), errors.Is(err, jwtlib.ErrTokenUsedBeforeIssued):
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err), auth.ReasonClockSkew)
	case err != nil:
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err), auth.ReasonBadSignature)
	case !token.Valid:
		return auth.Reject(errors.New("invalid JWT"), auth.ReasonBadSignature)
	}

	return auth.Result{Decision: auth.Verified, Identity: keyID}
}

// parserOptions builds JWT parser options.
func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuedAt(),
	}
	if a.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(a.Leeway))
	}
	if a.Now != nil {
		opts = append(opts, jwtlib.WithTimeFunc(a.Now))
	}
	return opts
}

// Issue returns an HS256 token for keyID valid for ttl from now.
func Issue(keyID, secret string, ttl time.Duration, now time.Time) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   keyID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	})
	token.Header["kid"] = keyID
	return token.SignedString([]byte(secret))
}
