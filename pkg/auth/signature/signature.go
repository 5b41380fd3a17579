// Package signature implements the "Signature" credential scheme.
//
// A signed request carries
//
//	Authorization: Signature keyId="<id>",algorithm="hmac-sha256",signature="<base64>"
//	Date: <RFC 1123 timestamp>        (or X-Date)
//
// where the signature is the HMAC-SHA256, keyed with the secret of keyId,
// of the string
//
//	METHOD "\n" REQUEST-URI "\n" TIMESTAMP "\n" hex(sha256(body))
//
// REQUEST-URI is the path plus query string as sent.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Scheme is the Authorization header scheme name.
const Scheme = "Signature"

// Algorithm is the only supported algorithm.
const Algorithm = "hmac-sha256"

var (
	// ErrMalformed is returned for a header that cannot be parsed.
	ErrMalformed = errors.New("malformed signature header")

	// ErrUnsupportedAlgorithm is returned for any algorithm but hmac-sha256.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrMismatch is returned when the signature does not match.
	ErrMismatch = errors.New("signature mismatch")
)

// Params are the parsed parameters of a Signature header.
type Params struct {
	KeyID     string
	Algorithm string
	Signature string
}

// String formats p as an Authorization header value.
func (p Params) String() string {
	alg := p.Algorithm
	if alg == "" {
		alg = Algorithm
	}
	return fmt.Sprintf(`%s keyId=%q,algorithm=%q,signature=%q`, Scheme, p.KeyID, alg, p.Signature)
}

// IsSignature reports whether an Authorization header uses this scheme.
func IsSignature(header string) bool {
	scheme, _, _ := strings.Cut(strings.TrimSpace(header), " ")
	return strings.EqualFold(scheme, Scheme)
}

// Parse parses a Signature Authorization header. keyId and signature are
// required; algorithm defaults to hmac-sha256.
func Parse(header string) (Params, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, Scheme) {
		return Params{}, fmt.Errorf("%w: scheme %q", ErrMalformed, scheme)
	}

	var p Params
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Params{}, fmt.Errorf("%w: parameter %q", ErrMalformed, part)
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.TrimSpace(key) {
		case "keyId":
			p.KeyID = value
		case "algorithm":
			p.Algorithm = strings.ToLower(value)
		case "signature":
			p.Signature = value
		}
	}

	if p.KeyID == "" {
		return Params{}, fmt.Errorf("%w: missing keyId", ErrMalformed)
	}
	if p.Signature == "" {
		return Params{}, fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	if p.Algorithm == "" {
		p.Algorithm = Algorithm
	}
	if p.Algorithm != Algorithm {
		return Params{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, p.Algorithm)
	}
	return p, nil
}

// SigningString builds the string that is signed for a request.
func SigningString(method, requestURI, timestamp string, body []byte) string {
	sum := sha256.Sum256(body)
	return strings.ToUpper(method) + "\n" + requestURI + "\n" + timestamp + "\n" + hex.EncodeToString(sum[:])
}

// Sign returns the base64 encoded signature of a request.
func Sign(secret, method, requestURI, timestamp string, body []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, method, requestURI, timestamp, body))
}

// Verify checks sig against the request in constant time.
func Verify(secret, method, requestURI, timestamp string, body []byte, sig string) error {
	got, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrMalformed)
	}
	if !hmac.Equal(got, mac(secret, method, requestURI, timestamp, body)) {
		return ErrMismatch
	}
	return nil
}

func mac(secret, method, requestURI, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(SigningString(method, requestURI, timestamp, body)))
	return h.Sum(nil)
}
