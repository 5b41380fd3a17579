package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rhuss/evileye/pkg/api"
)

// Body is a fully read request body.
type Body struct {
	// Raw holds the bytes exactly as received.
	Raw []byte

	// Parsed holds the decoded JSON value, or nil when the body is empty or
	// not JSON.
	Parsed any
}

// CaptureBody returns middleware that reads the whole request body before
// continuing, stores it in the context and replaces r.Body with a fresh
// reader over the same bytes. A best-effort JSON decode fills Body.Parsed;
// a decode failure is not an error. Bodies larger than maxBytes are
// answered with 413; maxBytes <= 0 disables the limit.
func CaptureBody(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reader io.Reader = r.Body
			if maxBytes > 0 {
				reader = http.MaxBytesReader(w, r.Body, maxBytes)
			}

			raw, err := io.ReadAll(reader)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					WriteErrorResponse(w, api.NewInvalidRequestError("body", "request body too large"), http.StatusRequestEntityTooLarge)
					return
				}
				WriteAPIError(w, api.NewInvalidRequestError("body", "reading request body: "+err.Error()))
				return
			}

			body := &Body{Raw: raw}
			if len(bytes.TrimSpace(raw)) > 0 {
				var parsed any
				if json.Unmarshal(raw, &parsed) == nil {
					body.Parsed = parsed
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, r.WithContext(ContextWithBody(r.Context(), body)))
		})
	}
}
