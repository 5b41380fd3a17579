package http

import (
	"net/http"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/transport"
)

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, Date, X-Date, X-Request-ID, Mcp-Session-Id"
)

// corsMiddleware answers preflight requests and rejects requests whose
// Origin is not in origins with 403. "*" allows any origin. Requests
// without an Origin header pass unchanged.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowAll && !originSet[origin] {
				transport.WriteAPIError(w, api.NewForbiddenError("origin not allowed"))
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
