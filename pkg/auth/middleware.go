package auth

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/observability"
	"github.com/rhuss/evileye/pkg/transport"
)

// maxLoggedBody bounds the request body recorded with a rejection.
const maxLoggedBody = 4096

// Middleware creates the authentication stage of the request pipeline.
//
// It runs authn against the captured body (see transport.CaptureBody) and
// stores a verified identity in the context. Rejections are logged at
// verbose level with the offending header, method, path, timestamp and
// body, and the request continues anonymously. A nil authn leaves every
// request anonymous.
//
// When limiter is set, requests are then rate limited per verified
// identity, or per client address for anonymous callers. Paths in bypass
// skip the stage entirely.
func Middleware(authn Authenticator, limiter RateLimiter, logger *logging.Logger, bypass []string) transport.Middleware {
	if logger == nil {
		logger = logging.Discard()
	}
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			var body []byte
			if b := transport.BodyFromContext(ctx); b != nil {
				body = b.Raw
			}

			result := Result{Decision: Abstain}
			if authn != nil {
				result = authn.Authenticate(ctx, r, body)
			}

			switch result.Decision {
			case Verified:
				ctx = SetIdentity(ctx, result.Identity)
				observability.AuthOutcomesTotal.WithLabelValues("verified", "").Inc()
			case Rejected:
				logger.Verbose(logging.MsgInvalidAuthorization,
					slog.String("reqId", transport.RequestIDFromContext(ctx)),
					slog.String("header", r.Header.Get("Authorization")),
					slog.String("method", r.Method),
					slog.String("path", r.URL.RequestURI()),
					slog.String("timestamp", Timestamp(r)),
					slog.String("body", logging.Truncate(string(body), maxLoggedBody)),
					slog.String("reason", result.Reason),
					slog.Any("error", result.Err),
				)
				observability.AuthOutcomesTotal.WithLabelValues("rejected", result.Reason).Inc()
			default:
				observability.AuthOutcomesTotal.WithLabelValues("anonymous", "").Inc()
			}

			if limiter != nil {
				key, kind := IdentityFromContext(ctx), "identity"
				if key == "" {
					key, kind = "addr:"+clientHost(transport.ClientAddressFromContext(ctx)), "address"
				}
				if err := limiter.Allow(ctx, key); err != nil {
					logger.Warn("rate limit exceeded", slog.String("key", key))
					observability.RateLimitRejectedTotal.WithLabelValues(kind).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// clientHost reduces a forwarded-for list or host:port to the first host.
func clientHost(addr string) string {
	addr, _, _ = strings.Cut(addr, ",")
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
