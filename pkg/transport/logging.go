package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/evileye/pkg/logging"
)

// Logging returns middleware that logs every incoming request at debug
// level with client address, request ID, method and URL. When identity is
// non-nil and yields a non-empty value, the verified key id is logged too;
// install the middleware after authentication for that.
func Logging(logger *logging.Logger, identity func(context.Context) string) Middleware {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logger.Enabled(ctx, slog.LevelDebug) {
				attrs := []any{
					slog.String("ip", ClientAddressFromContext(ctx)),
					slog.String("reqId", RequestIDFromContext(ctx)),
					slog.String("method", r.Method),
					slog.String("url", r.URL.String()),
				}
				if identity != nil {
					if keyID := identity(ctx); keyID != "" {
						attrs = append(attrs, slog.String("keyId", keyID))
					}
				}
				logger.DebugContext(ctx, logging.MsgIncomingRequest, attrs...)
			}
			next.ServeHTTP(w, r)
		})
	}
}
