package transport

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/logging"
)

// Recovery returns middleware that catches panics in later stages and
// answers with a 500 server error. The server continues to accept new
// requests after a panic is recovered.
func Recovery(logger *logging.Logger) Middleware {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(logging.MsgRequestPanicked,
					slog.String("reqId", RequestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("url", r.URL.String()),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				WriteAPIError(w, api.NewServerError("internal server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
