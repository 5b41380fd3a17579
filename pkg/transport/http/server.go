package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/observability"
	"github.com/rhuss/evileye/pkg/registry"
	"github.com/rhuss/evileye/pkg/transport"
)

// ExecutorSource provides the executor for each GraphQL request.
// *registry.Registry implements it.
type ExecutorSource interface {
	BuildExecutor() (*registry.Executor, error)
}

// Route is a pass-through handler for a method and chi path pattern.
// An empty method matches every method.
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
}

// Server serves the GraphQL endpoint and the pass-through routes through
// the request pipeline, and manages the listener lifecycle.
type Server struct {
	executors ExecutorSource
	config    config.ServerConfig
	logger    *logging.Logger
	authn     auth.Authenticator
	limiter   auth.RateLimiter
	mcp       http.Handler
	inflight  *transport.InFlightRegistry

	mu         sync.Mutex
	routes     []Route
	statics    []Route
	httpServer *http.Server
	listener   net.Listener
	closed     bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConfig sets the server configuration.
func WithConfig(cfg config.ServerConfig) ServerOption {
	return func(s *Server) { s.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithAuthenticator sets the authentication stage. Without one every
// request is anonymous.
func WithAuthenticator(a auth.Authenticator) ServerOption {
	return func(s *Server) { s.authn = a }
}

// WithRateLimiter enables per-caller rate limiting.
func WithRateLimiter(l auth.RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithMCPHandler mounts h at the configured MCP path when MCP is enabled.
func WithMCPHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.mcp = h }
}

// NewServer creates a server. Nothing is bound until Listen.
func NewServer(executors ExecutorSource, opts ...ServerOption) *Server {
	s := &Server{
		executors: executors,
		config:    config.Defaults().Server,
		logger:    logging.Discard(),
		inflight:  transport.NewInFlightRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.GraphQLPath == "" {
		s.config.GraphQLPath = "/graphql"
	}
	return s
}

// Handle registers a pass-through route. Routes are matched ahead of the
// built-in endpoints: a route claiming the GraphQL path and method
// replaces the built-in handler. Routes registered after Listen are not
// served.
func (s *Server) Handle(method, pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, Route{Method: strings.ToUpper(method), Pattern: pattern, Handler: h})
}

// Static serves the files below dir under the URL prefix.
func (s *Server) Static(prefix, dir string) {
	prefix = "/" + strings.Trim(prefix, "/")
	strip := strings.TrimSuffix(prefix, "/")
	pattern := strip + "/*"

	var h http.Handler = http.FileServer(http.Dir(dir))
	if strip != "" {
		h = http.StripPrefix(strip, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statics = append(s.statics, Route{Pattern: pattern, Handler: h})
}

// Handler builds the full handler: CORS, metrics, the request pipeline
// and the router.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	routes := append([]Route(nil), s.routes...)
	statics := append([]Route(nil), s.statics...)
	s.mu.Unlock()

	if s.config.StaticDir != "" {
		statics = append(statics, Route{Pattern: "/*", Handler: http.FileServer(http.Dir(s.config.StaticDir))})
	}

	r := chi.NewRouter()
	if len(s.config.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.config.CORSOrigins))
	}
	r.Use(observability.MetricsMiddleware)
	r.Use(
		transport.Recovery(s.logger),
		transport.CaptureBody(s.config.MaxBodySize),
		transport.RequestID(),
		transport.ClientAddress(),
		s.inflight.Track(),
		auth.Middleware(s.authn, s.limiter, s.logger, s.bypassPaths()),
		transport.Logging(s.logger, auth.IdentityFromContext),
	)

	claimed := make(map[string]bool)
	for _, rt := range routes {
		if rt.Method == "" {
			r.Handle(rt.Pattern, rt.Handler)
			claimed["* "+rt.Pattern] = true
			continue
		}
		r.Method(rt.Method, rt.Pattern, rt.Handler)
		claimed[rt.Method+" "+rt.Pattern] = true
	}
	for _, st := range statics {
		if !claimed["GET "+st.Pattern] && !claimed["* "+st.Pattern] {
			r.Get(st.Pattern, st.Handler.ServeHTTP)
			r.Head(st.Pattern, st.Handler.ServeHTTP)
			claimed["GET "+st.Pattern] = true
		}
	}

	primary := func(method, pattern string, h http.HandlerFunc) {
		if claimed[method+" "+pattern] || claimed["* "+pattern] {
			return
		}
		r.Method(method, pattern, h)
	}
	primary(http.MethodGet, s.config.GraphQLPath, s.handleGraphQL)
	primary(http.MethodPost, s.config.GraphQLPath, s.handleGraphQL)
	primary(http.MethodGet, "/healthz", s.handleHealth)
	if s.config.Metrics.Enabled {
		primary(http.MethodGet, s.config.Metrics.Path, promhttp.Handler().ServeHTTP)
	}
	if s.mcp != nil && s.config.MCP.Enabled && !claimed["* "+s.config.MCP.Path] {
		r.Handle(s.config.MCP.Path, s.mcp)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, api.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
	})
	return r
}

func (s *Server) bypassPaths() []string {
	paths := []string{"/healthz"}
	if s.config.Metrics.Enabled {
		paths = append(paths, s.config.Metrics.Path)
	}
	return paths
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ErrServerClosed is returned by Listen after Close.
var ErrServerClosed = errors.New("server closed")

// Listen binds the configured port, or the first free candidate port, and
// starts serving in the background. It returns the bound port.
func (s *Server) Listen(ctx context.Context) (int, error) {
	if port := s.Port(); port != 0 {
		return port, nil
	}
	handler := s.Handler()

	ln, err := bind(ctx, s.config.Port, s.config.CandidatePorts)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ln.Close()
		return 0, ErrServerClosed
	}
	if s.listener != nil {
		ln.Close()
		return s.listener.Addr().(*net.TCPAddr).Port, nil
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}
	srv := s.httpServer

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped unexpectedly", slog.Any("error", err))
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	s.logger.Verbose(logging.MsgListenOnPort, slog.Int("port", port))
	return port, nil
}

// Port returns the bound port, 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections and waits for in-flight requests up
// to the shutdown timeout or ctx's deadline. Requests still running after
// that, or all of them when ForceClose is set, are cancelled and their
// connections closed. Close is idempotent.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if !s.config.ForceClose {
		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}
		err := srv.Shutdown(shutdownCtx)
		if err == nil {
			s.logger.Verbose(logging.MsgStoppedListening)
			return nil
		}
		s.logger.Warn("graceful shutdown incomplete, forcing close", slog.Any("error", err))
	}

	if n := s.inflight.CancelAll(); n > 0 {
		s.logger.Warn("cancelled in-flight requests", slog.Int("count", n))
	}
	if err := srv.Close(); err != nil {
		return fmt.Errorf("closing server: %w", err)
	}
	s.logger.Verbose(logging.MsgStoppedListening)
	return nil
}
