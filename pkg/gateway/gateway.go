package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/auth/bearer"
	"github.com/rhuss/evileye/pkg/auth/signature"
	"github.com/rhuss/evileye/pkg/auth/statickeys"
	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/logging/slack"
	"github.com/rhuss/evileye/pkg/mcpserver"
	"github.com/rhuss/evileye/pkg/observability"
	"github.com/rhuss/evileye/pkg/registry"
	"github.com/rhuss/evileye/pkg/storage/memory"
	"github.com/rhuss/evileye/pkg/storage/postgres"
	"github.com/rhuss/evileye/pkg/storage/sqlite"
	transporthttp "github.com/rhuss/evileye/pkg/transport/http"
)

// ErrNoConfiguration is returned by New for a nil configuration.
var ErrNoConfiguration = errors.New("gateway: no configuration")

// Gateway is the public facade of a running application.
type Gateway struct {
	cfg        config.Config
	logger     *logging.Logger
	ownsLogger bool

	log        *eventlog.Log
	registry   *registry.Registry
	negotiator *auth.Negotiator
	server     *transporthttp.Server

	mu       sync.Mutex
	initial  eventlog.State
	replayed bool
	closed   bool
}

type options struct {
	logger  *logging.Logger
	backend eventlog.Backend
	initial eventlog.State
}

// Option configures a Gateway.
type Option func(*options)

// WithLogger replaces the logger built from the configuration. The
// caller keeps ownership: Close does not close it.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend replaces the event log backend selected by the configuration.
func WithBackend(b eventlog.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithInitialState sets the state the event log starts from.
func WithInitialState(s eventlog.State) Option {
	return func(o *options) { o.initial = s }
}

// New builds a Gateway. cfg is copied, completed with stage defaults and
// validated. Nothing is bound and the event log is not replayed until
// Listen.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNoConfiguration
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := *cfg
	c.ApplyStageDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	g := &Gateway{cfg: c, initial: eventlog.Clone(o.initial)}

	g.logger = o.logger
	if g.logger == nil {
		l, err := newLogger(c)
		if err != nil {
			return nil, err
		}
		g.logger = l
		g.ownsLogger = true
	}

	backend := o.backend
	if backend == nil {
		b, err := openBackend(ctx, c, g.logger)
		if err != nil {
			g.closeLogger()
			return nil, err
		}
		backend = b
	}

	g.log = eventlog.New(backend, g.initial, eventlog.WithLogger(g.logger))
	g.log.OnProjection(recordProjection)

	g.registry = registry.New(g.log,
		registry.WithLogger(g.logger),
		registry.WithServerInfo(registry.ServerInfo{Name: c.Name, Version: c.Version}))

	g.negotiator = auth.NewNegotiator()
	if len(c.Auth.Keys) > 0 {
		if err := g.Use(statickeys.New(c.Auth.Keys)); err != nil {
			g.log.Close()
			g.closeLogger()
			return nil, err
		}
	}

	serverOpts := []transporthttp.ServerOption{
		transporthttp.WithConfig(c.Server),
		transporthttp.WithLogger(g.logger),
		transporthttp.WithAuthenticator(g.authenticator()),
	}
	if c.RateLimit.Enabled {
		serverOpts = append(serverOpts, transporthttp.WithRateLimiter(auth.NewInProcessLimiter(c.RateLimit.RequestsPerMinute)))
	}
	if c.Server.MCP.Enabled {
		mcp := mcpserver.New(g.registry, registry.ServerInfo{Name: c.Name, Version: c.Version}, g.logger)
		serverOpts = append(serverOpts, transporthttp.WithMCPHandler(mcp.Handler()))
	}
	g.server = transporthttp.NewServer(g.registry, serverOpts...)

	g.logger.Debug(logging.MsgConfiguration, slog.String("config", c.String()))
	return g, nil
}

func (g *Gateway) authenticator() auth.Authenticator {
	chain := auth.AuthChain{
		Authenticators: []auth.Authenticator{&signature.Authenticator{
			Negotiator: g.negotiator,
			State:      g.log.State,
			MaxSkew:    g.cfg.Auth.MaxClockSkew,
		}},
	}
	if g.cfg.Auth.Bearer.Enabled {
		chain.Authenticators = append(chain.Authenticators, &bearer.Authenticator{
			Negotiator: g.negotiator,
			State:      g.log.State,
			Leeway:     g.cfg.Auth.MaxClockSkew,
		})
	}
	return &chain
}

func newLogger(c config.Config) (*logging.Logger, error) {
	lc := logging.Config{
		Level:          logging.ParseLevel(c.Log.Level),
		ConsoleLevel:   logging.ParseLevel(c.Log.ConsoleLevel),
		DisableConsole: c.Stage == config.StageTest,
		File:           c.Log.File,
	}
	chatOps := c.Log.SlackWebhook != "" && c.Stage != config.StageTest
	if chatOps {
		lc.Handlers = append(lc.Handlers, slack.New(slack.Config{
			WebhookURL: c.Log.SlackWebhook,
			Channel:    c.Log.SlackChannel,
			Username:   c.Name + " " + c.Version,
		}))
	}

	l, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if !chatOps {
		l.Verbose(logging.MsgNoChatOps)
	}
	return l, nil
}

func openBackend(ctx context.Context, c config.Config, logger *logging.Logger) (eventlog.Backend, error) {
	switch c.EventLog.Type {
	case config.EventLogSQLite:
		s, err := sqlite.Open(c.EventLog.Path)
		if err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		return s, nil
	case config.EventLogPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:      c.EventLog.Postgres.DSN,
			MaxConns: c.EventLog.Postgres.MaxConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

func recordProjection(p eventlog.Projection) {
	observability.EventsTotal.WithLabelValues(p.Type, observability.Status(p.Err)).Inc()
	if p.Err == nil {
		observability.EventLogPosition.Set(float64(p.Position))
	}
}

// RegisterCommand registers a command. See registry.Registry.RegisterCommand.
func (g *Gateway) RegisterCommand(name string, def *eventlog.Definition, shaper *registry.Query) (*registry.Command, error) {
	return g.registry.RegisterCommand(name, def, shaper)
}

// RegisterQuery registers a query. See registry.Registry.RegisterQuery.
func (g *Gateway) RegisterQuery(name string, fields []registry.Field, fn registry.QueryFunc, returnType string) (*registry.Query, error) {
	return g.registry.RegisterQuery(name, fields, fn, returnType)
}

// NewQuery builds a query that is not exposed, for use as a command's
// shaper.
func (g *Gateway) NewQuery(name string, fields []registry.Field, fn registry.QueryFunc, returnType string) (*registry.Query, error) {
	return g.registry.NewQuery(name, fields, fn, returnType)
}

// AddTypeDefs adds GraphQL type definitions.
func (g *Gateway) AddTypeDefs(fragments ...string) error {
	return g.registry.AddTypeDefs(fragments...)
}

// AddResolver sets the resolver of typeName.fieldName.
func (g *Gateway) AddResolver(typeName, fieldName string, fn registry.Resolver) error {
	return g.registry.AddResolver(typeName, fieldName, fn)
}

// Use registers an auth strategy with the negotiator.
func (g *Gateway) Use(s auth.Strategy) error {
	if err := g.negotiator.Register(s); err != nil {
		return err
	}
	g.logger.Verbose(logging.MsgStrategyRegistered, slog.Int("strategies", g.negotiator.Len()))
	return nil
}

// Handle registers a pass-through route. See transporthttp.Server.Handle.
func (g *Gateway) Handle(method, pattern string, h http.Handler) {
	g.server.Handle(method, pattern, h)
}

// Static serves dir under prefix.
func (g *Gateway) Static(prefix, dir string) {
	g.server.Static(prefix, dir)
}

// Registry returns the operation registry.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Logger returns the gateway's logger.
func (g *Gateway) Logger() *logging.Logger { return g.logger }

// Config returns the effective configuration.
func (g *Gateway) Config() config.Config { return g.cfg }

// State returns the current application state. Callers must treat it as
// read-only.
func (g *Gateway) State() eventlog.State { return g.log.State() }

// Position returns the position of the last applied event.
func (g *Gateway) Position() int64 { return g.log.Position() }

// Port returns the bound port, 0 before Listen.
func (g *Gateway) Port() int { return g.server.Port() }

// Listen replays the event log on first call and starts serving. It
// returns the bound port.
func (g *Gateway) Listen(ctx context.Context) (int, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0, transporthttp.ErrServerClosed
	}
	if !g.replayed {
		if err := g.log.Replay(ctx); err != nil {
			g.mu.Unlock()
			return 0, fmt.Errorf("replaying event log: %w", err)
		}
		g.replayed = true
	}
	g.mu.Unlock()

	port, err := g.server.Listen(ctx)
	if err != nil {
		return 0, err
	}
	g.logger.Info(logging.MsgStarted, g.processAttrs(slog.Int("port", port))...)
	return port, nil
}

// Close stops the server, waiting for in-flight requests as configured,
// then closes the event log and the logger. Close is idempotent.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	var errs []error
	if err := g.server.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := g.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing event log: %w", err))
	}
	g.logger.Info(logging.MsgStopped, g.processAttrs()...)
	g.closeLogger()
	return errors.Join(errs...)
}

// Restart discards every event and resets the state to the initial
// state, or to initial when given. It fails with eventlog.ErrDurableLog
// on a durable event log.
func (g *Gateway) Restart(ctx context.Context, initial ...eventlog.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(initial) > 0 && initial[0] != nil {
		g.initial = eventlog.Clone(initial[0])
	}
	return g.log.Restart(ctx, g.initial)
}

func (g *Gateway) closeLogger() {
	if g.ownsLogger {
		g.logger.Close()
	}
}

func (g *Gateway) processAttrs(extra ...any) []any {
	host, _ := os.Hostname()
	attrs := []any{
		slog.Int("pid", os.Getpid()),
		slog.String("hostname", host),
		slog.String("name", g.cfg.Name),
		slog.String("version", g.cfg.Version),
	}
	return append(attrs, extra...)
}
