package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/observability"
)

// Root type names.
const (
	CommandType = "Command"
	QueryType   = "Query"
)

// ResolveTypeField is the pseudo field under which AddResolver installs the
// type resolver of an interface or union. The resolver receives the value
// as Source and returns the name of its object type. Without one, map
// values name their type under TypenameKey.
const (
	ResolveTypeField = "__resolveType"
	TypenameKey      = "__typename"
)

// ResolveParams are the inputs of a field resolver.
type ResolveParams struct {
	// Source is the parent value, nil for root fields.
	Source any

	// Args holds the field arguments, coerced to their declared types.
	Args map[string]any

	// Scope carries the caller identity and request values.
	Scope *Scope
}

// Resolver computes the value of one field.
type Resolver func(ctx context.Context, p ResolveParams) (any, error)

// ServerInfo is reported by the serverName and serverVersion queries.
type ServerInfo struct {
	Name    string
	Version string
}

// Registry accumulates operations, type definitions and resolvers.
// It is safe for concurrent use.
type Registry struct {
	log    *eventlog.Log
	logger *logging.Logger
	info   ServerInfo

	mu         sync.RWMutex
	commands   map[string]*Command
	queries    map[string]*Query
	typeDefs   []string
	resolvers  map[string]map[string]Resolver
	generation uint64

	// compileMu serializes compilation so concurrent first requests
	// compile once.
	compileMu sync.Mutex
	cached    *Executor
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for registration and compile messages and
// the target of the built-in log mutation.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithServerInfo sets the values of the serverName and serverVersion
// queries.
func WithServerInfo(info ServerInfo) Option {
	return func(r *Registry) { r.info = info }
}

// New creates a registry whose commands apply events to log.
func New(log *eventlog.Log, opts ...Option) *Registry {
	r := &Registry{
		log:       log,
		logger:    logging.Discard(),
		commands:  make(map[string]*Command),
		queries:   make(map[string]*Query),
		resolvers: make(map[string]map[string]Resolver),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.installBuiltins()
	return r
}

// AddTypeDefs appends SDL fragments, for example output types of
// queries. Each fragment must parse on its own; whether the fragments are
// consistent with each other is checked by BuildExecutor.
func (r *Registry) AddTypeDefs(fragments ...string) error {
	for i, frag := range fragments {
		if _, err := parser.ParseSchema(&ast.Source{Name: fmt.Sprintf("fragment %d", i+1), Input: frag}); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFragment, err)
		}
	}

	r.mu.Lock()
	r.typeDefs = append(r.typeDefs, fragments...)
	r.generation++
	r.mu.Unlock()

	if r.logger.SillyEnabled() {
		for _, frag := range fragments {
			r.logger.Silly(logging.MsgFragmentAdded, slog.String("typeDef", frag))
		}
	}
	return nil
}

// AddResolver installs or replaces the resolver of typeName.fieldName.
func (r *Registry) AddResolver(typeName, fieldName string, fn Resolver) error {
	if !validName(typeName) || (fieldName != ResolveTypeField && !validName(fieldName)) {
		return fmt.Errorf("%w: %s.%s", ErrInvalidName, typeName, fieldName)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s.%s", ErrNilResolver, typeName, fieldName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.setResolverLocked(typeName, fieldName, fn)
	return nil
}

func (r *Registry) setResolverLocked(typeName, fieldName string, fn Resolver) {
	fields, ok := r.resolvers[typeName]
	if !ok {
		fields = make(map[string]Resolver)
		r.resolvers[typeName] = fields
	}
	fields[fieldName] = fn
	r.generation++
}

// Commands returns the registered commands ordered by name.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Queries returns the registered queries ordered by name.
func (r *Registry) Queries() []*Query {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Query, 0, len(r.queries))
	for _, q := range r.queries {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Command returns the command registered under name.
func (r *Registry) Command(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Query returns the query registered under name.
func (r *Registry) Query(name string) (*Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[name]
	return q, ok
}

// BuildExecutor returns an executor for the current registrations. The
// result is cached until the next registration; a failed compilation is
// not cached.
func (r *Registry) BuildExecutor() (*Executor, error) {
	r.mu.RLock()
	cached, gen := r.cached, r.generation
	r.mu.RUnlock()
	if cached != nil && cached.generation == gen {
		return cached, nil
	}

	r.compileMu.Lock()
	defer r.compileMu.Unlock()

	r.mu.RLock()
	if r.cached != nil && r.cached.generation == r.generation {
		cached := r.cached
		r.mu.RUnlock()
		return cached, nil
	}
	snap := r.snapshotLocked()
	r.mu.RUnlock()

	exec, err := compile(snap)
	observability.SchemaCompilationsTotal.WithLabelValues(observability.Status(err)).Inc()
	if err != nil {
		r.logger.Error(logging.MsgSchemaCompileFailed, slog.Any("error", err))
		return nil, err
	}
	r.logger.Debug(logging.MsgSchemaCompiled,
		slog.Int("commands", len(snap.commands)), slog.Int("queries", len(snap.queries)),
		slog.Int("fragments", len(snap.typeDefs)))

	r.mu.Lock()
	if r.generation == exec.generation {
		r.cached = exec
	}
	r.mu.Unlock()
	return exec, nil
}

// snapshot is an immutable copy of the registrations.
type snapshot struct {
	generation uint64
	commands   []*Command
	queries    []*Query
	typeDefs   []string
	resolvers  map[string]map[string]Resolver
}

func (r *Registry) snapshotLocked() snapshot {
	s := snapshot{
		generation: r.generation,
		typeDefs:   append([]string(nil), r.typeDefs...),
		resolvers:  make(map[string]map[string]Resolver, len(r.resolvers)),
	}
	for _, c := range r.commands {
		s.commands = append(s.commands, c)
	}
	for _, q := range r.queries {
		s.queries = append(s.queries, q)
	}
	sort.Slice(s.commands, func(i, j int) bool { return s.commands[i].name < s.commands[j].name })
	sort.Slice(s.queries, func(i, j int) bool { return s.queries[i].name < s.queries[j].name })
	for typeName, fields := range r.resolvers {
		cp := make(map[string]Resolver, len(fields))
		for f, fn := range fields {
			cp[f] = fn
		}
		s.resolvers[typeName] = cp
	}
	return s
}
