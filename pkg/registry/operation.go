package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/observability"
)

// DefaultReturnType is the return type of commands without a shaper.
const DefaultReturnType = "Applied"

// Field is a typed input field of an operation.
type Field = eventlog.Prop

// QueryFunc reads state. args holds the field arguments; scope is never
// nil and always carries a state.
type QueryFunc func(ctx context.Context, args map[string]any, scope *Scope) (any, error)

// Command applies an event type.
type Command struct {
	registry *Registry
	name     string
	def      *eventlog.Definition
	shaper   *Query
}

// Name returns the command name.
func (c *Command) Name() string { return c.name }

// EventType returns the type of the event the command applies.
func (c *Command) EventType() string { return c.def.Type }

// Fields returns the input fields, the props of the event.
func (c *Command) Fields() []Field { return c.def.Props }

// ReturnType returns the shaper's return type, or DefaultReturnType.
func (c *Command) ReturnType() string {
	if c.shaper != nil {
		return c.shaper.returnType
	}
	return DefaultReturnType
}

// Invoke applies the event with props. Without a shaper it returns an
// api.Applied; with one, the shaper's result for the new state, called
// with props as its arguments.
func (c *Command) Invoke(ctx context.Context, props map[string]any) (any, error) {
	res, err := c.registry.log.Apply(ctx, eventlog.Event{Type: c.def.Type, Props: props})
	if err != nil {
		observability.OperationsTotal.WithLabelValues("command", c.name, "error").Inc()
		return nil, err
	}
	observability.OperationsTotal.WithLabelValues("command", c.name, "ok").Inc()

	if c.shaper == nil {
		return api.Applied{Position: res.Position, Type: c.def.Type}, nil
	}

	scope := ScopeFromContext(ctx)
	scope.State = res.State
	scope.Position = res.Position
	return c.shaper.Invoke(ctx, res.Props, scope)
}

// Query reads state.
type Query struct {
	registry   *Registry
	name       string
	fields     []Field
	fn         QueryFunc
	returnType string
}

// Name returns the query name.
func (q *Query) Name() string { return q.name }

// Fields returns the input fields.
func (q *Query) Fields() []Field { return q.fields }

// ReturnType returns the declared GraphQL return type.
func (q *Query) ReturnType() string { return q.returnType }

// Invoke runs the query. A nil scope, or one without a state, is given
// the live state and position.
func (q *Query) Invoke(ctx context.Context, args map[string]any, scope *Scope) (any, error) {
	s := Scope{}
	if scope != nil {
		s = *scope
	}
	if s.State == nil {
		s.State, s.Position = q.registry.log.Snapshot()
	}
	if args == nil {
		args = map[string]any{}
	}

	out, err := q.fn(ctx, args, &s)
	observability.OperationsTotal.WithLabelValues("query", q.name, observability.Status(err)).Inc()
	return out, err
}

// RegisterCommand registers the event type of def with the event log and
// exposes it as a command. shaper, when set, shapes the command's result
// and supplies its return type; it does not need to be registered as a
// query itself. A command registered under an existing name replaces it.
func (r *Registry) RegisterCommand(name string, def *eventlog.Definition, shaper *Query) (*Command, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: command %q", ErrInvalidName, name)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: command %q", ErrNilDefinition, name)
	}
	if err := checkFields(def.Props); err != nil {
		return nil, fmt.Errorf("command %q: %w", name, err)
	}
	if err := r.log.Register(def); err != nil {
		return nil, fmt.Errorf("command %q: registering event type: %w", name, err)
	}

	c := &Command{registry: r, name: name, def: def, shaper: shaper}

	r.mu.Lock()
	r.commands[name] = c
	r.setResolverLocked(CommandType, name, func(ctx context.Context, p ResolveParams) (any, error) {
		return c.Invoke(ctx, p.Args)
	})
	r.mu.Unlock()

	r.logger.Debug(logging.MsgCommandCreated, slog.String("commandName", name), slog.String("eventName", def.Type))
	if r.logger.SillyEnabled() {
		r.logger.Silly(logging.MsgFragmentAdded, slog.String("typeDef", extendSDL(CommandType, []operation{c.operation()})))
	}
	return c, nil
}

// NewQuery builds a query without exposing it, for use as a command
// shaper.
func (r *Registry) NewQuery(name string, fields []Field, fn QueryFunc, returnType string) (*Query, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: query %q", ErrInvalidName, name)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: query %q", ErrNilResolver, name)
	}
	if err := checkFields(fields); err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	if !validTypeRef(returnType) {
		return nil, fmt.Errorf("%w: query %q return type %q", ErrInvalidName, name, returnType)
	}
	return &Query{
		registry:   r,
		name:       name,
		fields:     append([]Field(nil), fields...),
		fn:         fn,
		returnType: returnType,
	}, nil
}

// RegisterQuery exposes fn as a query. A query registered under an
// existing name replaces it.
func (r *Registry) RegisterQuery(name string, fields []Field, fn QueryFunc, returnType string) (*Query, error) {
	q, err := r.NewQuery(name, fields, fn, returnType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.queries[name] = q
	r.setResolverLocked(QueryType, name, func(ctx context.Context, p ResolveParams) (any, error) {
		return q.Invoke(ctx, p.Args, p.Scope)
	})
	r.mu.Unlock()

	r.logger.Debug(logging.MsgQueryCreated, slog.String("queryName", name), slog.String("returnType", returnType))
	if r.logger.SillyEnabled() {
		r.logger.Silly(logging.MsgFragmentAdded, slog.String("typeDef", extendSDL(QueryType, []operation{q.operation()})))
	}
	return q, nil
}

// operation is the schema view of a command or query.
type operation struct {
	name       string
	fields     []Field
	returnType string
}

func (c *Command) operation() operation {
	return operation{name: c.name, fields: c.def.Props, returnType: c.ReturnType()}
}

func (q *Query) operation() operation {
	return operation{name: q.name, fields: q.fields, returnType: q.returnType}
}

// extendSDL renders an "extend type" block declaring ops as fields.
func extendSDL(typeName string, ops []operation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "extend type %s {\n", typeName)
	for _, op := range ops {
		b.WriteString("  ")
		b.WriteString(op.name)
		if len(op.fields) > 0 {
			b.WriteString("(")
			for i, f := range op.fields {
				if i > 0 {
					b.WriteString(", ")
				}
				if f.Description != "" {
					b.WriteString(quote(f.Description))
					b.WriteString(" ")
				}
				fmt.Fprintf(&b, "%s: %s", f.Name, f.Type)
			}
			b.WriteString(")")
		}
		fmt.Fprintf(&b, ": %s\n", op.returnType)
	}
	b.WriteString("}\n")
	return b.String()
}

// quote renders s as a GraphQL string literal. JSON string escapes are a
// subset of GraphQL's.
func quote(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}

func checkFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !validName(f.Name) {
			return fmt.Errorf("%w: field %q", ErrInvalidName, f.Name)
		}
		if !validTypeRef(f.Type) {
			return fmt.Errorf("%w: field %q type %q", ErrInvalidName, f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: field %q declared twice", ErrInvalidName, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func validName(s string) bool {
	return api.ValidName(s)
}

// validTypeRef accepts type references like "String", "Int!", "[User!]!".
func validTypeRef(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "!")
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return validTypeRef(s[1 : len(s)-1])
	}
	return validName(s)
}
