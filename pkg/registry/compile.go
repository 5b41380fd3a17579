package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	gqlast "github.com/graphql-go/graphql/language/ast"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// builtinScalars maps the standard scalars onto their graphql-go types.
var builtinScalars = map[string]graphql.Type{
	"String":  graphql.String,
	"Int":     graphql.Int,
	"Float":   graphql.Float,
	"Boolean": graphql.Boolean,
	"ID":      graphql.ID,
}

// compile merges the snapshot's SDL, validates it and builds an
// executable schema with the snapshot's resolvers attached.
func compile(s snapshot) (*Executor, error) {
	shadowed := map[string]map[string]bool{CommandType: {}, QueryType: {}}
	for _, c := range s.commands {
		shadowed[CommandType][c.name] = true
	}
	for _, q := range s.queries {
		shadowed[QueryType][q.name] = true
	}
	sources := []*ast.Source{{Name: "builtin", Input: builtinSDL(shadowed)}}
	for i, frag := range s.typeDefs {
		sources = append(sources, &ast.Source{Name: fmt.Sprintf("fragment %d", i+1), Input: frag})
	}
	if len(s.commands) > 0 {
		ops := make([]operation, len(s.commands))
		for i, c := range s.commands {
			ops[i] = c.operation()
		}
		sources = append(sources, &ast.Source{Name: "commands", Input: extendSDL(CommandType, ops)})
	}
	if len(s.queries) > 0 {
		ops := make([]operation, len(s.queries))
		for i, q := range s.queries {
			ops[i] = q.operation()
		}
		sources = append(sources, &ast.Source{Name: "queries", Input: extendSDL(QueryType, ops)})
	}

	doc, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompilation, err)
	}

	c := &converter{
		doc:       doc,
		resolvers: s.resolvers,
		types:     make(map[string]graphql.Type, len(doc.Types)),
	}
	schema, err := c.schema()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompilation, err)
	}
	return &Executor{schema: schema, generation: s.generation}, nil
}

// converter turns a validated gqlparser schema into graphql-go types.
type converter struct {
	doc       *ast.Schema
	resolvers map[string]map[string]Resolver
	types     map[string]graphql.Type
}

func (c *converter) schema() (graphql.Schema, error) {
	names := make([]string, 0, len(c.doc.Types))
	for name := range c.doc.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	var named []graphql.Type
	for _, name := range names {
		def := c.doc.Types[name]
		if def.BuiltIn {
			if t, ok := builtinScalars[name]; ok {
				c.types[name] = t
			}
			continue
		}

		t, err := c.define(def)
		if err != nil {
			return graphql.Schema{}, err
		}
		c.types[name] = t
		named = append(named, t)
	}

	cfg := graphql.SchemaConfig{Types: named}
	if c.doc.Query == nil {
		return graphql.Schema{}, fmt.Errorf("schema has no query type")
	}
	cfg.Query = c.types[c.doc.Query.Name].(*graphql.Object)
	if c.doc.Mutation != nil {
		cfg.Mutation = c.types[c.doc.Mutation.Name].(*graphql.Object)
	}
	return graphql.NewSchema(cfg)
}

func (c *converter) define(def *ast.Definition) (graphql.Type, error) {
	switch def.Kind {
	case ast.Scalar:
		return graphql.NewScalar(graphql.ScalarConfig{
			Name:         def.Name,
			Description:  def.Description,
			Serialize:    func(v any) any { return v },
			ParseValue:   func(v any) any { return v },
			ParseLiteral: literal,
		}), nil

	case ast.Enum:
		values := make(graphql.EnumValueConfigMap, len(def.EnumValues))
		for _, v := range def.EnumValues {
			values[v.Name] = &graphql.EnumValueConfig{
				Value:             v.Name,
				Description:       v.Description,
				DeprecationReason: deprecation(v.Directives),
			}
		}
		return graphql.NewEnum(graphql.EnumConfig{
			Name:        def.Name,
			Description: def.Description,
			Values:      values,
		}), nil

	case ast.Object:
		return graphql.NewObject(graphql.ObjectConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields:      graphql.FieldsThunk(func() graphql.Fields { return c.fields(def) }),
			Interfaces: graphql.InterfacesThunk(func() []*graphql.Interface {
				out := make([]*graphql.Interface, 0, len(def.Interfaces))
				for _, name := range def.Interfaces {
					out = append(out, c.types[name].(*graphql.Interface))
				}
				return out
			}),
		}), nil

	case ast.Interface:
		return graphql.NewInterface(graphql.InterfaceConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields:      graphql.FieldsThunk(func() graphql.Fields { return c.fields(def) }),
			ResolveType: c.resolveType(def.Name),
		}), nil

	case ast.Union:
		return graphql.NewUnion(graphql.UnionConfig{
			Name:        def.Name,
			Description: def.Description,
			Types: graphql.UnionTypesThunk(func() []*graphql.Object {
				out := make([]*graphql.Object, 0, len(def.Types))
				for _, name := range def.Types {
					out = append(out, c.types[name].(*graphql.Object))
				}
				return out
			}),
			ResolveType: c.resolveType(def.Name),
		}), nil

	case ast.InputObject:
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
				fields := make(graphql.InputObjectConfigFieldMap, len(def.Fields))
				for _, f := range def.Fields {
					fields[f.Name] = &graphql.InputObjectFieldConfig{
						Type:         c.typeRef(f.Type),
						Description:  f.Description,
						DefaultValue: defaultValue(f.DefaultValue),
					}
				}
				return fields
			}),
		}), nil

	default:
		return nil, fmt.Errorf("type %s: %s types are not supported", def.Name, strings.ToLower(string(def.Kind)))
	}
}

// resolveType picks the concrete object of an interface or union value:
// the name returned by the type's __resolveType resolver if one is
// installed, otherwise the value's "__typename" key.
func (c *converter) resolveType(name string) graphql.ResolveTypeFn {
	custom := c.resolvers[name][ResolveTypeField]
	return func(p graphql.ResolveTypeParams) *graphql.Object {
		var typeName string
		if custom != nil {
			ctx := p.Context
			if ctx == nil {
				ctx = context.Background()
			}
			if out, err := custom(ctx, ResolveParams{Source: p.Value, Scope: ScopeFromContext(ctx)}); err == nil {
				typeName, _ = out.(string)
			}
		} else if m, ok := p.Value.(map[string]any); ok {
			typeName, _ = m[TypenameKey].(string)
		}
		obj, _ := c.types[typeName].(*graphql.Object)
		return obj
	}
}

func (c *converter) fields(def *ast.Definition) graphql.Fields {
	resolvers := c.resolvers[def.Name]
	fields := make(graphql.Fields, len(def.Fields))
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}

		field := &graphql.Field{
			Name:              f.Name,
			Type:              c.typeRef(f.Type),
			Description:       f.Description,
			DeprecationReason: deprecation(f.Directives),
		}
		if len(f.Arguments) > 0 {
			field.Args = make(graphql.FieldConfigArgument, len(f.Arguments))
			for _, a := range f.Arguments {
				field.Args[a.Name] = &graphql.ArgumentConfig{
					Type:         c.typeRef(a.Type),
					Description:  a.Description,
					DefaultValue: defaultValue(a.DefaultValue),
				}
			}
		}
		if fn, ok := resolvers[f.Name]; ok {
			field.Resolve = fieldResolver(fn)
		}
		fields[f.Name] = field
	}
	return fields
}

// typeRef resolves a type reference. The schema is validated, so every
// named type exists.
func (c *converter) typeRef(t *ast.Type) graphql.Type {
	var out graphql.Type
	if t.Elem != nil {
		out = graphql.NewList(c.typeRef(t.Elem))
	} else {
		out = c.types[t.NamedType]
	}
	if t.NonNull {
		out = graphql.NewNonNull(out)
	}
	return out
}

func fieldResolver(fn Resolver) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		ctx := p.Context
		if ctx == nil {
			ctx = context.Background()
		}
		out, err := fn(ctx, ResolveParams{Source: p.Source, Args: p.Args, Scope: ScopeFromContext(ctx)})
		if err != nil {
			return nil, wrapError(err)
		}
		return out, nil
	}
}

func deprecation(directives ast.DirectiveList) string {
	d := directives.ForName("deprecated")
	if d == nil {
		return ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func defaultValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}

// literal converts an inline value for a custom scalar.
func literal(v gqlast.Value) any {
	switch v := v.(type) {
	case *gqlast.StringValue:
		return v.Value
	case *gqlast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
	case *gqlast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
	case *gqlast.BooleanValue:
		return v.Value
	case *gqlast.EnumValue:
		return v.Value
	case *gqlast.ListValue:
		out := make([]any, 0, len(v.Values))
		for _, e := range v.Values {
			out = append(out, literal(e))
		}
		return out
	case *gqlast.ObjectValue:
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name.Value] = literal(f.Value)
		}
		return out
	}
	return nil
}
