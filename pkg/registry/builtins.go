package registry

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rhuss/evileye/pkg/logging"
)

const builtinTypes = `
schema {
  mutation: Command
  query: Query
}

enum LogLevel {
  ERROR
  WARN
  INFO
  VERBOSE
  DEBUG
  SILLY
}

"The event position a command was recorded at."
type Applied {
  position: Int!
  type: String!
}
`

// builtinField is a root field served by the registry itself. A command or
// query registered under the same name replaces it.
type builtinField struct {
	name string
	sdl  string
}

var builtinFields = map[string][]builtinField{
	CommandType: {
		{"log", "log(level: LogLevel, msg: String!): Boolean"},
	},
	QueryType: {
		{"serverName", "serverName: String!"},
		{"serverVersion", "serverVersion: String!"},
		{"whoAmI", "whoAmI: String!"},
	},
}

// builtinSDL declares the built-in types and the root fields not shadowed
// by a registered operation. A root type left without built-in fields is
// declared bare; the registered operations extend it.
func builtinSDL(shadowed map[string]map[string]bool) string {
	var b strings.Builder
	b.WriteString(builtinTypes)
	for _, root := range []string{CommandType, QueryType} {
		var lines []string
		for _, f := range builtinFields[root] {
			if !shadowed[root][f.name] {
				lines = append(lines, "  "+f.sdl)
			}
		}
		b.WriteString("\ntype " + root)
		if len(lines) > 0 {
			b.WriteString(" {\n" + strings.Join(lines, "\n") + "\n}")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Registry) installBuiltins() {
	r.setResolverLocked(CommandType, "log", func(ctx context.Context, p ResolveParams) (any, error) {
		level, _ := p.Args["level"].(string)
		msg, _ := p.Args["msg"].(string)
		if level == "" {
			level = "INFO"
		}
		r.logger.Log(ctx, logging.ParseLevel(level), msg,
			slog.String("ip", p.Scope.ClientAddress),
			slog.String("reqId", p.Scope.RequestID),
			slog.String("source", "graphql"),
		)
		return true, nil
	})
	r.setResolverLocked(QueryType, "serverName", func(context.Context, ResolveParams) (any, error) {
		return r.info.Name, nil
	})
	r.setResolverLocked(QueryType, "serverVersion", func(context.Context, ResolveParams) (any, error) {
		return r.info.Version, nil
	})
	r.setResolverLocked(QueryType, "whoAmI", func(_ context.Context, p ResolveParams) (any, error) {
		return p.Scope.Identity, nil
	})
}
