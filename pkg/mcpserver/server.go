package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/registry"
	"github.com/rhuss/evileye/pkg/transport"
)

// Tool name prefixes.
const (
	CommandPrefix = "command_"
	QueryPrefix   = "query_"
)

// Operations lists the operations to expose.
type Operations interface {
	Commands() []*registry.Command
	Queries() []*registry.Query
}

// Server builds MCP servers over the current set of operations.
type Server struct {
	ops    Operations
	info   registry.ServerInfo
	logger *logging.Logger
}

// New creates a Server for ops.
func New(ops Operations, info registry.ServerInfo, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{ops: ops, info: info, logger: logger}
}

// Handler returns the streamable HTTP handler. It runs stateless: every
// request gets a server listing the operations registered at that moment,
// and tool calls run with the request's identity, request id and client
// address.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.Build(requestValues(r.Context()))
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// Build returns an MCP server with one tool per operation. Tool calls run
// with the request values held by base.
func (s *Server) Build(base context.Context) *mcp.Server {
	if base == nil {
		base = context.Background()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: s.info.Name, Version: s.info.Version}, nil)

	for _, cmd := range s.ops.Commands() {
		cmd := cmd
		server.AddTool(&mcp.Tool{
			Name:        CommandPrefix + cmd.Name(),
			Description: fmt.Sprintf("Applies a %s event. Returns %s.", cmd.EventType(), cmd.ReturnType()),
			InputSchema: InputSchema(cmd.Fields()),
		}, s.handler(base, cmd.Name(), cmd.Fields(), func(ctx context.Context, args map[string]any) (any, error) {
			return cmd.Invoke(ctx, args)
		}))
	}
	for _, q := range s.ops.Queries() {
		q := q
		server.AddTool(&mcp.Tool{
			Name:        QueryPrefix + q.Name(),
			Description: fmt.Sprintf("Reads the application state. Returns %s.", q.ReturnType()),
			InputSchema: InputSchema(q.Fields()),
			Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
		}, s.handler(base, q.Name(), q.Fields(), func(ctx context.Context, args map[string]any) (any, error) {
			return q.Invoke(ctx, args, registry.ScopeFromContext(ctx))
		}))
	}
	return server
}

func (s *Server) handler(base context.Context, name string, fields []registry.Field, invoke func(context.Context, map[string]any) (any, error)) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = withValues(ctx, base)
		s.logger.Debug(logging.MsgToolCalled,
			slog.String("tool", req.Params.Name),
			slog.String("reqId", transport.RequestIDFromContext(ctx)),
			slog.String("keyId", auth.IdentityFromContext(ctx)))

		args, err := Arguments(fields, req.Params.Arguments)
		if err != nil {
			return errorResult(fmt.Errorf("%s: %w", name, err)), nil
		}
		out, err := invoke(ctx, args)
		if err != nil {
			return errorResult(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return errorResult(fmt.Errorf("encoding result: %w", err)), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

// requestValues detaches the pipeline values of ctx from its lifetime.
func requestValues(ctx context.Context) context.Context {
	return withValues(context.Background(), ctx)
}

// withValues returns ctx carrying the identity, request id and client
// address stored in from.
func withValues(ctx, from context.Context) context.Context {
	if id := auth.IdentityFromContext(from); id != "" {
		ctx = auth.SetIdentity(ctx, id)
	}
	if id := transport.RequestIDFromContext(from); id != "" {
		ctx = transport.ContextWithRequestID(ctx, id)
	}
	if addr := transport.ClientAddressFromContext(from); addr != "" {
		ctx = transport.ContextWithClientAddress(ctx, addr)
	}
	return ctx
}

// baseType strips list brackets and non-null markers: "[Int!]!" is "Int".
func baseType(t string) string {
	return strings.Trim(t, "[]!")
}

func isList(t string) bool {
	return strings.HasPrefix(strings.TrimSuffix(t, "!"), "[")
}

// elemType returns the element type of a list type.
func elemType(t string) string {
	t = strings.TrimSuffix(t, "!")
	return t[1 : len(t)-1]
}
