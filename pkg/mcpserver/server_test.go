package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/registry"
	"github.com/rhuss/evileye/pkg/storage/memory"
)

func newUsersRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	log := eventlog.New(memory.New(), nil)
	t.Cleanup(func() { log.Close() })
	reg := registry.New(log, registry.WithServerInfo(registry.ServerInfo{Name: "mcp-test", Version: "1.0.0"}))

	def := &eventlog.Definition{
		Type: "UserAdded",
		Props: []eventlog.Prop{
			{Name: "username", Type: "String!", Description: "Login name"},
			{Name: "age", Type: "Int"},
		},
		Project: func(state eventlog.State, props map[string]any, position int64) (eventlog.State, error) {
			users, _ := state["users"].([]any)
			state["users"] = append(users, map[string]any{"id": position, "username": props["username"]})
			return state, nil
		},
	}
	if _, err := reg.RegisterCommand("addUser", def, nil); err != nil {
		t.Fatal(err)
	}
	_, err := reg.RegisterQuery("countUsers", nil, func(_ context.Context, _ map[string]any, scope *registry.Scope) (any, error) {
		users, _ := scope.State["users"].([]any)
		return len(users), nil
	}, "Int!")
	if err != nil {
		t.Fatal(err)
	}
	_, err = reg.RegisterQuery("whoCalls", []registry.Field{{Name: "times", Type: "Int!"}}, func(_ context.Context, args map[string]any, scope *registry.Scope) (any, error) {
		if _, ok := args["times"].(int); !ok {
			return nil, errors.New("times is not an int")
		}
		return scope.Identity, nil
	}, "String!")
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// connect runs srv over in-memory transports and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("CallTool %s: %d content entries", name, len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool %s: content is %T", name, res.Content[0])
	}
	return tc.Text, res.IsError
}

func TestListTools(t *testing.T) {
	s := New(newUsersRegistry(t), registry.ServerInfo{Name: "mcp-test", Version: "1.0.0"}, nil)
	session := connect(t, s.Build(context.Background()))

	res, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{"command_addUser", "query_countUsers", "query_whoCalls"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestCallTools(t *testing.T) {
	reg := newUsersRegistry(t)
	s := New(reg, registry.ServerInfo{Name: "mcp-test"}, nil)
	session := connect(t, s.Build(auth.SetIdentity(context.Background(), "client-1")))

	text, isErr := callText(t, session, "command_addUser", map[string]any{"username": "jdoe", "age": 42})
	if isErr {
		t.Fatalf("addUser failed: %s", text)
	}
	var applied struct {
		Position int64  `json:"position"`
		Type     string `json:"type"`
	}
	if err := json.Unmarshal([]byte(text), &applied); err != nil {
		t.Fatalf("result %q: %v", text, err)
	}
	if applied.Position != 1 || applied.Type != "UserAdded" {
		t.Errorf("applied = %+v", applied)
	}

	if text, _ := callText(t, session, "query_countUsers", nil); text != "1" {
		t.Errorf("countUsers = %s, want 1", text)
	}
	if text, isErr := callText(t, session, "query_whoCalls", map[string]any{"times": 3}); isErr || text != `"client-1"` {
		t.Errorf("whoCalls = %s (error %v), want the session identity", text, isErr)
	}
}

func TestCallToolErrors(t *testing.T) {
	s := New(newUsersRegistry(t), registry.ServerInfo{Name: "mcp-test"}, nil)
	session := connect(t, s.Build(context.Background()))

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing required", "command_addUser", map[string]any{"age": 1}},
		{"fractional int", "query_whoCalls", map[string]any{"times": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if text, isErr := callText(t, session, tt.tool, tt.args); !isErr {
				t.Errorf("got result %s, want a tool error", text)
			}
		})
	}
}

func TestToolsFollowRegistrations(t *testing.T) {
	reg := newUsersRegistry(t)
	s := New(reg, registry.ServerInfo{Name: "mcp-test"}, nil)

	_, err := reg.RegisterQuery("late", nil, func(context.Context, map[string]any, *registry.Scope) (any, error) {
		return "here", nil
	}, "String")
	if err != nil {
		t.Fatal(err)
	}
	session := connect(t, s.Build(context.Background()))
	if text, _ := callText(t, session, "query_late", nil); text != `"here"` {
		t.Errorf("late = %s", text)
	}
}

func TestHandlerCarriesRequestIdentity(t *testing.T) {
	s := New(newUsersRegistry(t), registry.ServerInfo{Name: "mcp-test"}, nil)
	h := s.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(auth.SetIdentity(r.Context(), "http-client")))
	}))
	defer ts.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: ts.URL}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	if text, isErr := callText(t, session, "query_whoCalls", map[string]any{"times": 1}); isErr || text != `"http-client"` {
		t.Errorf("whoCalls = %s (error %v)", text, isErr)
	}
}
