// Package integration runs complete gateways in-process and exercises
// them over HTTP.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/evileye/pkg/auth"
	"github.com/rhuss/evileye/pkg/auth/signature"
	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/gateway"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/registry"
)

// syncBuffer collects log output written from request goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testApp is a gateway listening on a free port.
type testApp struct {
	gw   *gateway.Gateway
	base string
	logs *syncBuffer
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// newApp creates a gateway with the users application registered.
// configure may adjust the configuration before construction.
func newApp(t *testing.T, configure func(*config.Config)) *testApp {
	t.Helper()
	cfg := config.Defaults()
	cfg.Name = "integration"
	cfg.Version = "1.0.0"
	cfg.Server.CandidatePorts = []int{freePort(t)}
	cfg.Server.ShutdownTimeout = time.Second
	if configure != nil {
		configure(&cfg)
	}

	logs := &syncBuffer{}
	logger, err := logging.New(logging.Config{
		Level:        logging.LevelSilly,
		ConsoleLevel: logging.LevelSilly,
		Console:      logs,
	})
	if err != nil {
		t.Fatal(err)
	}

	gw, err := gateway.New(context.Background(), &cfg,
		gateway.WithLogger(logger),
		gateway.WithInitialState(eventlog.State{"users": []any{}}))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	t.Cleanup(func() {
		gw.Close(context.Background())
		logger.Close()
	})

	err = gw.Use(auth.StrategyFunc(func(_ context.Context, id string, _ eventlog.State) (string, error) {
		if id == "johndoe" {
			return "topsecret", nil
		}
		return "", errors.New("No such user.")
	}))
	if err != nil {
		t.Fatal(err)
	}
	registerUsers(t, gw)

	return &testApp{gw: gw, logs: logs}
}

// listen starts serving and records the base URL.
func (a *testApp) listen(t *testing.T) *testApp {
	t.Helper()
	port, err := a.gw.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	a.base = "http://127.0.0.1:" + strconv.Itoa(port)
	return a
}

var userAdded = &eventlog.Definition{
	Type:  "UserAdded",
	Props: []eventlog.Prop{{Name: "username", Type: "String!"}},
	Project: func(state eventlog.State, props map[string]any, position int64) (eventlog.State, error) {
		users, _ := state["users"].([]any)
		state["users"] = append(users, map[string]any{
			"id":       position,
			"username": props["username"],
			"city":     "Bagarmossen",
		})
		return state, nil
	},
}

func usersOf(state eventlog.State) []map[string]any {
	list, _ := state["users"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, u := range list {
		out = append(out, u.(map[string]any))
	}
	return out
}

func registerUsers(t *testing.T, gw *gateway.Gateway) {
	t.Helper()
	if err := gw.AddTypeDefs(`type User { id: Int! username: String! city: String! }`); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.RegisterCommand("addUser", userAdded, nil); err != nil {
		t.Fatal(err)
	}
	_, err := gw.RegisterQuery("getUserById", []registry.Field{{Name: "id", Type: "Int!"}},
		func(_ context.Context, args map[string]any, scope *registry.Scope) (any, error) {
			for _, u := range usersOf(scope.State) {
				if u["id"] == int64(args["id"].(int)) {
					return u, nil
				}
			}
			return nil, errors.New("No such user.")
		}, "User")
	if err != nil {
		t.Fatal(err)
	}
}

type gqlResult struct {
	Status int
	Data   map[string]any
	Errors []struct {
		Message    string         `json:"message"`
		Extensions map[string]any `json:"extensions"`
	}
}

// signer adds authentication headers to a request with its body.
type signer func(r *http.Request, body []byte)

func signedAs(keyID, secret string) signer {
	return func(r *http.Request, body []byte) {
		signature.SignRequest(r, keyID, secret, body, time.Now())
	}
}

func (a *testApp) graphql(t *testing.T, query string, vars map[string]any, sign signer) gqlResult {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("POST", a.base+"/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		sign(req, body)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /graphql: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	out := gqlResult{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
	return out
}
