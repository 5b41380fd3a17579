package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/config"
	"github.com/rhuss/evileye/pkg/gateway"
)

func newDemo(t *testing.T) *gateway.Gateway {
	t.Helper()
	cfg := config.Defaults()
	gw, err := gateway.New(context.Background(), &cfg, gateway.WithInitialState(initialState()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close(context.Background()) })
	if err := registerUsers(gw); err != nil {
		t.Fatalf("registerUsers: %v", err)
	}
	return gw
}

func execute(t *testing.T, gw *gateway.Gateway, query string) (string, []api.Error) {
	t.Helper()
	exec, err := gw.Registry().BuildExecutor()
	if err != nil {
		t.Fatalf("BuildExecutor: %v", err)
	}
	resp := exec.Execute(context.Background(), api.Request{Query: query})
	data, _ := json.Marshal(resp.Data)
	return string(data), resp.Errors
}

func TestDemoUsers(t *testing.T) {
	gw := newDemo(t)

	data, errs := execute(t, gw, `mutation { addUser(username: "alfred") { id username city } }`)
	if len(errs) > 0 {
		t.Fatalf("addUser: %v", errs)
	}
	if data != `{"addUser":{"city":"Bagarmossen","id":1,"username":"alfred"}}` {
		t.Errorf("addUser = %s", data)
	}

	if data, _ := execute(t, gw, `{ getUserById(id: 1) { username } }`); data != `{"getUserById":{"username":"alfred"}}` {
		t.Errorf("getUserById(1) = %s", data)
	}

	_, errs = execute(t, gw, `{ getUserById(id: 7) { username } }`)
	if len(errs) != 1 || errs[0].Message != "No such user." {
		t.Errorf("getUserById(7) errors = %v", errs)
	}

	_, errs = execute(t, gw, `mutation { addUser(username: "alfred") { id } }`)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "Username is already taken.") {
		t.Errorf("duplicate username errors = %v", errs)
	}

	if data, _ := execute(t, gw, `{ users { username } }`); data != `{"users":[{"username":"alfred"}]}` {
		t.Errorf("users = %s", data)
	}
}
