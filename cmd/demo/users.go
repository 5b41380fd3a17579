package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rhuss/evileye/pkg/auth/statickeys"
	"github.com/rhuss/evileye/pkg/eventlog"
	"github.com/rhuss/evileye/pkg/gateway"
	"github.com/rhuss/evileye/pkg/registry"
)

const userTypeDefs = `
type User {
  id: Int!
  username: String!
  city: String!
}
`

var (
	errNoSuchUser    = errors.New("No such user.")
	errNoUsers       = errors.New("No users in db.")
	errUsernameTaken = errors.New("Username is already taken.")
)

// initialState starts with no users. DEMO_API_SECRET, when set, is the
// secret of the "demo" key.
func initialState() eventlog.State {
	keys := map[string]any{}
	if secret := os.Getenv("DEMO_API_SECRET"); secret != "" {
		keys["demo"] = secret
	}
	return eventlog.State{"users": []any{}, "apiKeys": keys}
}

var userAdded = &eventlog.Definition{
	Type: "UserAdded",
	Props: []eventlog.Prop{
		{Name: "username", Type: "String!", Description: "Unique login name"},
	},
	Validate: func(props map[string]any, state eventlog.State) error {
		name, _ := props["username"].(string)
		if strings.TrimSpace(name) == "" {
			return errors.New("username must not be blank")
		}
		for _, u := range usersOf(state) {
			if u["username"] == name {
				return errUsernameTaken
			}
		}
		return nil
	},
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
		if m, ok := u.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func idOf(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return -1
}

// registerUsers wires the user directory into gw. Signed requests are
// verified against the apiKeys map of the state.
func registerUsers(gw *gateway.Gateway) error {
	if err := gw.AddTypeDefs(userTypeDefs); err != nil {
		return err
	}

	getLastUser, err := gw.NewQuery("getLastUser", nil, func(_ context.Context, _ map[string]any, scope *registry.Scope) (any, error) {
		users := usersOf(scope.State)
		if len(users) == 0 {
			return nil, errNoUsers
		}
		return users[len(users)-1], nil
	}, "User")
	if err != nil {
		return err
	}
	if _, err := gw.RegisterCommand("addUser", userAdded, getLastUser); err != nil {
		return err
	}

	_, err = gw.RegisterQuery("getUserById", []registry.Field{{Name: "id", Type: "Int!"}},
		func(_ context.Context, args map[string]any, scope *registry.Scope) (any, error) {
			id := idOf(args["id"])
			for _, u := range usersOf(scope.State) {
				if idOf(u["id"]) == id {
					return u, nil
				}
			}
			return nil, errNoSuchUser
		}, "User")
	if err != nil {
		return err
	}

	_, err = gw.RegisterQuery("users", nil, func(_ context.Context, _ map[string]any, scope *registry.Scope) (any, error) {
		return usersOf(scope.State), nil
	}, "[User!]!")
	if err != nil {
		return err
	}

	return gw.Use(statickeys.FromState("apiKeys"))
}
