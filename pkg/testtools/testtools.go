// Package testtools runs given/when/then scenarios against an application
// with an ephemeral event log.
//
//	testtools.Given(t, gw, eventlog.State{"users": []any{}}).
//		When(func(ctx context.Context) (any, error) {
//			return addUser.Invoke(ctx, map[string]any{"username": "alfred"})
//		}).
//		Then(func(t testing.TB, o testtools.Outcome) {
//			if o.Err != nil {
//				t.Fatal(o.Err)
//			}
//		})
package testtools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/evileye/pkg/eventlog"
)

// App is restarted before every scenario.
type App interface {
	Restart(ctx context.Context, initial ...eventlog.State) error
	State() eventlog.State
}

// Step is a precondition, typically a command invocation.
type Step func(ctx context.Context) error

// Behaviour is the action under test.
type Behaviour func(ctx context.Context) (any, error)

// Outcome is what Then checks.
type Outcome struct {
	Response any
	Err      error
	State    eventlog.State
}

// Scenario is a restarted application with its preconditions.
type Scenario struct {
	t     testing.TB
	app   App
	state eventlog.State
	steps []Step
}

// Given restarts app from state and records steps to run in order before
// the behaviour. A nil state restarts from an empty state.
func Given(t testing.TB, app App, state eventlog.State, steps ...Step) *Scenario {
	t.Helper()
	if state == nil {
		state = eventlog.State{}
	}
	return &Scenario{t: t, app: app, state: state, steps: steps}
}

// Action is a scenario with its behaviour.
type Action struct {
	scenario *Scenario
	fn       Behaviour
}

// When sets the behaviour under test.
func (s *Scenario) When(fn Behaviour) *Action {
	s.t.Helper()
	if fn == nil {
		s.t.Fatal("testtools: behaviour must not be nil")
	}
	return &Action{scenario: s, fn: fn}
}

// Then restarts the application, runs the preconditions and the
// behaviour, and hands the outcome to check. A failing precondition fails
// the test.
func (a *Action) Then(check func(t testing.TB, o Outcome)) {
	s := a.scenario
	s.t.Helper()
	ctx := context.Background()

	if err := s.app.Restart(ctx, s.state); err != nil {
		s.t.Fatalf("testtools: restart: %v", err)
	}
	for i, step := range s.steps {
		if step == nil {
			s.t.Fatalf("testtools: precondition %d is nil", i)
		}
		if err := step(ctx); err != nil {
			s.t.Fatalf("testtools: precondition %d: %v", i, err)
		}
	}

	resp, err := run(ctx, a.fn)
	if err != nil {
		resp = nil
	}
	check(s.t, Outcome{Response: resp, Err: err, State: s.app.State()})
}

// ErrPanicked wraps a panic raised by the behaviour.
var ErrPanicked = errors.New("behaviour panicked")

func run(ctx context.Context, fn Behaviour) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrPanicked, panicError(r))
		}
	}()
	return fn(ctx)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
