package eventlog

import (
	"errors"
	"fmt"
	"strings"
)

// Prop declares one event property. Type is a GraphQL input type
// reference such as "String!", "Int" or "[String!]"; a trailing "!"
// makes the prop required.
type Prop struct {
	Name        string
	Type        string
	Description string
}

// Required reports whether the prop must be present.
func (p Prop) Required() bool {
	return strings.HasSuffix(p.Type, "!")
}

// Definition describes an event type.
type Definition struct {
	// Type is the event type name, e.g. "UserAdded".
	Type string

	// Props lists the event's properties in declaration order. Commands
	// derived from the definition take these as their input fields.
	Props []Prop

	// Validate runs before anything is written. It may be nil.
	Validate func(props map[string]any, state State) error

	// Project folds the event into state and returns the new state. It
	// receives a private copy of the current state and may modify it.
	Project func(state State, props map[string]any, position int64) (State, error)
}

func (d *Definition) check() error {
	if d == nil {
		return errors.New("nil definition")
	}
	if d.Type == "" {
		return errors.New("definition has no type")
	}
	if d.Project == nil {
		return fmt.Errorf("definition %q has no projection", d.Type)
	}
	seen := make(map[string]bool, len(d.Props))
	for _, p := range d.Props {
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("definition %q has a prop without name or type", d.Type)
		}
		if seen[p.Name] {
			return fmt.Errorf("definition %q declares prop %q twice", d.Type, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// checkProps enforces the declared props: required ones must be present
// and non-null, undeclared ones are rejected.
func (d *Definition) checkProps(props map[string]any) error {
	declared := make(map[string]bool, len(d.Props))
	for _, p := range d.Props {
		declared[p.Name] = true
		if v, ok := props[p.Name]; p.Required() && (!ok || v == nil) {
			return fmt.Errorf("%w: %s: missing required prop %q", ErrValidation, d.Type, p.Name)
		}
	}
	for name := range props {
		if !declared[name] {
			return fmt.Errorf("%w: %s: unknown prop %q", ErrValidation, d.Type, name)
		}
	}
	return nil
}
