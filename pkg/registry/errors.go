package registry

import "errors"

var (
	// ErrSchemaCompilation is returned by BuildExecutor when the
	// accumulated definitions do not form a valid schema.
	ErrSchemaCompilation = errors.New("schema compilation failed")

	// ErrInvalidName is returned for operation, field or type names that
	// are not valid GraphQL names.
	ErrInvalidName = errors.New("invalid name")

	// ErrNilDefinition is returned when a command has no event definition.
	ErrNilDefinition = errors.New("nil event definition")

	// ErrMalformedFragment is returned by AddTypeDefs for text that does
	// not parse as SDL.
	ErrMalformedFragment = errors.New("malformed schema fragment")

	// ErrNilResolver is returned by AddResolver and RegisterQuery for a
	// nil function.
	ErrNilResolver = errors.New("nil resolver")
)
