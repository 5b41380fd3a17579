package registry

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/eventlog"
)

// Executor runs requests against one compiled schema. It is immutable
// and safe for concurrent use.
type Executor struct {
	schema     graphql.Schema
	generation uint64
}

// Execute runs req. Operation failures are reported as error entries of
// the response, never as a Go error.
func (e *Executor) Execute(ctx context.Context, req api.Request) *api.Response {
	result := graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	resp := &api.Response{Data: result.Data, Extensions: result.Extensions}
	for _, fe := range result.Errors {
		entry := api.Error{
			Message:    fe.Message,
			Path:       fe.Path,
			Extensions: fe.Extensions,
		}
		for _, loc := range fe.Locations {
			entry.Locations = append(entry.Locations, api.Location{Line: loc.Line, Column: loc.Column})
		}
		resp.Errors = append(resp.Errors, entry)
	}
	return resp
}

// Error codes reported in the "code" extension of operation errors.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeProjectionFailed = "PROJECTION_FAILED"
	CodeUnknownEventType = "UNKNOWN_EVENT_TYPE"
	CodeUnavailable      = "UNAVAILABLE"
)

// codedError adds an error code extension to a resolver error.
type codedError struct {
	err  error
	code string
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

// Extensions is read by graphql-go when formatting the error.
func (e *codedError) Extensions() map[string]any {
	return map[string]any{"code": e.code}
}

func wrapError(err error) error {
	var code string
	switch {
	case errors.Is(err, eventlog.ErrValidation):
		code = CodeValidationFailed
	case errors.Is(err, eventlog.ErrProjection):
		code = CodeProjectionFailed
	case errors.Is(err, eventlog.ErrUnknownEventType):
		code = CodeUnknownEventType
	case errors.Is(err, eventlog.ErrClosed):
		code = CodeUnavailable
	default:
		return err
	}
	return &codedError{err: err, code: code}
}
