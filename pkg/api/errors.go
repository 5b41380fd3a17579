package api

import (
	"fmt"
	"net/http"
)

// ErrorType is the category reported in the "type" field of an error body.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

var statusByType = map[ErrorType]int{
	ErrorTypeInvalidRequest:  http.StatusBadRequest,
	ErrorTypeNotFound:        http.StatusNotFound,
	ErrorTypeForbidden:       http.StatusForbidden,
	ErrorTypeTooManyRequests: http.StatusTooManyRequests,
}

// StatusCode returns the HTTP status for the error type. Unknown types map
// to 500.
func (t ErrorType) StatusCode() int {
	if code, ok := statusByType[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// APIError is the JSON error body the gateway answers with outside of
// GraphQL results.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// StatusCode returns the HTTP status for e.
func (e *APIError) StatusCode() int { return e.Type.StatusCode() }

// ErrorResponse is the top-level envelope: {"error": {...}}.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, param, message string) *APIError {
	return &APIError{Type: t, Param: param, Message: message}
}

// NewInvalidRequestError reports a malformed request. param names the
// offending input, if any.
func NewInvalidRequestError(param, message string) *APIError {
	return newError(ErrorTypeInvalidRequest, param, message)
}

func NewNotFoundError(message string) *APIError {
	return newError(ErrorTypeNotFound, "", message)
}

func NewServerError(message string) *APIError {
	return newError(ErrorTypeServerError, "", message)
}

// NewForbiddenError is used for requests refused before routing, such as a
// cross-origin request from an origin that is not allowed.
func NewForbiddenError(message string) *APIError {
	return newError(ErrorTypeForbidden, "", message)
}

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, "", message)
}
