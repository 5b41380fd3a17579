package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// ContentTypeGraphQL is the media type of a raw query document body.
const ContentTypeGraphQL = "application/graphql"

// Request is a single GraphQL operation request.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Response is the result of executing a Request. Data is absent when
// execution could not start (parse or validation failure).
type Response struct {
	Data       any            `json:"data,omitempty"`
	Errors     []Error        `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// HasData reports whether execution produced a data object.
func (r *Response) HasData() bool {
	return r.Data != nil
}

// Error is a single GraphQL error entry.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location points into the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Applied is the default result of a command: the position the event was
// recorded at and its type.
type Applied struct {
	Position int64  `json:"position"`
	Type     string `json:"type"`
}

var errEmptyQuery = errors.New("query must not be empty")

// DecodeRequest builds a Request from a POST body. JSON bodies are decoded
// as a Request object; "application/graphql" bodies are taken as the query
// document verbatim.
func DecodeRequest(contentType string, body []byte) (*Request, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	var req Request
	if mediaType == ContentTypeGraphQL {
		req.Query = string(body)
	} else if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}

	if strings.TrimSpace(req.Query) == "" {
		return nil, errEmptyQuery
	}
	return &req, nil
}

// RequestFromQuery builds a Request from GET query parameters. Variables
// are a JSON encoded object.
func RequestFromQuery(values url.Values) (*Request, error) {
	req := Request{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errEmptyQuery
	}

	if raw := values.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return nil, fmt.Errorf("decoding variables: %w", err)
		}
	}
	return &req, nil
}
