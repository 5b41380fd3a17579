package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/logging"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "a,b,c,handler" {
		t.Errorf("order = %s, want a,b,c,handler", got)
	}
}

func TestCaptureBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantParsed bool
	}{
		{"json object", `{"query":"{ serverName }"}`, true},
		{"json array", `[1,2]`, true},
		{"not json", `username=alfred`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *Body
			var downstream []byte
			h := CaptureBody(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = BodyFromContext(r.Context())
				downstream, _ = io.ReadAll(r.Body)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("POST", "/graphql", strings.NewReader(tt.body)))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if captured == nil {
				t.Fatal("body not captured")
			}
			if string(captured.Raw) != tt.body {
				t.Errorf("Raw = %q, want %q", captured.Raw, tt.body)
			}
			if (captured.Parsed != nil) != tt.wantParsed {
				t.Errorf("Parsed = %#v, wantParsed %v", captured.Parsed, tt.wantParsed)
			}
			if !bytes.Equal(downstream, []byte(tt.body)) {
				t.Errorf("downstream read %q, want body replayed", downstream)
			}
		})
	}
}

func TestCaptureBodyTooLarge(t *testing.T) {
	called := false
	h := CaptureBody(8)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("0123456789abcdef")))

	if called {
		t.Error("handler should not run for an oversized body")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Errorf("request id = %q, want inbound header", seen)
	}
	if rec.Header().Get(HeaderRequestID) != "abc-123" {
		t.Errorf("response header = %q, want echoed id", rec.Header().Get(HeaderRequestID))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	first := seen
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if first == "" || first == seen {
		t.Errorf("generated ids %q and %q should be non-empty and distinct", first, seen)
	}
	if len(first) != 36 {
		t.Errorf("generated id %q is not a UUID", first)
	}
}

func TestClientAddress(t *testing.T) {
	var seen string
	h := ClientAddress()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientAddressFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "10.0.0.7:5555" {
		t.Errorf("address = %q, want remote addr", seen)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "203.0.113.9, 10.0.0.1" {
		t.Errorf("address = %q, want forwarded-for header", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/graphql", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Type != api.ErrorTypeServerError {
		t.Errorf("error type = %q, want server_error", resp.Error.Type)
	}
}

func TestLoggingIncludesKeyID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: logging.LevelSilly, ConsoleLevel: logging.LevelSilly, Console: &buf})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}

	identity := func(context.Context) string { return "client-1" }
	h := Chain(RequestID(), ClientAddress(), Logging(logger, identity))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/graphql?query=x", nil))

	out := buf.String()
	for _, want := range []string{logging.MsgIncomingRequest, "keyId=client-1", "method=GET", "reqId="} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAPIErrorStatus(t *testing.T) {
	tests := []struct {
		err  *api.APIError
		want int
	}{
		{api.NewInvalidRequestError("q", "bad"), http.StatusBadRequest},
		{api.NewNotFoundError("x"), http.StatusNotFound},
		{api.NewForbiddenError("x"), http.StatusForbidden},
		{api.NewTooManyRequestsError("x"), http.StatusTooManyRequests},
		{api.NewServerError("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteAPIError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.err.Type, rec.Code, tt.want)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: content type = %q", tt.err.Type, ct)
		}
	}
}
