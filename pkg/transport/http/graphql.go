package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/transport"
)

// handleGraphQL executes a GraphQL request. POST bodies are JSON requests
// or, with Content-Type application/graphql, a bare query document. GET
// reads query, variables and operationName from the URL and may not run
// mutations.
//
// The status is 200 whenever execution started, even if fields failed;
// 400 when the request could not be parsed or validated; 500 when the
// schema does not compile.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var (
		req *api.Request
		err error
	)
	if r.Method == http.MethodGet {
		req, err = api.RequestFromQuery(r.URL.Query())
		if err == nil && isMutation(req) {
			w.Header().Set("Allow", http.MethodPost)
			writeGraphQLError(w, http.StatusMethodNotAllowed, "mutations must use POST")
			return
		}
	} else {
		var body []byte
		if b := transport.BodyFromContext(r.Context()); b != nil {
			body = b.Raw
		} else if body, err = io.ReadAll(r.Body); err != nil {
			writeGraphQLError(w, http.StatusBadRequest, "reading request body: "+err.Error())
			return
		}
		req, err = api.DecodeRequest(r.Header.Get("Content-Type"), body)
	}
	if err != nil {
		writeGraphQLError(w, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := s.executors.BuildExecutor()
	if err != nil {
		s.logger.Error(logging.MsgSchemaCompileFailed,
			slog.String("reqId", transport.RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		transport.WriteAPIError(w, api.NewServerError("schema compilation failed"))
		return
	}

	resp := exec.Execute(r.Context(), *req)
	status := http.StatusOK
	if !resp.HasData() && len(resp.Errors) > 0 {
		status = http.StatusBadRequest
	}
	transport.WriteJSON(w, status, resp)
}

func writeGraphQLError(w http.ResponseWriter, status int, msg string) {
	transport.WriteJSON(w, status, api.Response{Errors: []api.Error{{Message: msg}}})
}

// isMutation reports whether the operation req selects is a mutation.
// Unparseable documents are left to the executor to report.
func isMutation(req *api.Request) bool {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil {
		return false
	}
	for _, op := range doc.Operations {
		if req.OperationName != "" && op.Name != req.OperationName {
			continue
		}
		if op.Operation == ast.Mutation {
			return true
		}
	}
	return false
}
