package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/evileye/pkg/api"
)

// WriteAPIError writes apiErr with the status its type maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, apiErr.StatusCode())
}

// WriteErrorResponse writes apiErr wrapped in api.ErrorResponse with an
// explicit status, for the few cases where the type's default does not fit
// (413 on an oversized body, for example).
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	WriteJSON(w, statusCode, api.ErrorResponse{Error: apiErr})
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
