// Package httpapi serves the metrics exposition and operational endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"
)

type jsonError struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSONError writes an error payload tagged with the request id set by
// WithRequestID, if any.
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code, details string) {
	body := jsonError{Error: code, Details: details}
	if r != nil {
		body.RequestID = RequestIDFromContext(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
