package api

import (
	"encoding/json"
	"net/http"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
)

const problemContentType = "application/problem+json"

// writeProblem writes problem as an RFC 7807 "application/problem+json"
// response with its own Status as the HTTP status code (spec.md §6's
// status-code table).
func writeProblem(w http.ResponseWriter, problem *validation.RFC7807Problem) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// writeJSON writes v as a normal application/json response with the
// given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes r's body into dst, returning a validation problem
// ready to write on failure.
func decodeJSON(r *http.Request, dst interface{}) *validation.RFC7807Problem {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return validation.NewValidationErrorProblem("request", map[string]string{"body": err.Error()})
	}
	return nil
}
