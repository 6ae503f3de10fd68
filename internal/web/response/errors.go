// Package response writes JSON bodies and maps registry errors to HTTP
// status codes.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	webcontext "github.com/metagraph-dev/metagraph/internal/web/context"
	"github.com/metagraph-dev/metagraph/pkg/schema"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"` // machine-readable code
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RawJSON writes an already encoded JSON body
func RawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// Error writes an error body with an explicit status and code
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	JSON(w, status, &ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: webcontext.GetRequestID(r.Context()),
	})
}

// RenderError maps err to a status and code and writes it
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	Error(w, r, status, code, err.Error())
}

// Classify returns the HTTP status and error code for err
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, schema.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, schema.ErrDuplicateAspect), errors.Is(err, schema.ErrDuplicateEntity):
		return http.StatusConflict, "conflict"
	case errors.Is(err, schema.ErrUnknownAspect),
		errors.Is(err, schema.ErrMissingKeyAspect),
		errors.Is(err, schema.ErrInvalidField):
		return http.StatusUnprocessableEntity, "invalid_schema"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
