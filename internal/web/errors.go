package web

// errors.go maps pipeline errors to HTTP responses.
//
// Status mapping:
//   - 400 malformed XML, bad query parameters
//   - 404 unknown profile
//   - 413 body larger than server.max_body_bytes
//   - 422 schema mismatch, invalid summed value, flatten precondition
//   - 500 anything else

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ginjaninja78/cfdi-transform/internal/converter"
	"github.com/ginjaninja78/cfdi-transform/internal/logging"
)

// Error codes that are not pipeline error types.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeTooLarge   = "too_large"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// statusError carries an explicit status for request-level problems.
type statusError struct {
	status int
	code   string
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &statusError{status: http.StatusBadRequest, code: codeBadRequest, err: err}
}

func notFound(err error) error {
	return &statusError{status: http.StatusNotFound, code: codeNotFound, err: err}
}

// classify returns the status and code for err.
func classify(err error) (int, string) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, se.code
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, codeTooLarge
	}

	switch code := converter.ErrorType(err); code {
	case converter.ErrorTypeMalformed:
		return http.StatusBadRequest, code
	case converter.ErrorTypeSchemaMismatch, converter.ErrorTypeInvalidValue, converter.ErrorTypePrecondition:
		return http.StatusUnprocessableEntity, code
	default:
		return http.StatusInternalServerError, code
	}
}

// respondError logs err and writes it as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
