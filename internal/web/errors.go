package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client gets the
// user-facing message and code from core.MapError.

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dateprobe/internal/core"
	"github.com/JonMunkholm/dateprobe/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError logs err and writes its user-facing form. A zero status is
// derived from the error with statusFor.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case core.IsUnsupportedFormat(err):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrFileNotFound), errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidFilename),
		errors.Is(err, core.ErrColumnNotFound),
		errors.Is(err, core.ErrNoHeader):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
