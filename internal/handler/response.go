package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "question not found with id abc123"}
//
// The "error" field is the stable kind from apperror.Kind; clients branch on
// it. The "message" field is for humans and may change.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/stackit/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest legal body is a question
// with a maximum-length description.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable kind (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is returned by operations that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body is written; once Encode
// writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an apperror kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// errors.As() walks the chain, so an AppError wrapped with fmt.Errorf("...: %w")
// still gets its own status and message. Anything that is not an AppError
// is reported as a generic 500: raw driver messages may contain SQL or file
// paths and never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperror.Kind(err)
	status := statusFor(kind)

	message := "An internal error occurred"
	var cause error
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		cause = appErr.Cause
	}

	if status >= http.StatusInternalServerError && logger != nil {
		attrs := []any{slog.String("kind", kind), slog.String("error", err.Error())}
		if cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
		logger.Error("request failed", attrs...)
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// decodeJSON reads the request body into dst. A malformed or oversized body
// is a validation error, reported like any other.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "request body is not valid JSON")
	}
	return nil
}
