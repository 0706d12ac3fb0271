package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/entries"
	"github.com/nerrad567/gray-logic-shutters/internal/statebus"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "service_unavailable"
	ErrCodeCommand      = "command_failed"
)

// msgNoController is the response for covers no entry manages.
const msgNoController = "no controller found for cover"

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps cover and entries errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cover.ErrNoController):
		writeNotFound(w, msgNoController)
	case errors.Is(err, entries.ErrEntryNotFound):
		writeNotFound(w, "entry not found")
	case errors.Is(err, entries.ErrInvalidOptions), errors.Is(err, entries.ErrInvalidEntry):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, cover.ErrCalibrationInProgress):
		writeError(w, http.StatusConflict, ErrCodeConflict, "calibration already in progress")
	case errors.Is(err, cover.ErrPositionUnknown):
		writeError(w, http.StatusConflict, ErrCodeConflict, "cover does not report a position")
	case errors.Is(err, cover.ErrMissingDependency):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, statebus.ErrAckTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeCommand, err.Error())
	case errors.Is(err, statebus.ErrCommandFailed), errors.Is(err, statebus.ErrNotStarted):
		writeError(w, http.StatusBadGateway, ErrCodeCommand, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
