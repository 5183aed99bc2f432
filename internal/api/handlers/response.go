package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/manru/manru-be/internal/services"
)

// Error codes of the JSON error body.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeError maps a service error onto its status and stable code. Internal
// details never reach the client.
func writeError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("Request failed")
	}
	writeErrorCode(w, status, code, message)
}

func classify(err error) (int, string, string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, CodeValidation, verr.Error()
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, CodeValidation, "invalid request"
	case errors.Is(err, services.ErrDuplicateEmail):
		return http.StatusBadRequest, CodeDuplicateEmail, "a user with this email already exists"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"
	case errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, "missing or invalid token"
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized, "not allowed to act on this account"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "user not found"
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable, "storage temporarily unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}

// Unauthorized answers requests whose bearer token is missing or rejected.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, services.ErrInvalidToken)
}

// NotFound answers unknown routes with the JSON error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorCode(w, http.StatusNotFound, CodeNotFound, "route not found")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return false
	}
	return true
}
