package services

import (
	"errors"
	"fmt"

	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/store"
)

// Error kinds returned by the auth service. Callers match them with errors.Is;
// the wrapped chain carries oops context for logging.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = store.ErrDuplicateEmail
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = auth.ErrInvalidToken
	ErrUnauthorized       = errors.New("requester does not own this account")
	ErrNotFound           = store.ErrNotFound
	ErrStoreUnavailable   = store.ErrUnavailable
)

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
