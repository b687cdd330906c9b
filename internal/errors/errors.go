// Package errors defines the service's sentinel and validation errors.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = stderrors.New("not found")

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: map[string]string{field: message},
	}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// AsValidation unwraps a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if stderrors.As(err, &v) {
		return v, true
	}
	return nil, false
}
