package netconfig

import (
	"errors"
	"fmt"
)

// ValidationError reports a configuration UI submission that cannot be stored
type ValidationError struct {
	Field   string // Form field name
	Message string // Human-readable error message
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("Validation Error: %s", e.Message)
	}
	return fmt.Sprintf("Validation Error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a form field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
