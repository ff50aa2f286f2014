// Package errs defines the sentinel errors shared by the store, service and
// transport layers. Callers match them with errors.Is and errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the targeted issue does not exist.
	ErrNotFound = errors.New("issue not found")

	// ErrConflict means an issue with the same id already exists.
	ErrConflict = errors.New("issue already exists")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
