// internal/domain/validation/error.go

package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Error reports invalid input, detected before any I/O
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// New creates a new validation error
func New(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// Required returns a validation error when value is blank
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return New(field, "is required")
	}
	return nil
}

// Is reports whether err carries a validation error
func Is(err error) bool {
	var v *Error
	return errors.As(err, &v)
}
