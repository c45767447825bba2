package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("appointment not found")
	ErrConflict   = errors.New("the selected time slot is no longer available")
	ErrValidation = errors.New("validation failed")
)

// ValidationError names the offending field. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
