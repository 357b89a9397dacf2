package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the domain layer.
var (
	// ErrNotFound indicates that a requested source or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed registry entry or request parameter.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports which field of a source or record failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with
// errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
