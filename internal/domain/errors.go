package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrRemoteUnavailable = errors.New("domain: remote unavailable")
	ErrDocumentTooLarge  = errors.New("domain: document too large")
	ErrBlobNotFound      = errors.New("domain: blob not found")
	ErrValidation        = errors.New("domain: validation failed")
	ErrStaleCache        = errors.New("domain: stale cache")
	ErrUnauthorized      = errors.New("domain: unauthorized")
)

// ValidationError describes a single malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("domain: validation failed: %s: %s", e.Field, e.Reason)
}

// Is reports ErrValidation as a match so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
