// Package common defines the sentinel errors shared by the record store,
// the document store and the HTTP layer. Callers match them with errors.Is.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any I/O.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a record or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is propagated unchanged from the document store.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrVersionConflict is returned by a conditional write whose expected
	// document version is no longer current.
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid builds a *ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
