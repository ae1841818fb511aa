/*
errors.go - Centralized error types for the rent ledger

ERROR CATEGORIES:
  1. Validation errors - rejected before any mutation
  2. Not-found errors - target contract/installment missing
  3. Conflict errors - contention on one installment's atomic update
  4. External resource errors - attachment fetches during export

Callers classify with errors.Is / the helpers at the bottom; handlers
map the classes to HTTP statuses.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an operation targets a contract or
	// installment that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when concurrent mutations contend on the
	// same installment and retries are exhausted. Transient.
	ErrConflict = errors.New("transaction conflict")

	// ErrExternalResource marks a failed fetch from a collaborator
	// (attachment storage). The export recovers from it locally.
	ErrExternalResource = errors.New("external resource unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string // "contract" or "installment"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports exhausted retries on one installment.
type ConflictError struct {
	InstallmentID InstallmentID
	Attempts      int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("installment %s: conflict after %d attempts", e.InstallmentID, e.Attempts)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
