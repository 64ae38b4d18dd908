// internal/errors/errors.go
package appErrors

import "fmt"

// ErrEmailNotFound is a sentinel error for a dispatch job referencing a
// record that does not exist. Admission always persists before enqueueing,
// so hitting this means store/queue drift and should be alarmed on.
type ErrEmailNotFound struct {
	EmailID string
}

func (e *ErrEmailNotFound) Error() string {
	return fmt.Sprintf("scheduled email with ID %s not found", e.EmailID)
}

// Helper constructor
func NewEmailNotFound(id string) error {
	return &ErrEmailNotFound{EmailID: id}
}

// ValidationError rejects an admission request before anything is persisted.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

func NewValidationError(field string) error {
	return &ValidationError{Field: field}
}

// DuplicateAdmission means two identical admissions raced and the unique
// constraint fired after the dedupe lookup missed. Callers treat it like the
// idempotent short-circuit, not a hard failure.
type DuplicateAdmission struct {
	IdempotencyKey string
}

func (e *DuplicateAdmission) Error() string {
	return fmt.Sprintf("duplicate idempotency key: %s", e.IdempotencyKey)
}

func NewDuplicateAdmission(key string) error {
	return &DuplicateAdmission{IdempotencyKey: key}
}
