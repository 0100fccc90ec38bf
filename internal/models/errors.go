package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the domain error taxonomy. Callers classify with
// errors.Is after unwrapping; HTTP handlers map each class to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrAlreadyLocked     = errors.New("case already locked")
	ErrNotLocked         = errors.New("case not locked")
	ErrCaseLocked        = errors.New("case is locked")
	ErrNumberConflict    = errors.New("number already allocated")
)

// ValidationError reports a missing or malformed field on a create or
// append operation, with field-level detail.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a storage failure. It is the only retryable class;
// batch sweeps log it per case and continue.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err as a persistence failure for op.
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
