/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Integrity violations - rejected at the store boundary, no partial write
  2. Not-found errors - a referenced row does not exist
  3. Rule failures - a reactive rule failed; the triggering write is
     rolled back with it (single-transaction semantics)

USAGE:
  Callers classify with the helpers:

    if ledger.IsClientError(err) { ... 4xx ... }
    if ledger.IsNotFound(err)    { ... 404 ... }
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
	// ErrIntegrityViolation covers foreign-key references to nonexistent
	// rows and uniqueness violations on natural keys.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrInvalidAmount is returned for unparseable amounts, amounts with
	// more than two fraction digits, and non-positive charges/payments.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidStatus is returned for an unknown lab test status value.
	ErrInvalidStatus = errors.New("invalid lab test status")

	ErrPatientNotFound = errors.New("patient not found")
	ErrLabTestNotFound = errors.New("lab test not found")
	ErrRoomNotFound    = errors.New("room not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// IntegrityError carries the table and operation that hit a constraint.
type IntegrityError struct {
	Table string
	Op    string
	Cause error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s during %s: %v", e.Table, e.Op, e.Cause)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input
// and should surface as a readable message rather than an internal error.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIntegrityViolation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrLabTestNotFound) ||
		errors.Is(err, ErrRoomNotFound)
}
