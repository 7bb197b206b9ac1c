/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and the HTTP layer classify errors with errors.Is
  against the sentinels below.

ERROR CATEGORIES:
  1. Validation errors - Bad amounts, times, methods, cycles
  2. Staff errors - Unknown, inactive or wrongly-typed staff members
  3. Store errors - Missing rows

NOT ERRORS:
  A denied withdrawal is a Decision, not an error. It is audited and the
  transaction commits.

SEE ALSO:
  - withdrawal.go: Returns these errors
  - api/handlers.go: Maps them onto HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidStaff is returned when a staff member is unknown or inactive.
	ErrInvalidStaff = errors.New("invalid staff")

	// ErrInvalidDoctor is returned when income is attributed to someone who
	// is not an active doctor.
	ErrInvalidDoctor = errors.New("invalid doctor")

	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidTimes         = errors.New("invalid times")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidPatient       = errors.New("invalid patient")
	ErrInvalidCycle         = errors.New("invalid cycle")

	// ErrNotFound is returned by stores when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrCommissionPayment is returned when a commission payment is deleted
	// directly. It goes away with its income record.
	ErrCommissionPayment = errors.New("commission payments are removed with their income record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StaffError explains why a staff member can't be used.
type StaffError struct {
	StaffID StaffID
	Reason  string
}

func (e *StaffError) Error() string {
	return fmt.Sprintf("invalid staff %d: %s", e.StaffID, e.Reason)
}

func (e *StaffError) Unwrap() error {
	return ErrInvalidStaff
}

// NotFoundError names the missing row.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStaff) ||
		errors.Is(err, ErrInvalidDoctor) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTimes) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidPatient) ||
		errors.Is(err, ErrInvalidCycle) ||
		errors.Is(err, ErrCommissionPayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
