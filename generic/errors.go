/*
errors.go - Centralized error taxonomy for every ledger

PURPOSE:
  All error kinds in one place so that the transport layer can map them to
  stable codes without knowing which ledger produced them. Domain packages
  wrap these sentinels with context via fmt.Errorf("...: %w", ...) or the
  structured errors below.

ERROR CATEGORIES:
  1. Isolation errors - missing tenant context, cross-tenant writes
  2. Business errors - insufficient balance, date conflicts, bad transitions
  3. Concurrency errors - lost optimistic/row-lock races (retryable)
  4. Lookup errors - not found within the caller's tenant

USAGE:
    if errors.Is(err, generic.ErrConcurrencyConflict) {
        // safe to retry the whole operation
    }
    code := generic.Code(err) // "INSUFFICIENT_BALANCE", ...

SEE ALSO:
  - retry.go: retries ErrConcurrencyConflict with backoff
  - api/handlers.go: maps Code() to HTTP status
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoTenantContext is returned when an operation is invoked without a
	// tenant and actor. No data is touched.
	ErrNoTenantContext = errors.New("no tenant context")

	// ErrTenantMismatch is returned when a write carries a tenant other than
	// the caller's.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrTenantNotFound is returned when the tenant id does not resolve.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned when the tenant is suspended or expired.
	ErrTenantInactive = errors.New("tenant inactive")

	// ErrPhysicalDelete is returned when a hard delete of an isolated record
	// is attempted. Deletion is always a flag flip.
	ErrPhysicalDelete = errors.New("physical delete of isolated record")

	// ErrNotFound is returned when a record does not exist within the
	// caller's tenant. Records of other tenants are indistinguishable from
	// missing ones.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance is returned when a reservation or consumption
	// exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDateConflict is returned when a requested interval collides with
	// an existing one.
	ErrDateConflict = errors.New("date conflict")

	// ErrInvalidStateTransition is returned when an action is not legal from
	// the current state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConcurrencyConflict is returned when a concurrent writer won the race.
	// The whole operation can be retried.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidInput is returned for malformed or out-of-range arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID  uuid.UUID
	LeaveTypeID uuid.UUID
	Year        int
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Requested.Sub(e.Available))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// DateConflictError names the existing record the new interval collides with.
type DateConflictError struct {
	EmployeeID  uuid.UUID
	ExistingID  uuid.UUID
	Requested   DateRange
	Existing    DateRange
	Description string
}

func (e *DateConflictError) Error() string {
	msg := fmt.Sprintf("date conflict: %s collides with %s (record %s)",
		e.Requested, e.Existing, e.ExistingID)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *DateConflictError) Unwrap() error {
	return ErrDateConflict
}

// InvalidTransitionError records the rejected state machine edge.
type InvalidTransitionError struct {
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s from %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// =============================================================================
// ERROR CODES - Stable identifiers for the transport layer
// =============================================================================

const (
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeDateConflict           = "DATE_CONFLICT"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeNotFound               = "NOT_FOUND"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeAccessDenied           = "ACCESS_DENIED"
	CodeInternal               = "INTERNAL_ERROR"
)

// Code returns the stable code for err. Isolation failures all collapse to
// ACCESS_DENIED so the response never reveals whether another tenant exists.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsIsolationViolation(err):
		return CodeAccessDenied
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrDateConflict):
		return CodeDateConflict
	case errors.Is(err, ErrInvalidStateTransition):
		return CodeInvalidStateTransition
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return CodeConcurrencyConflict
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDateConflict) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrInvalidInput)
}

// IsIsolationViolation returns true for every tenant-gate rejection.
func IsIsolationViolation(err error) bool {
	return errors.Is(err, ErrNoTenantContext) ||
		errors.Is(err, ErrTenantMismatch) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrTenantInactive) ||
		errors.Is(err, ErrPhysicalDelete)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
