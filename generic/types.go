/*
Package generic provides the primitives shared by every ledger in the system.

PURPOSE:
  This package holds the domain-agnostic building blocks used by the
  temporal job ledger, the leave balance ledger and the tenant gate:
  calendar dates, date ranges, decimal quantities, the error taxonomy and
  the retry policy applied to concurrency conflicts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: a decimal amount of days (leave) or money (salary)
  - Half: the half-day unit used by day-part arithmetic
  - ParseID: strict identifier parsing for values crossing the boundary

DESIGN PRINCIPLES:
  1. Precision: quantities use decimal.Decimal, never float64
  2. Day granularity: every ledger date is a calendar day in UTC
  3. Explicit context: nothing in here reads ambient state

SEE ALSO:
  - time.go: Date and the open-ended sentinel
  - period.go: DateRange with closed interval semantics
  - errors.go: error taxonomy and stable codes
  - retry.go: backoff for ErrConcurrencyConflict
*/
package generic

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITIES
// =============================================================================

// Half is half a day.
var Half = decimal.NewFromFloat(0.5)

// NewQuantity builds a decimal quantity from a float literal.
// Intended for constants and tests; arithmetic stays in decimal.
func NewQuantity(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// MustParseDecimal is decimal.RequireFromString for literals.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ParseQuantity parses a non-negative decimal string.
func ParseQuantity(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidInput, s)
	}
	return d, nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ParseID parses a non-nil UUID.
func ParseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a valid id", ErrInvalidInput, field, s)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	return id, nil
}
