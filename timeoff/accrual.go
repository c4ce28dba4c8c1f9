/*
accrual.go - Entitlement policies and year rollover

PURPOSE:
  Decides how many days a newly opened balance row is granted, and moves a
  capped remainder of one year's balance into the next.

ENTITLEMENT POLICIES:
  FlatEntitlement:
    - The leave type's annual entitlement, every year
  ProratedEntitlement:
    - Mid-year hires get the months remaining in the hire year,
      counting the hire month: hired June 15 with 20 days/year
      = 20 * 7/12 = 11.67, rounded down to 11.5
  TenureEntitlement:
    - Annual days by completed years of service on January 1:
      15 for 0-2 years, 20 from 3 years, 25 from 5 years

ROLLOVER:
  carried_over(next) = min(available(prev), max_carry_over)
  Runs once per (employee, leave type, year): a carry_over journal entry on
  the next year's row marks it done.

SEE ALSO:
  - ledger.go: opens rows through the configured policy
  - core/scheduler.go: runs rollover for every tenant after year end
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// ENTITLEMENT POLICIES
// =============================================================================

// EntitlementPolicy computes the entitlement of a row being opened. g is
// bound to the transaction opening the row.
type EntitlementPolicy interface {
	Entitlement(ctx context.Context, g *tenant.Gate, tc tenant.Context, lt *LeaveType, employeeID uuid.UUID, year int) (decimal.Decimal, error)
}

// HireDateFunc returns an employee's first day, or ErrNotFound if unknown.
type HireDateFunc func(ctx context.Context, g *tenant.Gate, tc tenant.Context, employeeID uuid.UUID) (generic.Date, error)

// FlatEntitlement grants the annual entitlement unchanged.
type FlatEntitlement struct{}

func (FlatEntitlement) Entitlement(_ context.Context, _ *tenant.Gate, _ tenant.Context, lt *LeaveType, _ uuid.UUID, _ int) (decimal.Decimal, error) {
	return lt.AnnualEntitlement, nil
}

// ProratedEntitlement grants the months remaining in the hire year. Without
// a known hire date, or outside the hire year, it grants the full amount.
type ProratedEntitlement struct {
	HireDate HireDateFunc
}

var twelve = decimal.NewFromInt(12)

func (p ProratedEntitlement) Entitlement(ctx context.Context, g *tenant.Gate, tc tenant.Context, lt *LeaveType, employeeID uuid.UUID, year int) (decimal.Decimal, error) {
	hired, known, err := hireDate(ctx, p.HireDate, g, tc, employeeID)
	if err != nil || !known {
		return lt.AnnualEntitlement, err
	}
	switch {
	case hired.Year() < year:
		return lt.AnnualEntitlement, nil
	case hired.Year() > year:
		return decimal.Zero, nil
	}
	months := decimal.NewFromInt(int64(12 - int(hired.Time.Month()) + 1))
	return floorHalf(lt.AnnualEntitlement.Mul(months).Div(twelve)), nil
}

// TenureTier grants AnnualDays from AfterYears of completed service.
type TenureTier struct {
	AfterYears int
	AnnualDays decimal.Decimal
}

// TenureEntitlement picks the highest tier reached by January 1 of the
// year. Below every tier, or without a hire date, the leave type's own
// entitlement applies.
type TenureEntitlement struct {
	HireDate HireDateFunc
	Tiers    []TenureTier
}

func (t TenureEntitlement) Entitlement(ctx context.Context, g *tenant.Gate, tc tenant.Context, lt *LeaveType, employeeID uuid.UUID, year int) (decimal.Decimal, error) {
	hired, known, err := hireDate(ctx, t.HireDate, g, tc, employeeID)
	if err != nil || !known {
		return lt.AnnualEntitlement, err
	}
	jan1 := generic.StartOfYear(year)
	tenure := jan1.Year() - hired.Year()
	if hired.Time.YearDay() > 1 {
		tenure--
	}

	days := lt.AnnualEntitlement
	best := -1
	for _, tier := range t.Tiers {
		if tenure >= tier.AfterYears && tier.AfterYears > best {
			best, days = tier.AfterYears, tier.AnnualDays
		}
	}
	return days, nil
}

func hireDate(ctx context.Context, fn HireDateFunc, g *tenant.Gate, tc tenant.Context, employeeID uuid.UUID) (generic.Date, bool, error) {
	if fn == nil {
		return generic.Date{}, false, nil
	}
	d, err := fn(ctx, g, tc, employeeID)
	if errors.Is(err, generic.ErrNotFound) {
		return generic.Date{}, false, nil
	}
	if err != nil {
		return generic.Date{}, false, err
	}
	return d, true, nil
}

// floorHalf rounds down to the nearest half day.
func floorHalf(d decimal.Decimal) decimal.Decimal {
	two := decimal.NewFromInt(2)
	return d.Mul(two).Floor().Div(two)
}

// =============================================================================
// ROLLOVER
// =============================================================================

// Rollover opens (or reuses) the row for fromYear+1 and credits it with the
// capped remainder of fromYear. A missing fromYear row carries nothing.
// Running it again returns the next year's row unchanged.
func (l *BalanceLedger) Rollover(ctx context.Context, tc tenant.Context, employeeID, leaveTypeID uuid.UUID, fromYear int) (*LeaveBalance, error) {
	prevKey := Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: fromYear}
	nextKey := Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: fromYear + 1}
	if err := nextKey.Validate(); err != nil {
		return nil, err
	}

	var (
		out   *LeaveBalance
		carry decimal.Decimal
		done  bool
	)
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		txl := l.WithTx(tx)

		prev, err := txl.lock(ctx, tc, prevKey)
		if err != nil && !errors.Is(err, generic.ErrNotFound) {
			return err
		}
		next, err := txl.lockOrOpen(ctx, tc, nextKey)
		if err != nil {
			return err
		}
		out = next

		carried, err := txl.hasEntry(ctx, tc, next.ID, EntryCarry)
		if err != nil || carried {
			done = carried
			return err
		}

		lt, err := loadLeaveType(ctx, tx, tc, leaveTypeID)
		if err != nil {
			return err
		}
		carry = decimal.Zero
		if prev != nil {
			carry = decimal.Min(prev.Available(), lt.MaxCarryOver)
			if carry.IsNegative() {
				carry = decimal.Zero
			}
		}
		if carry.IsPositive() {
			next.CarriedOver = next.CarriedOver.Add(carry)
			if err := tx.Update(ctx, tc, next, "carried_over"); err != nil {
				return fmt.Errorf("carry over into %s: %w", nextKey, err)
			}
		}
		return txl.journal(ctx, tc, next, EntryCarry, carry, nil)
	})
	if err != nil {
		return nil, err
	}

	if !done {
		l.logger.Info("balance rolled over",
			zap.String("tenant_id", tc.TenantID.String()),
			zap.String("actor_id", tc.ActorID.String()),
			zap.String("employee_id", employeeID.String()),
			zap.String("leave_type_id", leaveTypeID.String()),
			zap.Int("year", nextKey.Year),
			zap.Stringer("carried_over", carry))
	}
	return out, nil
}

func (l *BalanceLedger) hasEntry(ctx context.Context, tc tenant.Context, balanceID uuid.UUID, kind EntryKind) (bool, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return false, err
	}
	var n int64
	if err := q.Model(&BalanceEntry{}).Where("balance_id = ? AND kind = ?", balanceID, kind).Count(&n).Error; err != nil {
		return false, l.gate.Translate(err)
	}
	return n > 0, nil
}

// RolloverDue reports whether year-end rollover for fromYear may run at now.
func RolloverDue(fromYear int, now time.Time) bool {
	return now.UTC().Year() > fromYear
}
