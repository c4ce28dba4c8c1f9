/*
balance.go - Leave balance row and its four mutations

PURPOSE:
  One row per (employee, leave type, calendar year):

    available = entitlement + carried_over - used - pending

  The row is mutated in place under a version check; every mutation is also
  appended to balance_entries so the row can be explained after the fact.

MUTATIONS:
  Reserve(d)  pending += d           requires available >= d
  Release(d)  pending -= d           requires pending >= d
  Consume(d)  pending -= d, used += d requires pending >= d
  Restore(d)  used -= d              requires used >= d

  A mutation that would break its precondition leaves the row untouched.
  available >= 0 holds after every mutation.

SEE ALSO:
  - ledger.go: transactional application of these mutations
  - workflow/workflow.go: which transition applies which mutation
*/
package timeoff

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/workflow"
)

// LeaveBalance is the running balance for one key.
type LeaveBalance struct {
	tenant.Isolated
	tenant.Version
	EmployeeID  uuid.UUID       `gorm:"type:uuid;not null" json:"employee_id"`
	LeaveTypeID uuid.UUID       `gorm:"type:uuid;not null" json:"leave_type_id"`
	Year        int             `gorm:"not null" json:"year"`
	Entitlement decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"entitlement"`
	CarriedOver decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"carried_over"`
	Used        decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"used"`
	Pending     decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"pending"`
}

func (LeaveBalance) TableName() string { return "leave_balances" }

func (b LeaveBalance) Key() Key {
	return Key{EmployeeID: b.EmployeeID, LeaveTypeID: b.LeaveTypeID, Year: b.Year}
}

func (b LeaveBalance) Available() decimal.Decimal {
	return b.Entitlement.Add(b.CarriedOver).Sub(b.Used).Sub(b.Pending)
}

// Apply performs one mutation, or none if its precondition fails.
func (b *LeaveBalance) Apply(effect workflow.Effect, days decimal.Decimal) error {
	if !days.IsPositive() {
		return fmt.Errorf("%w: days must be positive, got %s", generic.ErrInvalidInput, days)
	}
	switch effect {
	case workflow.EffectReserve:
		if available := b.Available(); available.LessThan(days) {
			return &generic.InsufficientBalanceError{
				EmployeeID:  b.EmployeeID,
				LeaveTypeID: b.LeaveTypeID,
				Year:        b.Year,
				Available:   available,
				Requested:   days,
			}
		}
		b.Pending = b.Pending.Add(days)
	case workflow.EffectRelease:
		if b.Pending.LessThan(days) {
			return b.underflow("pending", b.Pending, days)
		}
		b.Pending = b.Pending.Sub(days)
	case workflow.EffectConsume:
		if b.Pending.LessThan(days) {
			return b.underflow("pending", b.Pending, days)
		}
		b.Pending = b.Pending.Sub(days)
		b.Used = b.Used.Add(days)
	case workflow.EffectRestore:
		if b.Used.LessThan(days) {
			return b.underflow("used", b.Used, days)
		}
		b.Used = b.Used.Sub(days)
	default:
		return fmt.Errorf("%w: unknown balance effect %q", generic.ErrInvalidInput, effect)
	}
	return nil
}

func (b *LeaveBalance) underflow(field string, have, days decimal.Decimal) error {
	return fmt.Errorf("%w: cannot take %s from %s %s of balance %s",
		generic.ErrInvalidInput, days, field, have, b.Key())
}

// Snapshot is the read model of a balance.
type Snapshot struct {
	EmployeeID  uuid.UUID       `json:"employee_id"`
	LeaveTypeID uuid.UUID       `json:"leave_type_id"`
	Year        int             `json:"year"`
	Entitlement decimal.Decimal `json:"entitlement"`
	CarriedOver decimal.Decimal `json:"carried_over"`
	Used        decimal.Decimal `json:"used"`
	Pending     decimal.Decimal `json:"pending"`
	Available   decimal.Decimal `json:"available"`
	Version     int64           `json:"version"`
}

func (b LeaveBalance) Snapshot() Snapshot {
	return Snapshot{
		EmployeeID:  b.EmployeeID,
		LeaveTypeID: b.LeaveTypeID,
		Year:        b.Year,
		Entitlement: b.Entitlement,
		CarriedOver: b.CarriedOver,
		Used:        b.Used,
		Pending:     b.Pending,
		Available:   b.Available(),
		Version:     b.Version.Version,
	}
}

// =============================================================================
// BALANCE ENTRIES - Append-only journal of mutations
// =============================================================================

type EntryKind string

const (
	EntryOpen    EntryKind = "open"
	EntryCarry   EntryKind = "carry_over"
	EntryReserve EntryKind = EntryKind(workflow.EffectReserve)
	EntryRelease EntryKind = EntryKind(workflow.EffectRelease)
	EntryConsume EntryKind = EntryKind(workflow.EffectConsume)
	EntryRestore EntryKind = EntryKind(workflow.EffectRestore)
)

// BalanceEntry records one change to a balance row together with the row's
// state after it. Entries are never updated.
type BalanceEntry struct {
	tenant.Isolated
	BalanceID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"balance_id"`
	RequestID    *uuid.UUID      `gorm:"type:uuid;index" json:"request_id,omitempty"`
	Kind         EntryKind       `gorm:"type:varchar(16);not null" json:"kind"`
	Days         decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"days"`
	PendingAfter decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"pending_after"`
	UsedAfter    decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"used_after"`
}

func (BalanceEntry) TableName() string { return "balance_entries" }
