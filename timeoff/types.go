// Package timeoff implements the leave balance ledger and the leave request
// lifecycle on top of the tenant gate and the approval workflow.
package timeoff

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// LeaveType is a tenant-defined kind of leave (annual, sick, ...).
type LeaveType struct {
	tenant.Isolated
	Code              string          `gorm:"size:32;not null" json:"code"`
	Name              string          `gorm:"size:128;not null" json:"name"`
	AnnualEntitlement decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"annual_entitlement"`
	MaxCarryOver      decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"max_carry_over"`
	AllowHalfDay      bool            `gorm:"not null" json:"allow_half_day"`
}

func (LeaveType) TableName() string { return "leave_types" }

func (lt LeaveType) Validate() error {
	switch {
	case strings.TrimSpace(lt.Code) == "":
		return fmt.Errorf("%w: leave type code is required", generic.ErrInvalidInput)
	case strings.TrimSpace(lt.Name) == "":
		return fmt.Errorf("%w: leave type name is required", generic.ErrInvalidInput)
	case lt.AnnualEntitlement.IsNegative():
		return fmt.Errorf("%w: annual entitlement is negative", generic.ErrInvalidInput)
	case lt.MaxCarryOver.IsNegative():
		return fmt.Errorf("%w: max carry-over is negative", generic.ErrInvalidInput)
	}
	return nil
}

// =============================================================================
// DAY PARTS
// =============================================================================

// DayPart selects which part of a boundary day is taken.
type DayPart string

const (
	DayFull      DayPart = "full"
	DayMorning   DayPart = "morning"
	DayAfternoon DayPart = "afternoon"
)

func (p DayPart) Valid() bool {
	switch p {
	case DayFull, DayMorning, DayAfternoon:
		return true
	}
	return false
}

func (p DayPart) IsHalf() bool { return p == DayMorning || p == DayAfternoon }

// orFull treats an unset part as a full day.
func (p DayPart) orFull() DayPart {
	if p == "" {
		return DayFull
	}
	return p
}

// =============================================================================
// BALANCE KEY
// =============================================================================

// Key identifies one balance row.
type Key struct {
	EmployeeID  uuid.UUID
	LeaveTypeID uuid.UUID
	Year        int
}

func (k Key) Validate() error {
	switch {
	case k.EmployeeID == uuid.Nil:
		return fmt.Errorf("%w: employee id is required", generic.ErrInvalidInput)
	case k.LeaveTypeID == uuid.Nil:
		return fmt.Errorf("%w: leave type id is required", generic.ErrInvalidInput)
	case k.Year < 1900 || k.Year > 9998:
		return fmt.Errorf("%w: year %d is out of range", generic.ErrInvalidInput, k.Year)
	}
	return nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveTypeID, k.Year)
}
