/*
Package jobhistory is the temporal ledger of employment facts.

PURPOSE:
  One row per continuous interval during which an employee held a position,
  department, grade and base salary (slowly changing dimension, type 2).
  Any date, past or future, resolves to at most one interval.

INTERVAL RULES:
  - Intervals are inclusive on both ends; the current one ends at
    generic.OpenEnded.
  - A new interval closes the previous current one at start - 1 day.
  - Voided rows stay in the table for audit but never resolve.
  - A database index allows one open, non-voided, live row per employee.

    2024-01-01           2024-05-31 2024-06-01                 9999-12-31
    |------ Engineer G3 ---------| |------ Senior Engineer G4 ----------|

SEE ALSO:
  - ledger.go: Create, InsertBackdated, ResolveAtDate, Void, Correct
*/
package jobhistory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
)

type ChangeType string

const (
	ChangeNewHire      ChangeType = "new_hire"
	ChangePromotion    ChangeType = "promotion"
	ChangeDemotion     ChangeType = "demotion"
	ChangeTransfer     ChangeType = "transfer"
	ChangeSalaryChange ChangeType = "salary_change"
	ChangeCorrection   ChangeType = "correction"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeNewHire, ChangePromotion, ChangeDemotion, ChangeTransfer, ChangeSalaryChange, ChangeCorrection:
		return true
	}
	return false
}

type CorrectionStatus string

const (
	CorrectionNone      CorrectionStatus = "none"
	CorrectionVoided    CorrectionStatus = "voided"
	CorrectionCorrected CorrectionStatus = "corrected" // row supersedes a voided one
)

// JobHistory is one effective-dated interval.
type JobHistory struct {
	tenant.Isolated
	EmployeeID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_job_histories_employee" json:"employee_id"`
	EffectiveStart   generic.Date     `gorm:"not null;index:idx_job_histories_employee" json:"effective_start"`
	EffectiveEnd     generic.Date     `gorm:"not null" json:"effective_end"`
	Position         string           `gorm:"size:64;not null" json:"position"`
	Department       string           `gorm:"size:64;not null" json:"department"`
	BaseSalary       decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"base_salary"`
	Grade            string           `gorm:"size:32" json:"grade"`
	ChangeType       ChangeType       `gorm:"type:varchar(16);not null" json:"change_type"`
	ChangeReason     string           `json:"change_reason"`
	CorrectionStatus CorrectionStatus `gorm:"type:varchar(16);not null" json:"correction_status"`
	CorrectedByID    *uuid.UUID       `gorm:"type:uuid" json:"corrected_by_id,omitempty"`
}

func (JobHistory) TableName() string { return "job_histories" }

func (j JobHistory) Range() generic.DateRange {
	return generic.NewDateRange(j.EffectiveStart, j.EffectiveEnd)
}

func (j JobHistory) IsOpen() bool   { return j.EffectiveEnd.IsOpenEnded() }
func (j JobHistory) IsVoided() bool { return j.CorrectionStatus == CorrectionVoided }

// Snapshot is the read model returned by point-in-time lookups.
type Snapshot struct {
	ID             uuid.UUID       `json:"id"`
	EmployeeID     uuid.UUID       `json:"employee_id"`
	Position       string          `json:"position"`
	Department     string          `json:"department"`
	Grade          string          `json:"grade"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	EffectiveStart generic.Date    `json:"effective_start"`
	EffectiveEnd   generic.Date    `json:"effective_end"`
	OpenEnded      bool            `json:"open_ended"`
	ChangeType     ChangeType      `json:"change_type"`
}

func (j JobHistory) Snapshot() Snapshot {
	return Snapshot{
		ID:             j.ID,
		EmployeeID:     j.EmployeeID,
		Position:       j.Position,
		Department:     j.Department,
		Grade:          j.Grade,
		BaseSalary:     j.BaseSalary,
		EffectiveStart: j.EffectiveStart,
		EffectiveEnd:   j.EffectiveEnd,
		OpenEnded:      j.IsOpen(),
		ChangeType:     j.ChangeType,
	}
}

// =============================================================================
// INPUTS
// =============================================================================

// Change describes a new interval.
type Change struct {
	EmployeeID     uuid.UUID
	ChangeType     ChangeType
	Position       string
	Department     string
	Grade          string
	BaseSalary     decimal.Decimal
	EffectiveStart generic.Date
	Reason         string
}

func (c Change) Validate() error {
	switch {
	case c.EmployeeID == uuid.Nil:
		return fmt.Errorf("%w: employee id is required", generic.ErrInvalidInput)
	case !c.ChangeType.Valid():
		return fmt.Errorf("%w: unknown change type %q", generic.ErrInvalidInput, c.ChangeType)
	case c.ChangeType == ChangeCorrection:
		return fmt.Errorf("%w: corrections go through Correct", generic.ErrInvalidInput)
	case strings.TrimSpace(c.Position) == "":
		return fmt.Errorf("%w: position is required", generic.ErrInvalidInput)
	case strings.TrimSpace(c.Department) == "":
		return fmt.Errorf("%w: department is required", generic.ErrInvalidInput)
	case c.BaseSalary.IsNegative():
		return fmt.Errorf("%w: base salary is negative", generic.ErrInvalidInput)
	case c.EffectiveStart.IsZero():
		return fmt.Errorf("%w: effective start is required", generic.ErrInvalidInput)
	case c.EffectiveStart.AfterOrEqual(generic.OpenEnded):
		return fmt.Errorf("%w: effective start %s is out of range", generic.ErrInvalidInput, c.EffectiveStart)
	}
	return nil
}

// Replacement holds the corrected attributes of a voided interval. Dates are
// inherited from the interval being corrected.
type Replacement struct {
	Position   string
	Department string
	Grade      string
	BaseSalary decimal.Decimal
	Reason     string
}

func (r Replacement) Validate() error {
	switch {
	case strings.TrimSpace(r.Position) == "":
		return fmt.Errorf("%w: position is required", generic.ErrInvalidInput)
	case strings.TrimSpace(r.Department) == "":
		return fmt.Errorf("%w: department is required", generic.ErrInvalidInput)
	case r.BaseSalary.IsNegative():
		return fmt.Errorf("%w: base salary is negative", generic.ErrInvalidInput)
	}
	return nil
}
