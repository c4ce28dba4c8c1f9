/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types are
  decoded here and converted to core inputs; responses reuse the core read
  models (snapshots, requests) where those are already JSON-shaped.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types built only for the API

VALIDATION:
  Validation happens in the core. DTOs only convert.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/jobhistory"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// JOB HISTORY
// =============================================================================

// RecordJobChangeRequest records a job change. Backdated inserts the interval
// into the middle of the history instead of appending it.
type RecordJobChangeRequest struct {
	ChangeType    jobhistory.ChangeType `json:"change_type"`
	Position      string                `json:"position"`
	Department    string                `json:"department"`
	Grade         string                `json:"grade"`
	BaseSalary    decimal.Decimal       `json:"base_salary"`
	EffectiveDate generic.Date          `json:"effective_date"`
	Reason        string                `json:"reason"`
	Backdated     bool                  `json:"backdated"`
}

func (req RecordJobChangeRequest) toChange(employeeID uuid.UUID) jobhistory.Change {
	return jobhistory.Change{
		EmployeeID:     employeeID,
		ChangeType:     req.ChangeType,
		Position:       req.Position,
		Department:     req.Department,
		Grade:          req.Grade,
		BaseSalary:     req.BaseSalary,
		EffectiveStart: req.EffectiveDate,
		Reason:         req.Reason,
	}
}

type CorrectJobRequest struct {
	Position   string          `json:"position"`
	Department string          `json:"department"`
	Grade      string          `json:"grade"`
	BaseSalary decimal.Decimal `json:"base_salary"`
	Reason     string          `json:"reason"`
}

func (req CorrectJobRequest) toReplacement() jobhistory.Replacement {
	return jobhistory.Replacement{
		Position:   req.Position,
		Department: req.Department,
		Grade:      req.Grade,
		BaseSalary: req.BaseSalary,
		Reason:     req.Reason,
	}
}

type VoidJobRequest struct {
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
}

// JobIDDTO answers RecordJobChange with the new interval's id.
type JobIDDTO struct {
	ID       uuid.UUID           `json:"id"`
	Snapshot jobhistory.Snapshot `json:"snapshot"`
}

// =============================================================================
// LEAVE
// =============================================================================

type CreateLeaveTypeRequest struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	AnnualEntitlement decimal.Decimal `json:"annual_entitlement"`
	MaxCarryOver      decimal.Decimal `json:"max_carry_over"`
	AllowHalfDay      bool            `json:"allow_half_day"`
}

func (req CreateLeaveTypeRequest) toLeaveType() *timeoff.LeaveType {
	return &timeoff.LeaveType{
		Code:              req.Code,
		Name:              req.Name,
		AnnualEntitlement: req.AnnualEntitlement,
		MaxCarryOver:      req.MaxCarryOver,
		AllowHalfDay:      req.AllowHalfDay,
	}
}

type SubmitLeaveRequest struct {
	LeaveTypeID uuid.UUID       `json:"leave_type_id"`
	StartDate   generic.Date    `json:"start_date"`
	EndDate     generic.Date    `json:"end_date"`
	StartPart   timeoff.DayPart `json:"start_part"`
	EndPart     timeoff.DayPart `json:"end_part"`
	Reason      string          `json:"reason"`
	Attachments []string        `json:"attachments"`
}

func (req SubmitLeaveRequest) toInput(employeeID uuid.UUID) timeoff.SubmitInput {
	return timeoff.SubmitInput{
		EmployeeID:  employeeID,
		LeaveTypeID: req.LeaveTypeID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		StartPart:   req.StartPart,
		EndPart:     req.EndPart,
		Reason:      req.Reason,
		Attachments: req.Attachments,
	}
}

// TransitionRequest carries the approver's comment or the rejection and
// cancellation reason.
type TransitionRequest struct {
	Comment string `json:"comment"`
}

// RolloverRequest triggers year-end rollover. Without employee and leave
// type it rolls over every balance of the tenant.
type RolloverRequest struct {
	FromYear    int       `json:"from_year"`
	EmployeeID  uuid.UUID `json:"employee_id"`
	LeaveTypeID uuid.UUID `json:"leave_type_id"`
}

// =============================================================================
// TENANTS
// =============================================================================

type CreateTenantRequest struct {
	Name     string          `json:"name"`
	Settings tenant.Settings `json:"settings"`
}

type SetTenantStatusRequest struct {
	Status tenant.Status `json:"status"`
}
