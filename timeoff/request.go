package timeoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/workflow"
)

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// SubjectLeaveRequest tags approval records of leave requests.
const SubjectLeaveRequest = "leave_request"

// LeaveRequest asks for TotalDays of one leave type. TotalDays is fixed at
// submission and every later balance effect uses that stored value.
type LeaveRequest struct {
	tenant.Isolated
	tenant.Version
	EmployeeID   uuid.UUID           `gorm:"type:uuid;not null;index:idx_leave_requests_employee" json:"employee_id"`
	LeaveTypeID  uuid.UUID           `gorm:"type:uuid;not null" json:"leave_type_id"`
	StartDate    generic.Date        `gorm:"not null;index:idx_leave_requests_employee" json:"start_date"`
	EndDate      generic.Date        `gorm:"not null" json:"end_date"`
	StartPart    DayPart             `gorm:"type:varchar(16);not null" json:"start_part"`
	EndPart      DayPart             `gorm:"type:varchar(16);not null" json:"end_part"`
	TotalDays    decimal.Decimal     `gorm:"type:numeric(6,2);not null" json:"total_days"`
	Reason       string              `json:"reason"`
	Attachments  []string            `gorm:"serializer:json;type:text" json:"attachments"`
	Status       workflow.State      `gorm:"type:varchar(16);not null;index" json:"status"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	Approvals    []workflow.Approval `gorm:"-" json:"approvals"`
}

func (LeaveRequest) TableName() string { return "leave_requests" }

func (r LeaveRequest) Range() generic.DateRange {
	return generic.NewDateRange(r.StartDate, r.EndDate)
}

func (r LeaveRequest) BalanceKey() Key {
	return Key{EmployeeID: r.EmployeeID, LeaveTypeID: r.LeaveTypeID, Year: r.StartDate.Year()}
}

// SubmitInput is what a caller provides to open a request.
type SubmitInput struct {
	EmployeeID  uuid.UUID
	LeaveTypeID uuid.UUID
	StartDate   generic.Date
	EndDate     generic.Date
	StartPart   DayPart
	EndPart     DayPart
	Reason      string
	Attachments []string
}

func (in SubmitInput) Validate() error {
	switch {
	case in.EmployeeID == uuid.Nil:
		return fmt.Errorf("%w: employee id is required", generic.ErrInvalidInput)
	case in.LeaveTypeID == uuid.Nil:
		return fmt.Errorf("%w: leave type id is required", generic.ErrInvalidInput)
	}
	r := generic.NewDateRange(in.StartDate, in.EndDate)
	if err := r.Validate(); err != nil {
		return err
	}
	if !r.WithinYear() {
		return fmt.Errorf("%w: leave %s spans two years; submit one request per year", generic.ErrInvalidInput, r)
	}
	return nil
}

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	EmployeeID uuid.UUID
	Status     workflow.State
	Year       int
}

// =============================================================================
// REQUEST SERVICE - Drives the workflow and the balance ledger together
// =============================================================================

// RequestService applies every transition, its balance effect and its
// approval record in a single transaction.
type RequestService struct {
	gate     *tenant.Gate
	balances *BalanceLedger
	logger   *zap.Logger
}

func NewRequestService(gate *tenant.Gate, balances *BalanceLedger, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{gate: gate, balances: balances, logger: logger.Named("leave_requests")}
}

// Submit validates the input, computes the day count once, rejects overlaps
// with the employee's pending or approved requests, reserves the days and
// stores the request as pending.
func (s *RequestService) Submit(ctx context.Context, tc tenant.Context, in SubmitInput) (*LeaveRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	startPart, endPart := in.StartPart.orFull(), in.EndPart.orFull()
	days, err := TotalDays(in.StartDate, in.EndDate, startPart, endPart)
	if err != nil {
		return nil, err
	}

	req := &LeaveRequest{
		EmployeeID:  in.EmployeeID,
		LeaveTypeID: in.LeaveTypeID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		StartPart:   startPart,
		EndPart:     endPart,
		TotalDays:   days,
		Reason:      strings.TrimSpace(in.Reason),
		Attachments: in.Attachments,
		Status:      workflow.StatePending,
	}
	req.ID = uuid.New()
	submit := workflow.Submission()

	err = s.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		lt, err := loadLeaveType(ctx, tx, tc, in.LeaveTypeID)
		if err != nil {
			return err
		}
		if !lt.AllowHalfDay && (startPart.IsHalf() || endPart.IsHalf()) {
			return fmt.Errorf("%w: leave type %s does not allow half days", generic.ErrInvalidInput, lt.Code)
		}

		// Lock the balance first so submissions for the same key queue here
		// before the overlap check reads.
		bl := s.balances.WithTx(tx)
		balance, err := bl.lockOrOpen(ctx, tc, req.BalanceKey())
		if err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, tx, tc, req); err != nil {
			return err
		}
		if err := bl.applyLocked(ctx, tc, balance, submit.Effect, days, &req.ID); err != nil {
			return err
		}
		if err := tx.Insert(ctx, tc, req); err != nil {
			return err
		}
		return s.record(ctx, tx, tc, req, submit, req.Reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request submitted",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", req.EmployeeID.String()),
		zap.String("request_id", req.ID.String()),
		zap.Stringer("days", req.TotalDays))
	return req, nil
}

// Approve moves a pending request to approved and consumes its reservation.
func (s *RequestService) Approve(ctx context.Context, tc tenant.Context, id uuid.UUID, comment string) (*LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionApprove, comment)
}

// Reject moves a pending request to rejected and releases its reservation.
func (s *RequestService) Reject(ctx context.Context, tc tenant.Context, id uuid.UUID, reason string) (*LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionReject, reason)
}

// Cancel releases a pending request's reservation or restores an approved
// request's consumed days.
func (s *RequestService) Cancel(ctx context.Context, tc tenant.Context, id uuid.UUID, reason string) (*LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionCancel, reason)
}

func (s *RequestService) transition(ctx context.Context, tc tenant.Context, id uuid.UUID, action workflow.Action, comment string) (*LeaveRequest, error) {
	comment = strings.TrimSpace(comment)
	var req *LeaveRequest
	err := s.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		var err error
		req, err = lockRequest(ctx, tx, tc, id)
		if err != nil {
			return err
		}
		t, err := workflow.Next(req.Status, action)
		if err != nil {
			return err
		}

		bl := s.balances.WithTx(tx)
		balance, err := bl.lock(ctx, tc, req.BalanceKey())
		if err != nil {
			return err
		}
		if err := bl.applyLocked(ctx, tc, balance, t.Effect, req.TotalDays, &req.ID); err != nil {
			return err
		}

		req.Status = t.To
		columns := []string{"status"}
		if action == workflow.ActionCancel {
			req.CancelReason = comment
			columns = append(columns, "cancel_reason")
		}
		if err := tx.Update(ctx, tc, req, columns...); err != nil {
			return err
		}
		return s.record(ctx, tx, tc, req, t, comment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("leave request "+string(req.Status),
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", req.EmployeeID.String()),
		zap.String("request_id", req.ID.String()),
		zap.String("action", string(action)))
	return req, nil
}

// Get loads a request with its approval log.
func (s *RequestService) Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (*LeaveRequest, error) {
	var req LeaveRequest
	if err := s.gate.Find(ctx, tc, &req, id); err != nil {
		return nil, err
	}
	log, err := workflow.Log(ctx, s.gate, tc, SubjectLeaveRequest, req.ID)
	if err != nil {
		return nil, err
	}
	req.Approvals = log
	return &req, nil
}

// List returns matching requests, newest start first, with their logs.
func (s *RequestService) List(ctx context.Context, tc tenant.Context, f RequestFilter) ([]LeaveRequest, error) {
	q, err := s.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	if f.EmployeeID != uuid.Nil {
		q = q.Where("employee_id = ?", f.EmployeeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Year != 0 {
		q = q.Where("start_date >= ? AND start_date <= ?", generic.StartOfYear(f.Year), generic.EndOfYear(f.Year))
	}
	var out []LeaveRequest
	if err := q.Order("start_date DESC").Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, s.gate.Translate(err)
	}

	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	logs, err := workflow.LogMany(ctx, s.gate, tc, SubjectLeaveRequest, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Approvals = logs[out[i].ID]
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *RequestService) checkOverlap(ctx context.Context, tx *tenant.Gate, tc tenant.Context, req *LeaveRequest) error {
	q, err := tx.ReadForUpdate(ctx, tc)
	if err != nil {
		return err
	}
	var existing LeaveRequest
	err = q.Where("employee_id = ? AND status IN ?", req.EmployeeID, workflow.BlockingStates()).
		Where("start_date <= ? AND end_date >= ?", req.EndDate, req.StartDate).
		Order("start_date").
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return tx.Translate(err)
	}
	if existing.ID == uuid.Nil {
		return nil
	}
	return &generic.DateConflictError{
		EmployeeID:  req.EmployeeID,
		ExistingID:  existing.ID,
		Requested:   req.Range(),
		Existing:    existing.Range(),
		Description: "overlaps a " + string(existing.Status) + " leave request",
	}
}

func (s *RequestService) record(ctx context.Context, tx *tenant.Gate, tc tenant.Context, req *LeaveRequest, t workflow.Transition, comment string) error {
	a, err := workflow.Append(ctx, tx, tc, SubjectLeaveRequest, req.ID, t, comment)
	if err != nil {
		return err
	}
	req.Approvals = append(req.Approvals, *a)
	return nil
}

func lockRequest(ctx context.Context, tx *tenant.Gate, tc tenant.Context, id uuid.UUID) (*LeaveRequest, error) {
	q, err := tx.ReadForUpdate(ctx, tc)
	if err != nil {
		return nil, err
	}
	var req LeaveRequest
	if err := q.Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, tx.Translate(err)
	}
	log, err := workflow.Log(ctx, tx, tc, SubjectLeaveRequest, req.ID)
	if err != nil {
		return nil, err
	}
	req.Approvals = log
	return &req, nil
}
