/*
Package core is the application-facing surface of the HR ledger.

PURPOSE:
  Service composes the temporal job ledger, the leave balance ledger and the
  leave request workflow behind one set of operations. Every operation takes
  an explicit tenant.Context; nothing is read from ambient state.

OPERATIONS:
  Job history:   ResolveJobAtDate, RecordJobChange, RecordBackdatedJobChange,
                 VoidJob, CorrectJob, CurrentJob, JobHistory
  Balances:      GetBalance, ListBalances, BalanceJournal, RolloverYear,
                 RolloverTenant
  Leave types:   CreateLeaveType, ListLeaveTypes
  Requests:      SubmitLeaveRequest, ApproveLeaveRequest, RejectLeaveRequest,
                 CancelLeaveRequest, GetLeaveRequest, ListLeaveRequests

RETRY:
  Mutations that lose a concurrency race (ErrConcurrencyConflict) are rerun
  from scratch under the configured RetryPolicy. Every attempt is its own
  transaction, so a retried operation re-evaluates its preconditions against
  committed state. Business-rule failures are never retried.

EVENTS:
  Published after commit, never from inside a transaction.

LOGGING:
  Components log successful mutations at Info. Service logs failed
  operations once: Error for isolation violations, Warn for business-rule
  failures, both with the stable error code.

SEE ALSO:
  - core/scheduler.go: year-end rollover across tenants
  - api/: HTTP adapter over this package
*/
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/events"
	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/jobhistory"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
	"github.com/warp/hr-ledger/workflow"
)

// Service is safe for concurrent use.
type Service struct {
	gate      *tenant.Gate
	jobs      *jobhistory.Ledger
	balances  *timeoff.BalanceLedger
	requests  *timeoff.RequestService
	catalog   *timeoff.Catalog
	publisher events.Publisher
	retry     generic.RetryPolicy
	now       func() time.Time
	logger    *zap.Logger
}

type options struct {
	publisher   events.Publisher
	retry       generic.RetryPolicy
	entitlement timeoff.EntitlementPolicy
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*options)

func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithRetryPolicy(p generic.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithEntitlementPolicy decides how newly opened balance rows are granted.
// Defaults to timeoff.FlatEntitlement.
func WithEntitlementPolicy(p timeoff.EntitlementPolicy) Option {
	return func(o *options) { o.entitlement = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func New(gate *tenant.Gate, opts ...Option) *Service {
	o := options{
		publisher:   events.Nop{},
		retry:       generic.DefaultRetryPolicy(),
		entitlement: timeoff.FlatEntitlement{},
		now:         func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	balances := timeoff.NewBalanceLedger(gate, o.logger, timeoff.WithEntitlementPolicy(o.entitlement))
	return &Service{
		gate:      gate,
		jobs:      jobhistory.NewLedger(gate, o.logger),
		balances:  balances,
		requests:  timeoff.NewRequestService(gate, balances, o.logger),
		catalog:   timeoff.NewCatalog(gate, o.logger),
		publisher: o.publisher,
		retry:     o.retry,
		now:       o.now,
		logger:    o.logger.Named("core"),
	}
}

// EntitlementPolicy builds a named policy: "flat", "prorated" (by hire date)
// or "tenure" (15/20/25 days after 0/3/5 years of service). Hire dates come
// from the job ledger.
func EntitlementPolicy(name string) (timeoff.EntitlementPolicy, error) {
	switch name {
	case "", "flat":
		return timeoff.FlatEntitlement{}, nil
	case "prorated":
		return timeoff.ProratedEntitlement{HireDate: jobhistory.HireDate}, nil
	case "tenure":
		return timeoff.TenureEntitlement{
			HireDate: jobhistory.HireDate,
			Tiers: []timeoff.TenureTier{
				{AfterYears: 0, AnnualDays: decimal.NewFromInt(15)},
				{AfterYears: 3, AnnualDays: decimal.NewFromInt(20)},
				{AfterYears: 5, AnnualDays: decimal.NewFromInt(25)},
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown entitlement policy %q", generic.ErrInvalidInput, name)
}

// =============================================================================
// JOB HISTORY
// =============================================================================

// ResolveJobAtDate returns the job an employee held on date. A date before
// hire (or after termination) yields nil without error.
func (s *Service) ResolveJobAtDate(ctx context.Context, tc tenant.Context, employeeID uuid.UUID, date generic.Date) (*jobhistory.Snapshot, error) {
	jh, err := s.jobs.ResolveAtDate(ctx, tc, employeeID, date)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logFailure(tc, "resolve_job", err, zap.String("employee_id", employeeID.String()))
		return nil, err
	}
	snap := jh.Snapshot()
	return &snap, nil
}

// RecordJobChange appends the employee's new current interval, closing the
// open one the day before.
func (s *Service) RecordJobChange(ctx context.Context, tc tenant.Context, ch jobhistory.Change) (*jobhistory.JobHistory, error) {
	var jh *jobhistory.JobHistory
	err := s.mutate(ctx, tc, "record_job_change", func() error {
		var err error
		jh, err = s.jobs.Create(ctx, tc, ch)
		return err
	}, zap.String("employee_id", ch.EmployeeID.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, events.JobRecorded, jh.EmployeeID, jh.Snapshot())
	return jh, nil
}

// RecordBackdatedJobChange inserts an interval into the middle of the
// employee's history.
func (s *Service) RecordBackdatedJobChange(ctx context.Context, tc tenant.Context, ch jobhistory.Change) (*jobhistory.JobHistory, error) {
	var jh *jobhistory.JobHistory
	err := s.mutate(ctx, tc, "record_backdated_job_change", func() error {
		var err error
		jh, err = s.jobs.InsertBackdated(ctx, tc, ch)
		return err
	}, zap.String("employee_id", ch.EmployeeID.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, events.JobRecorded, jh.EmployeeID, jh.Snapshot())
	return jh, nil
}

func (s *Service) VoidJob(ctx context.Context, tc tenant.Context, id uuid.UUID, supersededBy *uuid.UUID) (*jobhistory.JobHistory, error) {
	var jh *jobhistory.JobHistory
	err := s.mutate(ctx, tc, "void_job", func() error {
		var err error
		jh, err = s.jobs.Void(ctx, tc, id, supersededBy)
		return err
	}, zap.String("job_history_id", id.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, events.JobVoided, jh.EmployeeID, jh.Snapshot())
	return jh, nil
}

// CorrectJob voids an interval and records its corrected replacement.
func (s *Service) CorrectJob(ctx context.Context, tc tenant.Context, id uuid.UUID, r jobhistory.Replacement) (*jobhistory.JobHistory, error) {
	var replacement *jobhistory.JobHistory
	err := s.mutate(ctx, tc, "correct_job", func() error {
		var err error
		_, replacement, err = s.jobs.Correct(ctx, tc, id, r)
		return err
	}, zap.String("job_history_id", id.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, events.JobCorrected, replacement.EmployeeID, correctionPayload{
		VoidedID:    id,
		Replacement: replacement.Snapshot(),
	})
	return replacement, nil
}

// CurrentJob returns the open interval, or nil if the employee has none.
func (s *Service) CurrentJob(ctx context.Context, tc tenant.Context, employeeID uuid.UUID) (*jobhistory.Snapshot, error) {
	jh, err := s.jobs.Current(ctx, tc, employeeID)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logFailure(tc, "current_job", err, zap.String("employee_id", employeeID.String()))
		return nil, err
	}
	snap := jh.Snapshot()
	return &snap, nil
}

// JobHistory returns every interval of an employee, voided ones included.
func (s *Service) JobHistory(ctx context.Context, tc tenant.Context, employeeID uuid.UUID) ([]jobhistory.JobHistory, error) {
	rows, err := s.jobs.History(ctx, tc, employeeID)
	if err != nil {
		s.logFailure(tc, "job_history", err, zap.String("employee_id", employeeID.String()))
	}
	return rows, err
}

// =============================================================================
// BALANCES
// =============================================================================

// GetBalance returns the balance of one (employee, leave type, year),
// opening the row from the entitlement policy if it does not exist yet.
func (s *Service) GetBalance(ctx context.Context, tc tenant.Context, employeeID, leaveTypeID uuid.UUID, year int) (timeoff.Snapshot, error) {
	key := timeoff.Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: year}
	var b *timeoff.LeaveBalance
	err := s.mutate(ctx, tc, "get_balance", func() error {
		var err error
		b, err = s.balances.Open(ctx, tc, key)
		return err
	}, zap.Stringer("key", key))
	if err != nil {
		return timeoff.Snapshot{}, err
	}
	return b.Snapshot(), nil
}

// ListBalances returns the balance rows an employee already has for a year.
func (s *Service) ListBalances(ctx context.Context, tc tenant.Context, employeeID uuid.UUID, year int) ([]timeoff.Snapshot, error) {
	rows, err := s.balances.ListEmployee(ctx, tc, employeeID, year)
	if err != nil {
		s.logFailure(tc, "list_balances", err, zap.String("employee_id", employeeID.String()))
		return nil, err
	}
	out := make([]timeoff.Snapshot, len(rows))
	for i := range rows {
		out[i] = rows[i].Snapshot()
	}
	return out, nil
}

// BalanceJournal returns the mutation journal of an existing balance row.
func (s *Service) BalanceJournal(ctx context.Context, tc tenant.Context, employeeID, leaveTypeID uuid.UUID, year int) ([]timeoff.BalanceEntry, error) {
	key := timeoff.Key{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, Year: year}
	b, err := s.balances.Get(ctx, tc, key)
	if err != nil {
		s.logFailure(tc, "balance_journal", err, zap.Stringer("key", key))
		return nil, err
	}
	return s.balances.Entries(ctx, tc, b.ID)
}

// RolloverYear carries the capped remainder of fromYear into fromYear+1.
// fromYear must have ended. Running it twice changes nothing.
func (s *Service) RolloverYear(ctx context.Context, tc tenant.Context, employeeID, leaveTypeID uuid.UUID, fromYear int) (timeoff.Snapshot, error) {
	if !timeoff.RolloverDue(fromYear, s.now()) {
		err := fmt.Errorf("%w: year %d has not ended", generic.ErrInvalidInput, fromYear)
		s.logFailure(tc, "rollover", err, zap.String("employee_id", employeeID.String()))
		return timeoff.Snapshot{}, err
	}
	var b *timeoff.LeaveBalance
	err := s.mutate(ctx, tc, "rollover", func() error {
		var err error
		b, err = s.balances.Rollover(ctx, tc, employeeID, leaveTypeID, fromYear)
		return err
	}, zap.String("employee_id", employeeID.String()), zap.Int("from_year", fromYear))
	if err != nil {
		return timeoff.Snapshot{}, err
	}
	snap := b.Snapshot()
	s.publish(ctx, tc, events.BalanceRolledOver, employeeID, snap)
	return snap, nil
}

// RolloverSummary counts the outcome of a tenant-wide rollover.
type RolloverSummary struct {
	FromYear  int `json:"from_year"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// RolloverTenant rolls over every balance row the tenant has for fromYear.
// A failing row is logged and counted; the rest still run.
func (s *Service) RolloverTenant(ctx context.Context, tc tenant.Context, fromYear int) (RolloverSummary, error) {
	sum := RolloverSummary{FromYear: fromYear}
	rows, err := s.balances.ListYear(ctx, tc, fromYear)
	if err != nil {
		s.logFailure(tc, "rollover_tenant", err, zap.Int("from_year", fromYear))
		return sum, err
	}
	for _, b := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if _, err := s.RolloverYear(ctx, tc, b.EmployeeID, b.LeaveTypeID, fromYear); err != nil {
			sum.Failed++
			continue
		}
		sum.Processed++
	}
	return sum, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (s *Service) CreateLeaveType(ctx context.Context, tc tenant.Context, lt *timeoff.LeaveType) error {
	err := s.catalog.Create(ctx, tc, lt)
	if err != nil {
		s.logFailure(tc, "create_leave_type", err, zap.String("code", lt.Code))
	}
	return err
}

func (s *Service) ListLeaveTypes(ctx context.Context, tc tenant.Context) ([]timeoff.LeaveType, error) {
	return s.catalog.List(ctx, tc)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitLeaveRequest reserves the requested days and opens a pending
// request. Fails with InsufficientBalance or DateConflict without side
// effects.
func (s *Service) SubmitLeaveRequest(ctx context.Context, tc tenant.Context, in timeoff.SubmitInput) (*timeoff.LeaveRequest, error) {
	var req *timeoff.LeaveRequest
	err := s.mutate(ctx, tc, "submit_leave_request", func() error {
		var err error
		req, err = s.requests.Submit(ctx, tc, in)
		return err
	}, zap.String("employee_id", in.EmployeeID.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, events.LeaveSubmitted, req.ID, newRequestPayload(req))
	return req, nil
}

func (s *Service) ApproveLeaveRequest(ctx context.Context, tc tenant.Context, id uuid.UUID, comment string) (*timeoff.LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionApprove, comment)
}

func (s *Service) RejectLeaveRequest(ctx context.Context, tc tenant.Context, id uuid.UUID, reason string) (*timeoff.LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionReject, reason)
}

// CancelLeaveRequest releases a pending reservation, or restores the days of
// an approved request.
func (s *Service) CancelLeaveRequest(ctx context.Context, tc tenant.Context, id uuid.UUID, reason string) (*timeoff.LeaveRequest, error) {
	return s.transition(ctx, tc, id, workflow.ActionCancel, reason)
}

var transitionEvents = map[workflow.Action]events.Type{
	workflow.ActionApprove: events.LeaveApproved,
	workflow.ActionReject:  events.LeaveRejected,
	workflow.ActionCancel:  events.LeaveCancelled,
}

func (s *Service) transition(ctx context.Context, tc tenant.Context, id uuid.UUID, action workflow.Action, comment string) (*timeoff.LeaveRequest, error) {
	var req *timeoff.LeaveRequest
	err := s.mutate(ctx, tc, string(action)+"_leave_request", func() error {
		var err error
		switch action {
		case workflow.ActionApprove:
			req, err = s.requests.Approve(ctx, tc, id, comment)
		case workflow.ActionReject:
			req, err = s.requests.Reject(ctx, tc, id, comment)
		default:
			req, err = s.requests.Cancel(ctx, tc, id, comment)
		}
		return err
	}, zap.String("request_id", id.String()))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, tc, transitionEvents[action], req.ID, newRequestPayload(req))
	return req, nil
}

func (s *Service) GetLeaveRequest(ctx context.Context, tc tenant.Context, id uuid.UUID) (*timeoff.LeaveRequest, error) {
	req, err := s.requests.Get(ctx, tc, id)
	if err != nil {
		s.logFailure(tc, "get_leave_request", err, zap.String("request_id", id.String()))
	}
	return req, err
}

func (s *Service) ListLeaveRequests(ctx context.Context, tc tenant.Context, f timeoff.RequestFilter) ([]timeoff.LeaveRequest, error) {
	out, err := s.requests.List(ctx, tc, f)
	if err != nil {
		s.logFailure(tc, "list_leave_requests", err)
	}
	return out, err
}

// =============================================================================
// HELPERS
// =============================================================================

// mutate runs op under the retry policy and logs a final failure.
func (s *Service) mutate(ctx context.Context, tc tenant.Context, op string, fn func() error, fields ...zap.Field) error {
	attempts := 0
	err := generic.Retry(ctx, s.retry, func() error {
		attempts++
		return fn()
	})
	if err != nil {
		s.logFailure(tc, op, err, append(fields, zap.Int("attempts", attempts))...)
	}
	return err
}

func (s *Service) logFailure(tc tenant.Context, op string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("operation", op),
		zap.String("code", generic.Code(err)),
		zap.Error(err))
	switch {
	case generic.IsIsolationViolation(err):
		s.logger.Error("operation denied", fields...)
	case generic.IsClientError(err), generic.IsNotFound(err), generic.IsRetryable(err):
		s.logger.Warn("operation rejected", fields...)
	default:
		s.logger.Error("operation failed", fields...)
	}
}

func (s *Service) publish(ctx context.Context, tc tenant.Context, t events.Type, subjectID uuid.UUID, payload any) {
	s.publisher.Publish(ctx, events.New(t, tc.TenantID, tc.ActorID, subjectID, payload))
}

type correctionPayload struct {
	VoidedID    uuid.UUID           `json:"voided_id"`
	Replacement jobhistory.Snapshot `json:"replacement"`
}

type requestPayload struct {
	RequestID   uuid.UUID       `json:"request_id"`
	EmployeeID  uuid.UUID       `json:"employee_id"`
	LeaveTypeID uuid.UUID       `json:"leave_type_id"`
	StartDate   generic.Date    `json:"start_date"`
	EndDate     generic.Date    `json:"end_date"`
	TotalDays   decimal.Decimal `json:"total_days"`
	Status      workflow.State  `json:"status"`
}

func newRequestPayload(r *timeoff.LeaveRequest) requestPayload {
	return requestPayload{
		RequestID:   r.ID,
		EmployeeID:  r.EmployeeID,
		LeaveTypeID: r.LeaveTypeID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		TotalDays:   r.TotalDays,
		Status:      r.Status,
	}
}
