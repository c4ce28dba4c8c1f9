/*
handlers.go - HTTP API handlers for the HR ledger

PURPOSE:
  Exposes core.Service via REST. Handlers parse the request, call one core
  operation with the tenant.Context resolved by TenantMiddleware, and map
  the result or error to JSON.

ENDPOINTS (all under /api/v1):
  Job history:
    GET    /employees/{employeeID}/job?date=YYYY-MM-DD   Job at a date
    GET    /employees/{employeeID}/job/current           Current job
    GET    /employees/{employeeID}/job/history           Full history
    POST   /employees/{employeeID}/job                   Record job change
    POST   /jobs/{id}/void                               Void an interval
    POST   /jobs/{id}/correct                            Correct an interval

  Balances:
    GET    /employees/{employeeID}/balances?year=                      List
    GET    /employees/{employeeID}/balances/{leaveTypeID}?year=        One
    GET    /employees/{employeeID}/balances/{leaveTypeID}/journal?year= Journal

  Leave:
    GET    /leave-types                                  List leave types
    POST   /leave-types                                  Create leave type
    POST   /employees/{employeeID}/leave-requests        Submit
    GET    /employees/{employeeID}/leave-requests        List (?status=&year=)
    GET    /leave-requests/{id}                          Get with approvals
    POST   /leave-requests/{id}/approve|reject|cancel    Transition

  Admin:
    POST   /admin/rollover                               Year-end rollover
    POST   /tenants, PUT /tenants/{id}/status            Tenant provisioning

ERROR HANDLING:
  - 400: INVALID_INPUT
  - 403: ACCESS_DENIED, no details
  - 404: NOT_FOUND
  - 409: DATE_CONFLICT, INVALID_STATE_TRANSITION
  - 422: INSUFFICIENT_BALANCE
  - 503: CONCURRENCY_CONFLICT (retry later)
  - 500: anything else, no details

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Tenant resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/hr-ledger/core"
	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
	"github.com/warp/hr-ledger/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *core.Service
	Gate    *tenant.Gate
}

func NewHandler(svc *core.Service, gate *tenant.Gate) *Handler {
	return &Handler{Service: svc, Gate: gate}
}

// =============================================================================
// JOB HISTORY
// =============================================================================

// ResolveJob returns the job held on ?date (today if absent).
// GET /api/v1/employees/{employeeID}/job
func (h *Handler) ResolveJob(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	date := generic.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := generic.ParseDate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		date = d
	}

	snap, err := h.Service.ResolveJobAtDate(r.Context(), tenantFrom(r.Context()), employeeID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "no job interval covers " + date.String(),
			Code:  generic.CodeNotFound,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/employees/{employeeID}/job/current
func (h *Handler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	snap, err := h.Service.CurrentJob(r.Context(), tenantFrom(r.Context()), employeeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "employee has no current job", Code: generic.CodeNotFound})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/employees/{employeeID}/job/history
func (h *Handler) JobHistory(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	rows, err := h.Service.JobHistory(r.Context(), tenantFrom(r.Context()), employeeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// POST /api/v1/employees/{employeeID}/job
func (h *Handler) RecordJobChange(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	var req RecordJobChangeRequest
	if !decode(w, r, &req) {
		return
	}

	tc := tenantFrom(r.Context())
	record := h.Service.RecordJobChange
	if req.Backdated {
		record = h.Service.RecordBackdatedJobChange
	}
	jh, err := record(r.Context(), tc, req.toChange(employeeID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, JobIDDTO{ID: jh.ID, Snapshot: jh.Snapshot()})
}

// POST /api/v1/jobs/{id}/void
func (h *Handler) VoidJob(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req VoidJobRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	jh, err := h.Service.VoidJob(r.Context(), tenantFrom(r.Context()), id, req.SupersededBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jh)
}

// POST /api/v1/jobs/{id}/correct
func (h *Handler) CorrectJob(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req CorrectJobRequest
	if !decode(w, r, &req) {
		return
	}
	jh, err := h.Service.CorrectJob(r.Context(), tenantFrom(r.Context()), id, req.toReplacement())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, JobIDDTO{ID: jh.ID, Snapshot: jh.Snapshot()})
}

// =============================================================================
// BALANCES
// =============================================================================

// GET /api/v1/employees/{employeeID}/balances
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	year, ok := queryYear(w, r)
	if !ok {
		return
	}
	rows, err := h.Service.ListBalances(r.Context(), tenantFrom(r.Context()), employeeID, year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GET /api/v1/employees/{employeeID}/balances/{leaveTypeID}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	leaveTypeID, ok := urlID(w, r, "leaveTypeID")
	if !ok {
		return
	}
	year, ok := queryYear(w, r)
	if !ok {
		return
	}
	snap, err := h.Service.GetBalance(r.Context(), tenantFrom(r.Context()), employeeID, leaveTypeID, year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/employees/{employeeID}/balances/{leaveTypeID}/journal
func (h *Handler) BalanceJournal(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	leaveTypeID, ok := urlID(w, r, "leaveTypeID")
	if !ok {
		return
	}
	year, ok := queryYear(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.BalanceJournal(r.Context(), tenantFrom(r.Context()), employeeID, leaveTypeID, year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

// GET /api/v1/leave-types
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListLeaveTypes(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// POST /api/v1/leave-types
func (h *Handler) CreateLeaveType(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveTypeRequest
	if !decode(w, r, &req) {
		return
	}
	lt := req.toLeaveType()
	if err := h.Service.CreateLeaveType(r.Context(), tenantFrom(r.Context()), lt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lt)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// POST /api/v1/employees/{employeeID}/leave-requests
func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	var req SubmitLeaveRequest
	if !decode(w, r, &req) {
		return
	}
	lr, err := h.Service.SubmitLeaveRequest(r.Context(), tenantFrom(r.Context()), req.toInput(employeeID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lr)
}

// GET /api/v1/employees/{employeeID}/leave-requests
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := urlID(w, r, "employeeID")
	if !ok {
		return
	}
	f := timeoff.RequestFilter{EmployeeID: employeeID}
	if s := r.URL.Query().Get("status"); s != "" {
		f.Status = workflow.State(s)
		if !f.Status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown status " + s, Code: generic.CodeInvalidInput})
			return
		}
	}
	if r.URL.Query().Get("year") != "" {
		year, ok := queryYear(w, r)
		if !ok {
			return
		}
		f.Year = year
	}
	out, err := h.Service.ListLeaveRequests(r.Context(), tenantFrom(r.Context()), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/leave-requests/{id}
func (h *Handler) GetLeaveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	lr, err := h.Service.GetLeaveRequest(r.Context(), tenantFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lr)
}

// POST /api/v1/leave-requests/{id}/approve
func (h *Handler) ApproveLeaveRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.ApproveLeaveRequest)
}

// POST /api/v1/leave-requests/{id}/reject
func (h *Handler) RejectLeaveRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.RejectLeaveRequest)
}

// POST /api/v1/leave-requests/{id}/cancel
func (h *Handler) CancelLeaveRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CancelLeaveRequest)
}

type transitionFunc func(ctx context.Context, tc tenant.Context, id uuid.UUID, comment string) (*timeoff.LeaveRequest, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req TransitionRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	lr, err := fn(r.Context(), tenantFrom(r.Context()), id, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lr)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerRollover runs year-end rollover for one balance or the whole tenant.
// POST /api/v1/admin/rollover
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if !decode(w, r, &req) {
		return
	}
	tc := tenantFrom(r.Context())
	if req.EmployeeID != uuid.Nil || req.LeaveTypeID != uuid.Nil {
		snap, err := h.Service.RolloverYear(r.Context(), tc, req.EmployeeID, req.LeaveTypeID, req.FromYear)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}
	sum, err := h.Service.RolloverTenant(r.Context(), tc, req.FromYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// POST /api/v1/tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !decode(w, r, &req) {
		return
	}
	t := &tenant.Tenant{Name: req.Name, Settings: req.Settings}
	if err := h.Gate.RegisterTenant(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// PUT /api/v1/tenants/{id}/status
func (h *Handler) SetTenantStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req SetTenantStatusRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Gate.SetTenantStatus(r.Context(), id, req.Status); err != nil {
		// Unknown tenant ids are not secret to the administrator.
		if errors.Is(err, generic.ErrTenantNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: generic.CodeNotFound})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status and a stable code. Isolation and internal
// failures carry no details.
func writeError(w http.ResponseWriter, err error) {
	code := generic.Code(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	status := http.StatusInternalServerError

	switch code {
	case generic.CodeAccessDenied:
		status, resp.Error = http.StatusForbidden, "access denied"
	case generic.CodeNotFound:
		status = http.StatusNotFound
	case generic.CodeInvalidInput:
		status = http.StatusBadRequest
	case generic.CodeDateConflict, generic.CodeInvalidStateTransition:
		status = http.StatusConflict
	case generic.CodeInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case generic.CodeConcurrencyConflict:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	default:
		resp.Error = "internal error"
	}

	var ib *generic.InsufficientBalanceError
	var dc *generic.DateConflictError
	switch {
	case errors.As(err, &ib):
		resp.Details = map[string]any{
			"available": ib.Available,
			"requested": ib.Requested,
			"year":      ib.Year,
		}
	case errors.As(err, &dc):
		resp.Details = map[string]any{
			"existing_id": dc.ExistingID,
			"requested":   dc.Requested,
			"existing":    dc.Existing,
		}
	}
	writeJSON(w, status, resp)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Code:    generic.CodeInvalidInput,
			Details: err.Error(),
		})
		return false
	}
	return true
}

func urlID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := generic.ParseID(param, chi.URLParam(r, param))
	if err != nil {
		writeError(w, err)
		return uuid.Nil, false
	}
	return id, true
}

// queryYear reads ?year, defaulting to the current year.
func queryYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return generic.Today().Year(), true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "year must be an integer", Code: generic.CodeInvalidInput})
		return 0, false
	}
	return year, true
}
