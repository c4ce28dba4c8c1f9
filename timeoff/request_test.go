package timeoff_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
	"github.com/warp/hr-ledger/workflow"
)

func submitInput(emp, leaveTypeID uuid.UUID, start, end string) timeoff.SubmitInput {
	return timeoff.SubmitInput{
		EmployeeID:  emp,
		LeaveTypeID: leaveTypeID,
		StartDate:   generic.MustParseDate(start),
		EndDate:     generic.MustParseDate(end),
	}
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestRequest_SubmitApproveCancel(t *testing.T) {
	// GIVEN: entitlement 10, nothing used or pending
	// WHEN: Submit 3 days, approve, then cancel the approved request
	// THEN: pending=3/available=7, then used=3/pending=0/available=7,
	//       then used=0/available=10
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	emp := uuid.New()

	req, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-08-05", "2024-08-07"))
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, req.Status)
	assert.True(t, req.TotalDays.Equal(days(3)))
	assertBalance(t, f.get(t, req.BalanceKey()), 0, 3, 7)

	req, err = f.requests.Approve(ctx, f.tc, req.ID, "enjoy")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, req.Status)
	assertBalance(t, f.get(t, req.BalanceKey()), 3, 0, 7)

	req, err = f.requests.Cancel(ctx, f.tc, req.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCancelled, req.Status)
	assert.Equal(t, "plans changed", req.CancelReason)
	assertBalance(t, f.get(t, req.BalanceKey()), 0, 0, 10)

	stored, err := f.requests.Get(ctx, f.tc, req.ID)
	require.NoError(t, err)
	require.Len(t, stored.Approvals, 3)
	for i, want := range []workflow.Action{workflow.ActionSubmit, workflow.ActionApprove, workflow.ActionCancel} {
		assert.Equal(t, want, stored.Approvals[i].Action)
		assert.Equal(t, i+1, stored.Approvals[i].Sequence)
		assert.Equal(t, f.tc.ActorID, stored.Approvals[i].ActorID())
	}
	assert.Equal(t, workflow.StateApproved, stored.Approvals[2].FromState)
	assert.Equal(t, "enjoy", stored.Approvals[1].Comment)
}

func TestRequest_RejectAndCancelPendingReleaseReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	emp := uuid.New()

	rejected, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-03-04", "2024-03-05"))
	require.NoError(t, err)
	cancelled, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-04-01", "2024-04-03"))
	require.NoError(t, err)
	assertBalance(t, f.get(t, rejected.BalanceKey()), 0, 5, 5)

	_, err = f.requests.Reject(ctx, f.tc, rejected.ID, "busy week")
	require.NoError(t, err)
	_, err = f.requests.Cancel(ctx, f.tc, cancelled.ID, "")
	require.NoError(t, err)

	assertBalance(t, f.get(t, rejected.BalanceKey()), 0, 0, 10)
}

func TestRequest_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	emp := uuid.New()

	req, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-08-05", "2024-08-06"))
	require.NoError(t, err)
	_, err = f.requests.Approve(ctx, f.tc, req.ID, "")
	require.NoError(t, err)

	_, err = f.requests.Approve(ctx, f.tc, req.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)
	_, err = f.requests.Reject(ctx, f.tc, req.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)

	_, err = f.requests.Cancel(ctx, f.tc, req.ID, "")
	require.NoError(t, err)
	_, err = f.requests.Cancel(ctx, f.tc, req.ID, "")
	assert.ErrorIs(t, err, generic.ErrInvalidStateTransition)

	// Failed transitions leave no trace.
	assertBalance(t, f.get(t, req.BalanceKey()), 0, 0, 10)
	stored, err := f.requests.Get(ctx, f.tc, req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Approvals, 3)
}

// =============================================================================
// SUBMISSION RULE TESTS
// =============================================================================

func TestSubmit_OverlapWithPendingRequest_IsDateConflict(t *testing.T) {
	// GIVEN: A pending request for 2024-08-01 (full day)
	// WHEN: The same employee submits 2024-08-01 afternoon to 2024-08-02
	// THEN: DateConflict, and only the first reservation is held
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	emp := uuid.New()

	first, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-08-01", "2024-08-01"))
	require.NoError(t, err)

	in := submitInput(emp, lt.ID, "2024-08-01", "2024-08-02")
	in.StartPart = timeoff.DayAfternoon
	_, err = f.requests.Submit(ctx, f.tc, in)

	var dc *generic.DateConflictError
	require.ErrorAs(t, err, &dc)
	assert.Equal(t, first.ID, dc.ExistingID)
	assertBalance(t, f.get(t, first.BalanceKey()), 0, 1, 9)

	// Once the first request stops blocking, the dates are free again.
	_, err = f.requests.Reject(ctx, f.tc, first.ID, "")
	require.NoError(t, err)
	second, err := f.requests.Submit(ctx, f.tc, in)
	require.NoError(t, err)
	assert.True(t, second.TotalDays.Equal(days(1.5)))
}

func TestSubmit_OverlapAcrossLeaveTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annual := f.leaveType(t, "ANNUAL", 10, 0, true)
	sick := f.leaveType(t, "SICK", 10, 0, true)
	emp := uuid.New()

	_, err := f.requests.Submit(ctx, f.tc, submitInput(emp, annual.ID, "2024-08-01", "2024-08-05"))
	require.NoError(t, err)
	_, err = f.requests.Submit(ctx, f.tc, submitInput(emp, sick.ID, "2024-08-05", "2024-08-06"))
	assert.ErrorIs(t, err, generic.ErrDateConflict)

	// Another employee is unaffected.
	_, err = f.requests.Submit(ctx, f.tc, submitInput(uuid.New(), annual.ID, "2024-08-01", "2024-08-05"))
	assert.NoError(t, err)
}

func TestSubmit_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 2, 0, true)
	emp := uuid.New()

	_, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-08-05", "2024-08-07"))
	var ib *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Available.Equal(days(2)))
	assert.True(t, ib.Requested.Equal(days(3)))

	list, err := f.requests.List(ctx, f.tc, timeoff.RequestFilter{EmployeeID: emp})
	require.NoError(t, err)
	assert.Empty(t, list, "a rejected submission stores nothing")
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fullDaysOnly := f.leaveType(t, "SICK", 10, 0, false)
	emp := uuid.New()

	halfDay := submitInput(emp, fullDaysOnly.ID, "2024-08-01", "2024-08-02")
	halfDay.EndPart = timeoff.DayMorning

	tests := []struct {
		name string
		in   timeoff.SubmitInput
	}{
		{"half day not allowed", halfDay},
		{"spans two years", submitInput(emp, fullDaysOnly.ID, "2024-12-30", "2025-01-02")},
		{"end before start", submitInput(emp, fullDaysOnly.ID, "2024-08-02", "2024-08-01")},
		{"missing employee", submitInput(uuid.Nil, fullDaysOnly.ID, "2024-08-01", "2024-08-01")},
		{"missing leave type", submitInput(emp, uuid.Nil, "2024-08-01", "2024-08-01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.requests.Submit(ctx, f.tc, tt.in)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
		})
	}

	_, err := f.requests.Submit(ctx, f.tc, submitInput(emp, uuid.New(), "2024-08-01", "2024-08-01"))
	assert.ErrorIs(t, err, generic.ErrNotFound, "unknown leave type")
}

func TestSubmit_TotalDaysFixedAtSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	emp := uuid.New()

	in := submitInput(emp, lt.ID, "2024-08-01", "2024-08-03")
	in.StartPart, in.EndPart = timeoff.DayAfternoon, timeoff.DayMorning
	in.Attachments = []string{"s3://docs/ticket.pdf"}
	req, err := f.requests.Submit(ctx, f.tc, in)
	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(days(2)))

	_, err = f.requests.Approve(ctx, f.tc, req.ID, "")
	require.NoError(t, err)
	assertBalance(t, f.get(t, req.BalanceKey()), 2, 0, 8)

	stored, err := f.requests.Get(ctx, f.tc, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://docs/ticket.pdf"}, stored.Attachments)
	assert.Equal(t, timeoff.DayAfternoon, stored.StartPart)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 30, 0, true)
	emp := uuid.New()

	a, err := f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-02-01", "2024-02-01"))
	require.NoError(t, err)
	_, err = f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2024-09-01", "2024-09-02"))
	require.NoError(t, err)
	_, err = f.requests.Submit(ctx, f.tc, submitInput(emp, lt.ID, "2025-01-10", "2025-01-10"))
	require.NoError(t, err)
	_, err = f.requests.Approve(ctx, f.tc, a.ID, "")
	require.NoError(t, err)

	all, err := f.requests.List(ctx, f.tc, timeoff.RequestFilter{EmployeeID: emp})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-01-10", all[0].StartDate.String(), "newest first")
	assert.Len(t, all[2].Approvals, 2)

	approved, err := f.requests.List(ctx, f.tc, timeoff.RequestFilter{EmployeeID: emp, Status: workflow.StateApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, a.ID, approved[0].ID)

	in2024, err := f.requests.List(ctx, f.tc, timeoff.RequestFilter{EmployeeID: emp, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, in2024, 2)
}

func TestRequests_AreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 10, 0, true)
	req, err := f.requests.Submit(ctx, f.tc, submitInput(uuid.New(), lt.ID, "2024-08-01", "2024-08-01"))
	require.NoError(t, err)

	other := &tenant.Tenant{Name: "Globex"}
	require.NoError(t, f.gate.RegisterTenant(ctx, other))
	intruder := tenant.New(other.ID, uuid.New())

	_, err = f.requests.Get(ctx, intruder, req.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = f.requests.Approve(ctx, intruder, req.ID, "")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	// Another tenant cannot even see the leave type to submit against it.
	_, err = f.requests.Submit(ctx, intruder, submitInput(uuid.New(), lt.ID, "2024-08-01", "2024-08-01"))
	assert.ErrorIs(t, err, generic.ErrNotFound)

	stored, err := f.requests.Get(ctx, f.tc, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, stored.Status)
}
