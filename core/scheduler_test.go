package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/hr-ledger/core"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
)

func TestRolloverScheduler_RunNowSkipsSuspendedTenants(t *testing.T) {
	// GIVEN: Two tenants with 2024 balances, one of them suspended
	// WHEN: The scheduler runs in March 2025
	// THEN: Only the active tenant is rolled over, and a rerun is harmless
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 20, 5)
	emp := uuid.New()
	_, err := f.svc.GetBalance(ctx, f.tc, emp, lt.ID, 2024)
	require.NoError(t, err)

	other := &tenant.Tenant{Name: "Dormant"}
	require.NoError(t, f.gate.RegisterTenant(ctx, other))
	otc := tenant.New(other.ID, uuid.New())
	olt := &timeoff.LeaveType{Code: "ANNUAL", Name: "Annual", AnnualEntitlement: lt.AnnualEntitlement}
	require.NoError(t, f.svc.CreateLeaveType(ctx, otc, olt))
	_, err = f.svc.GetBalance(ctx, otc, uuid.New(), olt.ID, 2024)
	require.NoError(t, err)
	require.NoError(t, f.gate.SetTenantStatus(ctx, other.ID, tenant.StatusSuspended))

	rs := core.NewRolloverScheduler(f.svc, f.gate, zaptest.NewLogger(t))
	got := rs.RunNow(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, core.RolloverSummary{FromYear: 2024, Processed: 1}, got[f.tc.TenantID])

	got = rs.RunNow(ctx)
	assert.Equal(t, 1, got[f.tc.TenantID].Processed)

	rows, err := f.svc.ListBalances(ctx, f.tc, emp, 2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CarriedOver.Equal(lt.MaxCarryOver))

	// Rows written by the scheduler carry the system actor.
	journal, err := f.svc.BalanceJournal(ctx, f.tc, emp, lt.ID, 2025)
	require.NoError(t, err)
	require.NotEmpty(t, journal)
	assert.Equal(t, core.SystemActorID, journal[len(journal)-1].CreatedBy)
}

func TestRolloverScheduler_StartRunsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lt := f.leaveType(t, "ANNUAL", 20, 5)
	emp := uuid.New()
	_, err := f.svc.GetBalance(ctx, f.tc, emp, lt.ID, 2024)
	require.NoError(t, err)

	rs := core.NewRolloverScheduler(f.svc, f.gate, zaptest.NewLogger(t))
	rs.CheckInterval = time.Hour
	rs.Start()
	rs.Start() // no-op while running

	require.Eventually(t, func() bool {
		return len(f.events.OfType("balance.rolled_over")) == 1
	}, 5*time.Second, 10*time.Millisecond)
	rs.Stop()
	rs.Stop()

	assert.Equal(t, time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC), rs.NextRunTime())
}

func TestRolloverScheduler_Disabled(t *testing.T) {
	f := newFixture(t)
	rs := core.NewRolloverScheduler(f.svc, f.gate, nil)
	rs.Enabled = false
	rs.Start()
	rs.Stop()
	assert.Empty(t, f.events.Events())
}
