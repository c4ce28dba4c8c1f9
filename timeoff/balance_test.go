package timeoff_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/timeoff"
	"github.com/warp/hr-ledger/workflow"
)

func days(v float64) decimal.Decimal { return generic.NewQuantity(v) }

func balance(entitlement, carried, used, pending float64) timeoff.LeaveBalance {
	return timeoff.LeaveBalance{
		Year:        2024,
		Entitlement: days(entitlement),
		CarriedOver: days(carried),
		Used:        days(used),
		Pending:     days(pending),
	}
}

func TestLeaveBalance_Available(t *testing.T) {
	b := balance(20, 3, 5, 2.5)
	assert.True(t, b.Available().Equal(days(15.5)))
}

func TestLeaveBalance_Apply(t *testing.T) {
	tests := []struct {
		name        string
		start       timeoff.LeaveBalance
		effect      workflow.Effect
		days        float64
		wantUsed    float64
		wantPending float64
	}{
		{"reserve moves available to pending", balance(10, 0, 0, 0), workflow.EffectReserve, 3, 0, 3},
		{"reserve may take everything", balance(10, 0, 4, 3), workflow.EffectReserve, 3, 4, 6},
		{"release returns pending", balance(10, 0, 0, 3), workflow.EffectRelease, 3, 0, 0},
		{"consume moves pending to used", balance(10, 0, 0, 3), workflow.EffectConsume, 3, 3, 0},
		{"restore returns used", balance(10, 0, 3, 0), workflow.EffectRestore, 3, 0, 0},
		{"half days", balance(10, 0, 0, 1), workflow.EffectConsume, 0.5, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.start
			require.NoError(t, b.Apply(tt.effect, days(tt.days)))
			assert.True(t, b.Used.Equal(days(tt.wantUsed)), "used %s", b.Used)
			assert.True(t, b.Pending.Equal(days(tt.wantPending)), "pending %s", b.Pending)
			assert.False(t, b.Available().IsNegative())
		})
	}
}

func TestLeaveBalance_Apply_PreconditionsLeaveRowUntouched(t *testing.T) {
	tests := []struct {
		name    string
		start   timeoff.LeaveBalance
		effect  workflow.Effect
		days    float64
		wantErr error
	}{
		{"reserve beyond available", balance(10, 0, 4, 3), workflow.EffectReserve, 3.5, generic.ErrInsufficientBalance},
		{"release beyond pending", balance(10, 0, 0, 1), workflow.EffectRelease, 2, generic.ErrInvalidInput},
		{"consume beyond pending", balance(10, 0, 0, 1), workflow.EffectConsume, 2, generic.ErrInvalidInput},
		{"restore beyond used", balance(10, 0, 1, 0), workflow.EffectRestore, 2, generic.ErrInvalidInput},
		{"zero days", balance(10, 0, 0, 0), workflow.EffectReserve, 0, generic.ErrInvalidInput},
		{"negative days", balance(10, 0, 0, 0), workflow.EffectReserve, -1, generic.ErrInvalidInput},
		{"unknown effect", balance(10, 0, 0, 0), workflow.Effect("forfeit"), 1, generic.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.start
			err := b.Apply(tt.effect, days(tt.days))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.start, b)
		})
	}
}

func TestLeaveBalance_Apply_InsufficientBalanceDetails(t *testing.T) {
	b := balance(5, 1, 2, 0)
	err := b.Apply(workflow.EffectReserve, days(6))

	var ib *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Available.Equal(days(4)))
	assert.True(t, ib.Requested.Equal(days(6)))
	assert.Equal(t, 2024, ib.Year)
	assert.Equal(t, generic.CodeInsufficientBalance, generic.Code(err))
}

func TestLeaveBalance_RoundTrips(t *testing.T) {
	// GIVEN: A balance
	// WHEN: Reserve then Release, or Reserve, Consume, Restore
	// THEN: The balance returns to where it started
	start := balance(10, 2, 1, 0.5)

	b := start
	require.NoError(t, b.Apply(workflow.EffectReserve, days(2.5)))
	require.NoError(t, b.Apply(workflow.EffectRelease, days(2.5)))
	assert.True(t, b.Available().Equal(start.Available()))

	b = start
	require.NoError(t, b.Apply(workflow.EffectReserve, days(4)))
	require.NoError(t, b.Apply(workflow.EffectConsume, days(4)))
	require.NoError(t, b.Apply(workflow.EffectRestore, days(4)))
	assert.True(t, b.Used.Equal(start.Used))
	assert.True(t, b.Pending.Equal(start.Pending))
}
