package timeoff_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/timeoff"
)

func TestCatalog_CreateNormalizesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lt := &timeoff.LeaveType{Code: "  annual ", Name: "Annual leave", AnnualEntitlement: days(20)}
	require.NoError(t, f.catalog.Create(ctx, f.tc, lt))
	assert.Equal(t, "ANNUAL", lt.Code)

	got, err := f.catalog.Get(ctx, f.tc, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annual leave", got.Name)
}

func TestCatalog_DuplicateCodeWithinTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.leaveType(t, "ANNUAL", 20, 5, true)

	err := f.catalog.Create(ctx, f.tc, &timeoff.LeaveType{Code: "annual", Name: "Again", AnnualEntitlement: days(1)})
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)
}

func TestCatalog_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, lt := range []*timeoff.LeaveType{
		{Code: "", Name: "No code"},
		{Code: "X", Name: ""},
		{Code: "X", Name: "Negative", AnnualEntitlement: days(-1)},
		{Code: "X", Name: "Negative carry", MaxCarryOver: days(-1)},
	} {
		assert.ErrorIs(t, f.catalog.Create(ctx, f.tc, lt), generic.ErrInvalidInput)
	}
}

func TestCatalog_ListAndRetire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sick := f.leaveType(t, "SICK", 10, 0, false)
	f.leaveType(t, "ANNUAL", 20, 5, true)

	list, err := f.catalog.List(ctx, f.tc)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ANNUAL", list[0].Code)

	require.NoError(t, f.catalog.Retire(ctx, f.tc, sick.ID))
	list, err = f.catalog.List(ctx, f.tc)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// A retired code can be reused.
	f.leaveType(t, "SICK", 12, 0, false)

	_, err = f.requests.Submit(ctx, f.tc, submitInput(uuid.New(), sick.ID, "2024-08-01", "2024-08-01"))
	assert.ErrorIs(t, err, generic.ErrNotFound)

	assert.ErrorIs(t, f.catalog.Retire(ctx, f.tc, uuid.New()), generic.ErrNotFound)
}
