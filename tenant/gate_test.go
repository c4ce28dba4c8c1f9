package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/store/sqlite"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })
	return db
}

func newTestGate(t *testing.T, opts ...tenant.Option) (*tenant.Gate, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	opts = append([]tenant.Option{tenant.WithErrorTranslator(sqlite.Translate)}, opts...)
	g, err := tenant.NewGate(db, opts...)
	require.NoError(t, err)
	return g, db
}

func registerTenant(t *testing.T, g *tenant.Gate, name string) tenant.Context {
	t.Helper()
	tn := &tenant.Tenant{Name: name}
	require.NoError(t, g.RegisterTenant(context.Background(), tn))
	return tenant.New(tn.ID, uuid.New())
}

func annualLeave() *timeoff.LeaveType {
	return &timeoff.LeaveType{
		Code:              "ANNUAL",
		Name:              "Annual leave",
		AnnualEntitlement: decimal.NewFromInt(20),
		MaxCarryOver:      decimal.NewFromInt(5),
	}
}

// =============================================================================
// CONTEXT TESTS
// =============================================================================

func TestContext_Validate(t *testing.T) {
	assert.NoError(t, tenant.New(uuid.New(), uuid.New()).Validate())
	assert.ErrorIs(t, tenant.New(uuid.Nil, uuid.New()).Validate(), generic.ErrNoTenantContext)
	assert.ErrorIs(t, tenant.New(uuid.New(), uuid.Nil).Validate(), generic.ErrNoTenantContext)
}

func TestContext_RoundTripsThroughRequestContext(t *testing.T) {
	tc := tenant.New(uuid.New(), uuid.New())
	ctx := tenant.WithContext(context.Background(), tc)

	got, ok := tenant.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tc, got)

	_, ok = tenant.FromContext(context.Background())
	assert.False(t, ok)
}

// =============================================================================
// ISOLATION TESTS
// =============================================================================

func TestGate_ReadWithoutContext_Fails(t *testing.T) {
	// GIVEN: A gate with an error observer
	// WHEN: A read is attempted with an empty context
	// THEN: ErrNoTenantContext, logged at error level
	core, logs := observer.New(zap.ErrorLevel)
	g, _ := newTestGate(t, tenant.WithLogger(zap.New(core)))

	_, err := g.Read(context.Background(), tenant.Context{})
	assert.ErrorIs(t, err, generic.ErrNoTenantContext)
	assert.True(t, generic.IsIsolationViolation(err))
	assert.Equal(t, 1, logs.FilterMessage("isolation violation").Len())
}

func TestGate_Insert_StampsOwnershipAndAudit(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	g, _ := newTestGate(t, tenant.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	lt := annualLeave()
	require.NoError(t, g.Insert(ctx, tc, lt))

	assert.NotEqual(t, uuid.Nil, lt.ID)
	assert.Equal(t, tc.TenantID, lt.TenantID)
	assert.Equal(t, tc.ActorID, lt.CreatedBy)
	assert.True(t, lt.CreatedAt.Equal(now))
	assert.False(t, lt.IsDeleted)

	var stored timeoff.LeaveType
	require.NoError(t, g.Find(ctx, tc, &stored, lt.ID))
	assert.Equal(t, "ANNUAL", stored.Code)
	assert.Equal(t, tc.ActorID, stored.CreatedBy)
}

func TestGate_OtherTenantsRowsLookMissing(t *testing.T) {
	// GIVEN: Tenant A owns a leave type
	// WHEN: Tenant B looks it up by id or lists its leave types
	// THEN: NotFound and an empty list
	g, _ := newTestGate(t)
	ctx := context.Background()
	tenantA := registerTenant(t, g, "A")
	tenantB := registerTenant(t, g, "B")

	lt := annualLeave()
	require.NoError(t, g.Insert(ctx, tenantA, lt))

	var stolen timeoff.LeaveType
	err := g.Find(ctx, tenantB, &stolen, lt.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	q, err := g.Read(ctx, tenantB)
	require.NoError(t, err)
	var rows []timeoff.LeaveType
	require.NoError(t, q.Find(&rows).Error)
	assert.Empty(t, rows)
}

func TestGate_WriteNamingAnotherTenant_IsRejected(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	g, _ := newTestGate(t, tenant.WithLogger(zap.New(core)))
	ctx := context.Background()
	tenantA := registerTenant(t, g, "A")
	tenantB := registerTenant(t, g, "B")

	lt := annualLeave()
	lt.TenantID = tenantA.TenantID
	err := g.Insert(ctx, tenantB, lt)
	assert.ErrorIs(t, err, generic.ErrTenantMismatch)

	owned := annualLeave()
	require.NoError(t, g.Insert(ctx, tenantA, owned))
	owned.Name = "Hijacked"
	err = g.Update(ctx, tenantB, owned, "name")
	assert.ErrorIs(t, err, generic.ErrTenantMismatch)

	var stored timeoff.LeaveType
	require.NoError(t, g.Find(ctx, tenantA, &stored, owned.ID))
	assert.Equal(t, "Annual leave", stored.Name)
	assert.Equal(t, 2, logs.FilterMessage("isolation violation: tenant mismatch").Len())
}

// =============================================================================
// WRITE TESTS
// =============================================================================

func TestGate_Update_StampsUpdater(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	lt := annualLeave()
	require.NoError(t, g.Insert(ctx, tc, lt))

	editor := tenant.New(tc.TenantID, uuid.New())
	lt.Name = "Paid time off"
	require.NoError(t, g.Update(ctx, editor, lt, "name"))

	var stored timeoff.LeaveType
	require.NoError(t, g.Find(ctx, tc, &stored, lt.ID))
	assert.Equal(t, "Paid time off", stored.Name)
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, editor.ActorID, *stored.UpdatedBy)
	assert.Equal(t, tc.ActorID, stored.CreatedBy)
}

func TestGate_Update_StaleVersionConflicts(t *testing.T) {
	// GIVEN: Two copies of the same versioned balance row
	// WHEN: Both are written
	// THEN: The second write fails with ErrConcurrencyConflict and the
	//       stored row keeps the first write
	g, _ := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	b := &timeoff.LeaveBalance{
		EmployeeID:  uuid.New(),
		LeaveTypeID: uuid.New(),
		Year:        2024,
		Entitlement: decimal.NewFromInt(10),
	}
	require.NoError(t, g.Insert(ctx, tc, b))
	assert.Equal(t, int64(1), b.Version.Version)

	first, second := *b, *b
	first.Pending = decimal.NewFromInt(3)
	require.NoError(t, g.Update(ctx, tc, &first, "pending"))
	assert.Equal(t, int64(2), first.Version.Version)

	second.Pending = decimal.NewFromInt(7)
	err := g.Update(ctx, tc, &second, "pending")
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)
	assert.Equal(t, int64(1), second.Version.Version, "failed update leaves the version untouched")

	var stored timeoff.LeaveBalance
	require.NoError(t, g.Find(ctx, tc, &stored, b.ID))
	assert.True(t, stored.Pending.Equal(decimal.NewFromInt(3)))
}

func TestGate_SoftDelete_HidesFromReads(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	lt := annualLeave()
	require.NoError(t, g.Insert(ctx, tc, lt))
	require.NoError(t, g.SoftDelete(ctx, tc, lt))

	var gone timeoff.LeaveType
	assert.ErrorIs(t, g.Find(ctx, tc, &gone, lt.ID), generic.ErrNotFound)

	q, err := g.ReadIncludingDeleted(ctx, tc)
	require.NoError(t, err)
	var audit timeoff.LeaveType
	require.NoError(t, q.Where("id = ?", lt.ID).Take(&audit).Error)
	assert.True(t, audit.IsDeleted)
	require.NotNil(t, audit.DeletedBy)
	assert.Equal(t, tc.ActorID, *audit.DeletedBy)

	// A second delete finds nothing live to flag.
	assert.ErrorIs(t, g.SoftDelete(ctx, tc, &audit), generic.ErrNotFound)
}

func TestGate_GuardsRejectWritesBypassingTheGate(t *testing.T) {
	g, db := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	t.Run("raw insert", func(t *testing.T) {
		lt := annualLeave()
		lt.ID, lt.TenantID, lt.CreatedBy, lt.CreatedAt = uuid.New(), tc.TenantID, tc.ActorID, time.Now()
		err := db.Create(lt).Error
		assert.ErrorIs(t, err, generic.ErrNoTenantContext)
	})

	t.Run("raw update", func(t *testing.T) {
		lt := annualLeave()
		require.NoError(t, g.Insert(ctx, tc, lt))
		err := db.Model(lt).Update("name", "Sneaky").Error
		assert.ErrorIs(t, err, generic.ErrNoTenantContext)
	})

	t.Run("physical delete", func(t *testing.T) {
		lt := annualLeave()
		lt.Code = "SICK"
		require.NoError(t, g.Insert(ctx, tc, lt))
		err := db.Delete(lt).Error
		assert.ErrorIs(t, err, generic.ErrPhysicalDelete)

		var still timeoff.LeaveType
		assert.NoError(t, g.Find(ctx, tc, &still, lt.ID))
	})
}

func TestGate_Transaction_RollsBackOnError(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	boom := errors.New("boom")
	lt := annualLeave()
	err := g.Transaction(ctx, func(tx *tenant.Gate) error {
		if err := tx.Insert(ctx, tc, lt); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var gone timeoff.LeaveType
	assert.ErrorIs(t, g.Find(ctx, tc, &gone, lt.ID), generic.ErrNotFound)
}

func TestGate_Translate(t *testing.T) {
	g, _ := newTestGate(t)

	assert.NoError(t, g.Translate(nil))
	assert.ErrorIs(t, g.Translate(gorm.ErrRecordNotFound), generic.ErrNotFound)
	assert.ErrorIs(t, g.Translate(gorm.ErrDuplicatedKey), generic.ErrConcurrencyConflict)

	plain := errors.New("disk full")
	assert.Equal(t, plain, g.Translate(plain))
}

// =============================================================================
// TENANT REGISTRY TESTS
// =============================================================================

func TestLookupTenant(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	tc := registerTenant(t, g, "Acme")

	got, err := g.LookupTenant(ctx, tc.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, got.Active())

	_, err = g.LookupTenant(ctx, uuid.New())
	assert.ErrorIs(t, err, generic.ErrTenantNotFound)

	_, err = g.LookupTenant(ctx, uuid.Nil)
	assert.ErrorIs(t, err, generic.ErrNoTenantContext)

	require.NoError(t, g.SetTenantStatus(ctx, tc.TenantID, tenant.StatusSuspended))
	_, err = g.LookupTenant(ctx, tc.TenantID)
	assert.ErrorIs(t, err, generic.ErrTenantInactive)
	assert.Equal(t, generic.CodeAccessDenied, generic.Code(err))
}

func TestRegisterTenant_Validation(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	assert.ErrorIs(t, g.RegisterTenant(ctx, &tenant.Tenant{Name: "  "}), generic.ErrInvalidInput)
	assert.ErrorIs(t, g.RegisterTenant(ctx, &tenant.Tenant{Name: "X", Status: "paused"}), generic.ErrInvalidInput)
	assert.ErrorIs(t, g.SetTenantStatus(ctx, uuid.New(), tenant.StatusActive), generic.ErrTenantNotFound)
	assert.ErrorIs(t, g.SetTenantStatus(ctx, uuid.New(), "paused"), generic.ErrInvalidInput)
}

func TestRegisterTenant_PersistsSettings(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	tn := &tenant.Tenant{
		Name:     "Acme",
		Settings: tenant.Settings{Locale: "fr-FR", Features: []string{"half_days"}},
	}
	require.NoError(t, g.RegisterTenant(ctx, tn))

	got, err := g.LookupTenant(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", got.Settings.Locale)
	assert.True(t, got.Settings.HasFeature("half_days"))
	assert.False(t, got.Settings.HasFeature("payroll"))
}

func TestListTenants_FiltersByStatus(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	active := registerTenant(t, g, "Active")
	expired := registerTenant(t, g, "Expired")
	require.NoError(t, g.SetTenantStatus(ctx, expired.TenantID, tenant.StatusExpired))

	all, err := g.ListTenants(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	live, err := g.ListTenants(ctx, tenant.StatusActive)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, active.TenantID, live[0].ID)
}
