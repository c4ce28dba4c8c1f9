package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warp/hr-ledger/generic"
)

// =============================================================================
// GATE - Scoped reads and stamped writes
// =============================================================================

// Gate wraps a gorm handle. A Gate obtained inside Transaction is bound to
// that transaction; every query issued through it runs on the same connection.
type Gate struct {
	db        *gorm.DB
	logger    *zap.Logger
	now       func() time.Time
	translate func(error) error
}

type Option func(*Gate)

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithErrorTranslator maps driver errors (lock timeouts, serialization
// failures) onto the generic taxonomy. Unrecognized errors must be returned
// unchanged.
func WithErrorTranslator(fn func(error) error) Option {
	return func(g *Gate) { g.translate = fn }
}

// NewGate registers the write guards on db once and returns a Gate over it.
func NewGate(db *gorm.DB, opts ...Option) (*Gate, error) {
	if db == nil {
		return nil, errors.New("tenant: nil database")
	}
	g := &Gate{
		db:     db,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("tenant_gate")
	if err := registerGuards(db); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gate) with(db *gorm.DB) *Gate {
	cp := *g
	cp.db = db
	return &cp
}

// =============================================================================
// READS
// =============================================================================

// Scope restricts a query to one tenant's live rows.
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ? AND is_deleted = ?", tenantID, false)
	}
}

// ScopeIncludingDeleted restricts a query to one tenant, deleted rows included.
func ScopeIncludingDeleted(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// Read returns a query over tc's live rows. The returned handle is safe to
// chain from more than once.
func (g *Gate) Read(ctx context.Context, tc Context) (*gorm.DB, error) {
	if err := g.check(tc); err != nil {
		return nil, err
	}
	return g.db.WithContext(ctx).Scopes(Scope(tc.TenantID)).Session(&gorm.Session{}), nil
}

// ReadIncludingDeleted is Read without the deletion filter, for audit views.
func (g *Gate) ReadIncludingDeleted(ctx context.Context, tc Context) (*gorm.DB, error) {
	if err := g.check(tc); err != nil {
		return nil, err
	}
	return g.db.WithContext(ctx).Scopes(ScopeIncludingDeleted(tc.TenantID)).Session(&gorm.Session{}), nil
}

// ReadForUpdate is Read with a row lock held until the enclosing transaction
// ends. Drivers without row locks (SQLite) ignore the clause; there the single
// writer connection serializes transactions instead.
func (g *Gate) ReadForUpdate(ctx context.Context, tc Context) (*gorm.DB, error) {
	if err := g.check(tc); err != nil {
		return nil, err
	}
	return g.db.WithContext(ctx).
		Scopes(Scope(tc.TenantID)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Session(&gorm.Session{}), nil
}

// Find loads one live record by id into dest.
func (g *Gate) Find(ctx context.Context, tc Context, dest Record, id uuid.UUID) error {
	q, err := g.Read(ctx, tc)
	if err != nil {
		return err
	}
	return g.Translate(q.Where("id = ?", id).Take(dest).Error)
}

// =============================================================================
// WRITES
// =============================================================================

// Insert stamps tenant, creator and creation time on rec and stores it.
// A record that already names a different tenant is rejected.
func (g *Gate) Insert(ctx context.Context, tc Context, rec Record) error {
	if err := g.check(tc); err != nil {
		return err
	}
	b := rec.Base()
	if b.TenantID != uuid.Nil && b.TenantID != tc.TenantID {
		return g.mismatch(tc, b)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.TenantID = tc.TenantID
	b.CreatedAt = g.now()
	b.CreatedBy = tc.ActorID
	b.UpdatedAt, b.UpdatedBy = nil, nil
	b.IsDeleted, b.DeletedAt, b.DeletedBy = false, nil, nil
	if v, ok := rec.(versioned); ok {
		v.versionRef().Version = 1
	}
	return g.Translate(g.db.WithContext(ctx).Set(stampKey, true).Create(rec).Error)
}

// Update writes the named columns of rec plus the update stamps. Versioned
// records are checked against the version they were read at.
//
// Returns ErrConcurrencyConflict if a versioned row moved, ErrNotFound if the
// row is gone (deleted or never visible to tc).
func (g *Gate) Update(ctx context.Context, tc Context, rec Record, columns ...string) error {
	if err := g.check(tc); err != nil {
		return err
	}
	b := rec.Base()
	if b.TenantID != tc.TenantID {
		return g.mismatch(tc, b)
	}

	now := g.now()
	actor := tc.ActorID
	prevAt, prevBy := b.UpdatedAt, b.UpdatedBy
	b.UpdatedAt, b.UpdatedBy = &now, &actor

	cols := append(append([]string{}, columns...), "updated_at", "updated_by")
	q := g.db.WithContext(ctx).Set(stampKey, true).Model(rec).
		Where("tenant_id = ? AND is_deleted = ?", tc.TenantID, false)

	v, isVersioned := rec.(versioned)
	var prevVersion int64
	if isVersioned {
		prevVersion = v.versionRef().Version
		v.versionRef().Version = prevVersion + 1
		cols = append(cols, "version")
		q = q.Where("version = ?", prevVersion)
	}

	res := q.Select(cols).Updates(rec)
	if res.Error == nil && res.RowsAffected == 1 {
		return nil
	}

	b.UpdatedAt, b.UpdatedBy = prevAt, prevBy
	if isVersioned {
		v.versionRef().Version = prevVersion
	}
	if res.Error != nil {
		return g.Translate(res.Error)
	}
	if isVersioned {
		return fmt.Errorf("%w: %s was modified concurrently", generic.ErrConcurrencyConflict, b.ID)
	}
	return fmt.Errorf("%w: %s", generic.ErrNotFound, b.ID)
}

// SoftDelete flags rec as deleted. Isolated rows are never removed.
func (g *Gate) SoftDelete(ctx context.Context, tc Context, rec Record) error {
	if err := g.check(tc); err != nil {
		return err
	}
	b := rec.Base()
	now := g.now()
	actor := tc.ActorID
	b.IsDeleted, b.DeletedAt, b.DeletedBy = true, &now, &actor
	if err := g.Update(ctx, tc, rec, "is_deleted", "deleted_at", "deleted_by"); err != nil {
		b.IsDeleted, b.DeletedAt, b.DeletedBy = false, nil, nil
		return err
	}
	return nil
}

// Transaction runs fn with a Gate bound to a database transaction. fn must
// issue every query through the Gate it receives.
func (g *Gate) Transaction(ctx context.Context, fn func(tx *Gate) error) error {
	return g.Translate(g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(g.with(tx))
	}))
}

// Translate maps gorm and driver errors onto the generic taxonomy. Errors
// already in the taxonomy pass through.
func (g *Gate) Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", generic.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", generic.ErrConcurrencyConflict, err)
	case g.translate != nil:
		return g.translate(err)
	}
	return err
}

func (g *Gate) check(tc Context) error {
	if err := tc.Validate(); err != nil {
		g.logger.Error("isolation violation", zap.Error(err))
		return err
	}
	return nil
}

func (g *Gate) mismatch(tc Context, b *Isolated) error {
	g.logger.Error("isolation violation: tenant mismatch",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("record_id", b.ID.String()))
	return fmt.Errorf("%w: record %s", generic.ErrTenantMismatch, b.ID)
}

// =============================================================================
// TENANT REGISTRY - Unscoped by nature
// =============================================================================

// LookupTenant resolves a tenant id before any scoped access happens.
// Unknown ids fail with ErrTenantNotFound, inactive tenants with
// ErrTenantInactive.
func (g *Gate) LookupTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	if id == uuid.Nil {
		return nil, generic.ErrNoTenantContext
	}
	var t Tenant
	err := g.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", generic.ErrTenantNotFound, id)
	}
	if err != nil {
		return nil, g.Translate(err)
	}
	if !t.Active() {
		return &t, fmt.Errorf("%w: %s is %s", generic.ErrTenantInactive, id, t.Status)
	}
	return &t, nil
}

// RegisterTenant stores a new tenant, active unless a status is given.
func (g *Gate) RegisterTenant(ctx context.Context, t *Tenant) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tenant name is required", generic.ErrInvalidInput)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown tenant status %q", generic.ErrInvalidInput, t.Status)
	}
	if err := g.db.WithContext(ctx).Create(t).Error; err != nil {
		return g.Translate(err)
	}
	g.logger.Info("tenant registered", zap.String("tenant_id", t.ID.String()), zap.String("name", t.Name))
	return nil
}

// SetTenantStatus suspends, expires or reactivates a tenant.
func (g *Gate) SetTenantStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown tenant status %q", generic.ErrInvalidInput, status)
	}
	res := g.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": g.now()})
	if res.Error != nil {
		return g.Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", generic.ErrTenantNotFound, id)
	}
	return nil
}

// ListTenants returns every tenant in the given status, or all tenants if
// status is empty. Batch jobs use it to fan out over tenants.
func (g *Gate) ListTenants(ctx context.Context, status Status) ([]Tenant, error) {
	q := g.db.WithContext(ctx).Order("created_at").Order("id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Tenant
	if err := q.Find(&out).Error; err != nil {
		return nil, g.Translate(err)
	}
	return out, nil
}
