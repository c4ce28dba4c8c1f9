/*
ledger.go - Transactional leave balance ledger

PURPOSE:
  Applies reservations, releases, consumptions and restorations to balance
  rows. Each call locks the row, re-checks the precondition against the
  committed state, writes the row under its version and appends a journal
  entry, all in one transaction.

CONCURRENCY:
  PostgreSQL: SELECT ... FOR UPDATE serializes writers on the row; the
  version check turns anything that slips through into
  ErrConcurrencyConflict.
  SQLite: a single connection serializes transactions; the version check
  still guards against stale in-memory rows.

  N concurrent Reserve(d) against available = d: one succeeds, N-1 fail
  with ErrInsufficientBalance, pending == d afterwards.

LAZY ROWS:
  Reserve opens the row from the leave type's entitlement if it does not
  exist yet. Release, Consume and Restore require an existing row.

SEE ALSO:
  - balance.go: the pure mutations
  - accrual.go: entitlement policies and year rollover
  - request.go: the workflow driving this ledger
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/workflow"
)

// BalanceLedger reads and mutates leave balances through the tenant gate.
type BalanceLedger struct {
	gate        *tenant.Gate
	entitlement EntitlementPolicy
	logger      *zap.Logger
}

type LedgerOption func(*BalanceLedger)

// WithEntitlementPolicy sets how a newly opened row's entitlement is computed.
func WithEntitlementPolicy(p EntitlementPolicy) LedgerOption {
	return func(l *BalanceLedger) { l.entitlement = p }
}

func NewBalanceLedger(gate *tenant.Gate, logger *zap.Logger, opts ...LedgerOption) *BalanceLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &BalanceLedger{
		gate:        gate,
		entitlement: FlatEntitlement{},
		logger:      logger.Named("balance_ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithTx returns a ledger bound to an open transaction.
func (l *BalanceLedger) WithTx(tx *tenant.Gate) *BalanceLedger {
	cp := *l
	cp.gate = tx
	return &cp
}

// =============================================================================
// READS
// =============================================================================

// Get returns the row for key, or ErrNotFound.
func (l *BalanceLedger) Get(ctx context.Context, tc tenant.Context, key Key) (*LeaveBalance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	return l.take(q.Where(keyClause, key.EmployeeID, key.LeaveTypeID, key.Year))
}

// Open returns the row for key, creating it from the entitlement policy if
// it does not exist.
func (l *BalanceLedger) Open(ctx context.Context, tc tenant.Context, key Key) (*LeaveBalance, error) {
	if b, err := l.Get(ctx, tc, key); err == nil || !errors.Is(err, generic.ErrNotFound) {
		return b, err
	}
	var out *LeaveBalance
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		b, err := l.WithTx(tx).lockOrOpen(ctx, tc, key)
		out = b
		return err
	})
	return out, err
}

// ListYear returns every live row of a year, for batch jobs.
func (l *BalanceLedger) ListYear(ctx context.Context, tc tenant.Context, year int) ([]LeaveBalance, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []LeaveBalance
	if err := q.Where("year = ?", year).Order("employee_id").Order("leave_type_id").Find(&rows).Error; err != nil {
		return nil, l.gate.Translate(err)
	}
	return rows, nil
}

// ListEmployee returns an employee's rows for a year.
func (l *BalanceLedger) ListEmployee(ctx context.Context, tc tenant.Context, employeeID uuid.UUID, year int) ([]LeaveBalance, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []LeaveBalance
	if err := q.Where("employee_id = ? AND year = ?", employeeID, year).Order("leave_type_id").Find(&rows).Error; err != nil {
		return nil, l.gate.Translate(err)
	}
	return rows, nil
}

// Entries returns the journal of a row, oldest first.
func (l *BalanceLedger) Entries(ctx context.Context, tc tenant.Context, balanceID uuid.UUID) ([]BalanceEntry, error) {
	q, err := l.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var rows []BalanceEntry
	if err := q.Where("balance_id = ?", balanceID).Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, l.gate.Translate(err)
	}
	return rows, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (l *BalanceLedger) Reserve(ctx context.Context, tc tenant.Context, key Key, days decimal.Decimal, requestID *uuid.UUID) (*LeaveBalance, error) {
	return l.Apply(ctx, tc, key, workflow.EffectReserve, days, requestID)
}

func (l *BalanceLedger) Release(ctx context.Context, tc tenant.Context, key Key, days decimal.Decimal, requestID *uuid.UUID) (*LeaveBalance, error) {
	return l.Apply(ctx, tc, key, workflow.EffectRelease, days, requestID)
}

func (l *BalanceLedger) Consume(ctx context.Context, tc tenant.Context, key Key, days decimal.Decimal, requestID *uuid.UUID) (*LeaveBalance, error) {
	return l.Apply(ctx, tc, key, workflow.EffectConsume, days, requestID)
}

func (l *BalanceLedger) Restore(ctx context.Context, tc tenant.Context, key Key, days decimal.Decimal, requestID *uuid.UUID) (*LeaveBalance, error) {
	return l.Apply(ctx, tc, key, workflow.EffectRestore, days, requestID)
}

// Apply runs one mutation in its own transaction (a savepoint if the ledger
// is already bound to one). On failure the row is unchanged.
func (l *BalanceLedger) Apply(ctx context.Context, tc tenant.Context, key Key, effect workflow.Effect, days decimal.Decimal, requestID *uuid.UUID) (*LeaveBalance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var out *LeaveBalance
	err := l.gate.Transaction(ctx, func(tx *tenant.Gate) error {
		txl := l.WithTx(tx)
		var (
			b   *LeaveBalance
			err error
		)
		if effect == workflow.EffectReserve {
			b, err = txl.lockOrOpen(ctx, tc, key)
		} else {
			b, err = txl.lock(ctx, tc, key)
		}
		if err != nil {
			return err
		}
		if err := txl.applyLocked(ctx, tc, b, effect, days, requestID); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		l.logger.Debug("balance mutation rejected",
			zap.String("tenant_id", tc.TenantID.String()),
			zap.Stringer("key", key),
			zap.String("effect", string(effect)),
			zap.Stringer("days", days),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

// applyLocked mutates a row the caller has locked in the ledger's transaction.
func (l *BalanceLedger) applyLocked(ctx context.Context, tc tenant.Context, b *LeaveBalance, effect workflow.Effect, days decimal.Decimal, requestID *uuid.UUID) error {
	if err := b.Apply(effect, days); err != nil {
		return err
	}
	if err := l.gate.Update(ctx, tc, b, "pending", "used"); err != nil {
		return fmt.Errorf("write balance %s: %w", b.Key(), err)
	}
	return l.journal(ctx, tc, b, EntryKind(effect), days, requestID)
}

// =============================================================================
// HELPERS
// =============================================================================

const keyClause = "employee_id = ? AND leave_type_id = ? AND year = ?"

func (l *BalanceLedger) take(q *gorm.DB) (*LeaveBalance, error) {
	var b LeaveBalance
	if err := q.Take(&b).Error; err != nil {
		return nil, l.gate.Translate(err)
	}
	return &b, nil
}

func (l *BalanceLedger) lock(ctx context.Context, tc tenant.Context, key Key) (*LeaveBalance, error) {
	q, err := l.gate.ReadForUpdate(ctx, tc)
	if err != nil {
		return nil, err
	}
	return l.take(q.Where(keyClause, key.EmployeeID, key.LeaveTypeID, key.Year))
}

func (l *BalanceLedger) lockOrOpen(ctx context.Context, tc tenant.Context, key Key) (*LeaveBalance, error) {
	b, err := l.lock(ctx, tc, key)
	if err == nil || !errors.Is(err, generic.ErrNotFound) {
		return b, err
	}

	lt, err := loadLeaveType(ctx, l.gate, tc, key.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	entitlement, err := l.entitlement.Entitlement(ctx, l.gate, tc, lt, key.EmployeeID, key.Year)
	if err != nil {
		return nil, fmt.Errorf("entitlement for %s: %w", key, err)
	}

	b = &LeaveBalance{
		EmployeeID:  key.EmployeeID,
		LeaveTypeID: key.LeaveTypeID,
		Year:        key.Year,
		Entitlement: entitlement,
		CarriedOver: decimal.Zero,
		Used:        decimal.Zero,
		Pending:     decimal.Zero,
	}
	if err := l.gate.Insert(ctx, tc, b); err != nil {
		return nil, fmt.Errorf("open balance %s: %w", key, err)
	}
	if err := l.journal(ctx, tc, b, EntryOpen, entitlement, nil); err != nil {
		return nil, err
	}
	l.logger.Info("balance opened",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("actor_id", tc.ActorID.String()),
		zap.String("employee_id", key.EmployeeID.String()),
		zap.String("leave_type_id", key.LeaveTypeID.String()),
		zap.Int("year", key.Year),
		zap.Stringer("entitlement", entitlement))
	return b, nil
}

func (l *BalanceLedger) journal(ctx context.Context, tc tenant.Context, b *LeaveBalance, kind EntryKind, days decimal.Decimal, requestID *uuid.UUID) error {
	e := &BalanceEntry{
		BalanceID:    b.ID,
		RequestID:    requestID,
		Kind:         kind,
		Days:         days,
		PendingAfter: b.Pending,
		UsedAfter:    b.Used,
	}
	if err := l.gate.Insert(ctx, tc, e); err != nil {
		return fmt.Errorf("journal %s: %w", kind, err)
	}
	return nil
}

func loadLeaveType(ctx context.Context, g *tenant.Gate, tc tenant.Context, id uuid.UUID) (*LeaveType, error) {
	var lt LeaveType
	if err := g.Find(ctx, tc, &lt, id); err != nil {
		return nil, fmt.Errorf("leave type %s: %w", id, err)
	}
	return &lt, nil
}
