package timeoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/hr-ledger/tenant"
)

// =============================================================================
// LEAVE TYPE CATALOG
// =============================================================================

// Catalog manages a tenant's leave types. Codes are unique per tenant; a
// duplicate surfaces as ErrConcurrencyConflict from the unique index.
type Catalog struct {
	gate   *tenant.Gate
	logger *zap.Logger
}

func NewCatalog(gate *tenant.Gate, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{gate: gate, logger: logger.Named("leave_types")}
}

// Create validates and stores a leave type. The code is normalized to upper
// case.
func (c *Catalog) Create(ctx context.Context, tc tenant.Context, lt *LeaveType) error {
	lt.Code = strings.ToUpper(strings.TrimSpace(lt.Code))
	if err := lt.Validate(); err != nil {
		return err
	}
	if err := c.gate.Insert(ctx, tc, lt); err != nil {
		return fmt.Errorf("create leave type %s: %w", lt.Code, err)
	}
	c.logger.Info("leave type created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("leave_type_id", lt.ID.String()),
		zap.String("code", lt.Code))
	return nil
}

// Get returns a live leave type, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, tc tenant.Context, id uuid.UUID) (*LeaveType, error) {
	return loadLeaveType(ctx, c.gate, tc, id)
}

// List returns the tenant's live leave types ordered by code.
func (c *Catalog) List(ctx context.Context, tc tenant.Context) ([]LeaveType, error) {
	q, err := c.gate.Read(ctx, tc)
	if err != nil {
		return nil, err
	}
	var out []LeaveType
	if err := q.Order("code").Find(&out).Error; err != nil {
		return nil, c.gate.Translate(err)
	}
	return out, nil
}

// Retire soft-deletes a leave type. Existing balances and requests keep
// their reference; new submissions fail with ErrNotFound.
func (c *Catalog) Retire(ctx context.Context, tc tenant.Context, id uuid.UUID) error {
	lt, err := c.Get(ctx, tc, id)
	if err != nil {
		return err
	}
	return c.gate.SoftDelete(ctx, tc, lt)
}
