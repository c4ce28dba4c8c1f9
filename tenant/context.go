/*
Package tenant is the single mutation path for tenant-owned records.

PURPOSE:
  Every isolated record carries the tenant that owns it and the actor that
  created, updated or deleted it. The Gate stamps those fields on writes and
  filters every read by tenant and deletion flag. Callers never see another
  tenant's rows; a record owned by someone else looks exactly like a missing
  one.

KEY CONCEPTS:
  Context:  tenant id + actor id, passed explicitly to every operation
  Isolated: embeddable base with tenant and audit columns
  Gate:     scoped reads, stamped writes, soft delete, transactions
  Tenant:   the organization row, resolved before any scoped access

INVARIANTS:
  1. A read without a valid Context fails with ErrNoTenantContext
  2. A write whose record names another tenant fails with ErrTenantMismatch
  3. Isolated rows are never physically deleted
  4. Inserts and updates that bypass the Gate are rejected by callbacks

SEE ALSO:
  - gate.go: Gate implementation and gorm callbacks
  - model.go: Isolated base, Version column and the Tenant entity
*/
package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/hr-ledger/generic"
)

// Context identifies who is acting and on behalf of which tenant.
type Context struct {
	TenantID uuid.UUID
	ActorID  uuid.UUID
}

func New(tenantID, actorID uuid.UUID) Context {
	return Context{TenantID: tenantID, ActorID: actorID}
}

// Validate fails with ErrNoTenantContext if either id is missing.
func (c Context) Validate() error {
	if c.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant id is required", generic.ErrNoTenantContext)
	}
	if c.ActorID == uuid.Nil {
		return fmt.Errorf("%w: actor id is required", generic.ErrNoTenantContext)
	}
	return nil
}

// =============================================================================
// REQUEST PROPAGATION
// =============================================================================
// The transport layer resolves a Context once per request and stores it in the
// request's context.Context. Handlers pull it out and pass it explicitly to the
// core; nothing below the transport reads it implicitly.

type ctxKey struct{}

func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the Context stored by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}
