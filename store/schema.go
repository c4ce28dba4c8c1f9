/*
Package store owns the relational schema shared by every driver.

KEY TABLES:
  tenants:          Organizations (not isolated; the isolation root)
  job_histories:    Effective-dated employment intervals
  leave_types:      Tenant-defined kinds of leave
  leave_balances:   One row per (employee, leave type, year)
  balance_entries:  Append-only journal of balance mutations
  leave_requests:   Leave requests and their workflow state
  approvals:        Append-only workflow transition log

INVARIANT INDEXES:
  uq_job_histories_open:  at most one open, non-voided, live interval per
                          employee; concurrent hires/promotions that both
                          try to open one collide here
  uq_leave_balances_key:  one live balance row per key
  uq_leave_types_code:    leave type codes are unique within a tenant

MIGRATION:
  Migrate is idempotent and runs on every start. Partial indexes are raw SQL
  understood by both SQLite and PostgreSQL.

SEE ALSO:
  - store/sqlite: development and test driver
  - store/postgres: production driver
*/
package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/warp/hr-ledger/jobhistory"
	"github.com/warp/hr-ledger/tenant"
	"github.com/warp/hr-ledger/timeoff"
	"github.com/warp/hr-ledger/workflow"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&tenant.Tenant{},
		&jobhistory.JobHistory{},
		&timeoff.LeaveType{},
		&timeoff.LeaveBalance{},
		&timeoff.BalanceEntry{},
		&timeoff.LeaveRequest{},
		&workflow.Approval{},
	}
}

var indexes = []struct {
	name string
	sql  string
}{
	{
		name: "uq_job_histories_open",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_job_histories_open
			ON job_histories (tenant_id, employee_id)
			WHERE effective_end = '9999-12-31' AND correction_status <> 'voided' AND is_deleted = false`,
	},
	{
		name: "uq_leave_balances_key",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_leave_balances_key
			ON leave_balances (tenant_id, employee_id, leave_type_id, year)
			WHERE is_deleted = false`,
	},
	{
		name: "uq_leave_types_code",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_leave_types_code
			ON leave_types (tenant_id, code)
			WHERE is_deleted = false`,
	},
}

// Migrate creates or updates every table and invariant index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
