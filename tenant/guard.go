package tenant

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/warp/hr-ledger/generic"
)

// =============================================================================
// WRITE GUARDS - gorm callbacks that reject writes bypassing the Gate
// =============================================================================

const (
	stampKey        = "tenant:stamped"
	guardCreateName = "tenant:guard_create"
	guardUpdateName = "tenant:guard_update"
	guardDeleteName = "tenant:guard_delete"
)

func registerGuards(db *gorm.DB) error {
	cb := db.Callback()
	if cb.Create().Get(guardCreateName) == nil {
		if err := cb.Create().Before("gorm:create").Register(guardCreateName, guardWrite); err != nil {
			return err
		}
	}
	if cb.Update().Get(guardUpdateName) == nil {
		if err := cb.Update().Before("gorm:update").Register(guardUpdateName, guardWrite); err != nil {
			return err
		}
	}
	if cb.Delete().Get(guardDeleteName) == nil {
		if err := cb.Delete().Before("gorm:delete").Register(guardDeleteName, guardDelete); err != nil {
			return err
		}
	}
	return nil
}

func isIsolated(db *gorm.DB) bool {
	s := db.Statement.Schema
	return s != nil && s.LookUpField("tenant_id") != nil && s.LookUpField("is_deleted") != nil
}

func guardWrite(db *gorm.DB) {
	if db.Error != nil || !isIsolated(db) {
		return
	}
	if stamped, ok := db.Get(stampKey); ok && stamped == true {
		return
	}
	_ = db.AddError(fmt.Errorf("%w: write to %s bypassed the tenant gate",
		generic.ErrNoTenantContext, db.Statement.Table))
}

func guardDelete(db *gorm.DB) {
	if db.Error != nil || !isIsolated(db) {
		return
	}
	_ = db.AddError(fmt.Errorf("%w: %s", generic.ErrPhysicalDelete, db.Statement.Table))
}
