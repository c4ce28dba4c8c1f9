package tenant

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ISOLATED BASE - Embedded by every tenant-owned model
// =============================================================================

// Isolated carries ownership and audit columns. Only the Gate writes them.
type Isolated struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CreatedAt time.Time  `gorm:"autoCreateTime:false;not null" json:"created_at"`
	CreatedBy uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
	UpdatedBy *uuid.UUID `gorm:"type:uuid" json:"updated_by,omitempty"`
	IsDeleted bool       `gorm:"not null;index" json:"-"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

func (i *Isolated) Base() *Isolated { return i }

// Record is any model embedding Isolated.
type Record interface {
	Base() *Isolated
}

// Version is embedded by models updated under optimistic concurrency.
// The Gate sets it to 1 on insert and bumps it on every update, failing with
// ErrConcurrencyConflict if the stored version moved underneath.
type Version struct {
	Version int64 `gorm:"not null" json:"version"`
}

func (v *Version) versionRef() *Version { return v }

type versioned interface {
	versionRef() *Version
}

// =============================================================================
// TENANT - The owning organization
// =============================================================================

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired:
		return true
	}
	return false
}

// Settings are per-tenant preferences stored as a JSON document.
type Settings struct {
	Locale       string   `json:"locale,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	MaxEmployees int      `json:"max_employees,omitempty"`
	Features     []string `json:"features,omitempty"`
}

// HasFeature reports whether a feature flag is enabled.
func (s Settings) HasFeature(name string) bool {
	for _, f := range s.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Tenant is not itself isolated; it is the root every isolated row points at.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Status    Status    `gorm:"type:varchar(16);not null" json:"status"`
	Settings  Settings  `gorm:"serializer:json;type:text" json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t Tenant) Active() bool { return t.Status == StatusActive }
