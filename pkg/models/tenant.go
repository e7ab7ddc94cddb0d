// Package models contains shared data models used across the fleetledger codebase.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer organization. Every other entity belongs to a tenant.
// Tenants are never deleted, only deactivated.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Slug      string    `db:"slug"       json:"slug"`
	Name      string    `db:"name"       json:"name"`
	Active    bool      `db:"active"     json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Partition returns the logical partition name derived from the slug.
func (t *Tenant) Partition() string {
	return "tenant_" + strings.ReplaceAll(strings.ToLower(t.Slug), "-", "_")
}

// Policy holds per-tenant settings consulted by the workflow engine.
// A nil limit means unbounded.
type Policy struct {
	TenantID            uuid.UUID `db:"tenant_id"             json:"tenant_id"`
	RequireMFA          bool      `db:"require_mfa"           json:"require_mfa"`
	RequireMFAUsers     bool      `db:"require_mfa_users"     json:"require_mfa_users"`
	RequireIncomeReview bool      `db:"require_income_review" json:"require_income_review"`
	MaxDrivers          *int      `db:"max_drivers"           json:"max_drivers"`
	MaxStorageMB        *int      `db:"max_storage_mb"        json:"max_storage_mb"`
	UpdatedAt           time.Time `db:"updated_at"            json:"updated_at"`
}

// MFARequiredFor reports whether the given role must have satisfied MFA.
func (p *Policy) MFARequiredFor(role string) bool {
	switch role {
	case RoleAdmin:
		return p.RequireMFA
	case RoleDriver:
		return p.RequireMFAUsers
	default:
		return false
	}
}

// InitialIncomeStatus is the status a freshly logged income starts in.
func (p *Policy) InitialIncomeStatus() string {
	if p.RequireIncomeReview {
		return IncomeStatusPending
	}
	return IncomeStatusAuto
}

// MaxStorageMBLimit bounds max_storage_mb so the byte cap fits in an int64
// with room to spare.
const MaxStorageMBLimit = 1 << 30

// MaxStorageBytes returns the storage cap in bytes, or -1 when unbounded.
func (p *Policy) MaxStorageBytes() int64 {
	if p.MaxStorageMB == nil {
		return -1
	}
	return int64(*p.MaxStorageMB) * 1024 * 1024
}
