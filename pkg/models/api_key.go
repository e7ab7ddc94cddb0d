package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

const (
	// APIKeyPrefix marks integration credentials; any other bearer token is a user token.
	APIKeyPrefix = "flk_"
	// APIKeyLookupLen is how much of a raw key is stored in clear for lookup.
	APIKeyLookupLen = 12
)

// APIKey is a tenant-scoped integration credential. It authenticates as an
// admin of its tenant; keys without the write scope may only read.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}

func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// ValidScope reports whether s is a scope a key may be issued with.
func ValidScope(s string) bool {
	return s == ScopeRead || s == ScopeWrite
}
