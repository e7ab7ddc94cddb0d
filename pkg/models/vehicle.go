package models

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle is a tenant-owned vehicle that income records are logged against.
type Vehicle struct {
	ID           uuid.UUID `db:"id"           json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"    json:"tenant_id"`
	Registration string    `db:"registration" json:"registration"`
	Make         string    `db:"make"         json:"make"`
	Model        string    `db:"model"        json:"model"`
	Active       bool      `db:"active"       json:"active"`
	CreatedAt    time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"   json:"updated_at"`
}
