package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an immutable record of a workflow transition.
type AuditEntry struct {
	ID          uuid.UUID      `db:"id"            json:"id"`
	TenantID    uuid.UUID      `db:"tenant_id"     json:"tenant_id"`
	Action      string         `db:"action"        json:"action"`
	ActorUserID uuid.UUID      `db:"actor_user_id" json:"actor_user_id"`
	ActorRole   string         `db:"actor_role"    json:"actor_role"`
	TargetType  string         `db:"target_type"   json:"target_type"`
	TargetID    uuid.UUID      `db:"target_id"     json:"target_id"`
	Metadata    map[string]any `db:"metadata"      json:"metadata"`
	CreatedAt   time.Time      `db:"created_at"    json:"created_at"`
}
