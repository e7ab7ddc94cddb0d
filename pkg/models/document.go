package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxDocumentBytes caps a single registered document.
const MaxDocumentBytes int64 = 1 << 30

// Document is the metadata of an uploaded supporting document.
// The bytes live in external file storage under StorageKey.
type Document struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	TenantID    uuid.UUID `db:"tenant_id"    json:"tenant_id"`
	OwnerID     uuid.UUID `db:"owner_id"     json:"owner_id"`
	Filename    string    `db:"filename"     json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes"   json:"size_bytes"`
	StorageKey  string    `db:"storage_key"  json:"storage_key"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
