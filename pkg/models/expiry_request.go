package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

const (
	FieldLicenseExpiry            = "license_expiry"
	FieldPrdpExpiry               = "prdp_expiry"
	FieldMedicalCertificateExpiry = "medical_certificate_expiry"
)

// ExpiryDates is a partial set of profile expiry dates. Any field may be nil.
type ExpiryDates struct {
	LicenseExpiry            *time.Time `json:"license_expiry,omitempty"`
	PrdpExpiry               *time.Time `json:"prdp_expiry,omitempty"`
	MedicalCertificateExpiry *time.Time `json:"medical_certificate_expiry,omitempty"`
}

// Fields returns the names of the dates that are set.
func (d ExpiryDates) Fields() []string {
	var out []string
	if d.LicenseExpiry != nil {
		out = append(out, FieldLicenseExpiry)
	}
	if d.PrdpExpiry != nil {
		out = append(out, FieldPrdpExpiry)
	}
	if d.MedicalCertificateExpiry != nil {
		out = append(out, FieldMedicalCertificateExpiry)
	}
	return out
}

// IsEmpty reports whether no date is set.
func (d ExpiryDates) IsEmpty() bool {
	return d.LicenseExpiry == nil && d.PrdpExpiry == nil && d.MedicalCertificateExpiry == nil
}

// ExpiryUpdateRequest is a driver's proposal to change expiry dates on their profile.
// It moves from pending to approved or rejected exactly once and is never deleted.
type ExpiryUpdateRequest struct {
	ID                    uuid.UUID   `db:"id"                      json:"id"`
	TenantID              uuid.UUID   `db:"tenant_id"               json:"tenant_id"`
	DriverID              uuid.UUID   `db:"driver_id"               json:"driver_id"`
	Status                string      `db:"status"                  json:"status"`
	Requested             ExpiryDates `db:"-"                       json:"requested"`
	SupportingDocumentIDs []uuid.UUID `db:"supporting_document_ids" json:"supporting_document_ids"`
	SubmittedAt           time.Time   `db:"submitted_at"            json:"submitted_at"`
	ReviewedAt            *time.Time  `db:"reviewed_at"             json:"reviewed_at,omitempty"`
	ReviewedBy            *uuid.UUID  `db:"reviewed_by"             json:"reviewed_by,omitempty"`
	RejectionReason       *string     `db:"rejection_reason"        json:"rejection_reason,omitempty"`
}

// IsPending reports whether the request is still awaiting review.
func (r *ExpiryUpdateRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// ValidRequestStatus reports whether s is a known request status.
func ValidRequestStatus(s string) bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}
