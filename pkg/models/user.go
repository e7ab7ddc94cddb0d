package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)

// User is a tenant member: either a driver or a tenant admin.
// Users are never deleted; deactivation disables login but keeps income attribution.
type User struct {
	ID                       uuid.UUID  `db:"id"                         json:"id"`
	TenantID                 uuid.UUID  `db:"tenant_id"                  json:"tenant_id"`
	Role                     string     `db:"role"                       json:"role"`
	Name                     string     `db:"name"                       json:"name"`
	Email                    string     `db:"email"                      json:"email"`
	Active                   bool       `db:"active"                     json:"active"`
	MFAEnabled               bool       `db:"mfa_enabled"                json:"mfa_enabled"`
	LicenseNumber            *string    `db:"license_number"             json:"license_number,omitempty"`
	LicenseExpiry            *time.Time `db:"license_expiry"             json:"license_expiry,omitempty"`
	PrdpNumber               *string    `db:"prdp_number"                json:"prdp_number,omitempty"`
	PrdpExpiry               *time.Time `db:"prdp_expiry"                json:"prdp_expiry,omitempty"`
	MedicalCertificateExpiry *time.Time `db:"medical_certificate_expiry" json:"medical_certificate_expiry,omitempty"`
	BankName                 *string    `db:"bank_name"                  json:"bank_name,omitempty"`
	BankAccountNumber        *string    `db:"bank_account_number"        json:"bank_account_number,omitempty"`
	BankBranchCode           *string    `db:"bank_branch_code"           json:"bank_branch_code,omitempty"`
	CreatedAt                time.Time  `db:"created_at"                 json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at"                 json:"updated_at"`
}

// IsDriver reports whether the user holds the driver role.
func (u *User) IsDriver() bool {
	return u.Role == RoleDriver
}

// ApplyExpiry copies every non-nil date onto the profile and returns the
// names of the fields that were set.
func (u *User) ApplyExpiry(d ExpiryDates) []string {
	var changed []string
	if d.LicenseExpiry != nil {
		t := *d.LicenseExpiry
		u.LicenseExpiry = &t
		changed = append(changed, FieldLicenseExpiry)
	}
	if d.PrdpExpiry != nil {
		t := *d.PrdpExpiry
		u.PrdpExpiry = &t
		changed = append(changed, FieldPrdpExpiry)
	}
	if d.MedicalCertificateExpiry != nil {
		t := *d.MedicalCertificateExpiry
		u.MedicalCertificateExpiry = &t
		changed = append(changed, FieldMedicalCertificateExpiry)
	}
	return changed
}
