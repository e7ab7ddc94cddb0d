package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	IncomeStatusAuto     = "auto"
	IncomeStatusPending  = "pending"
	IncomeStatusApproved = "approved"
	IncomeStatusRejected = "rejected"
)

// CountedIncomeStatuses are the statuses that count toward financial reporting.
// Pending and rejected incomes are always excluded.
var CountedIncomeStatuses = []string{IncomeStatusAuto, IncomeStatusApproved}

// Income is a driver-logged earnings record tied to a vehicle. Monetary values are in cents.
type Income struct {
	ID                uuid.UUID  `db:"id"                  json:"id"`
	TenantID          uuid.UUID  `db:"tenant_id"           json:"tenant_id"`
	VehicleID         uuid.UUID  `db:"vehicle_id"          json:"vehicle_id"`
	DriverID          uuid.UUID  `db:"driver_id"           json:"driver_id"`
	AmountCents       int64      `db:"amount_cents"        json:"amount_cents"`
	OdometerStart     *int64     `db:"odometer_start"      json:"odometer_start,omitempty"`
	OdometerEnd       *int64     `db:"odometer_end"        json:"odometer_end,omitempty"`
	FuelCostCents     *int64     `db:"fuel_cost_cents"     json:"fuel_cost_cents,omitempty"`
	FuelLitres        *float64   `db:"fuel_litres"         json:"fuel_litres,omitempty"`
	ExpenseDetail     *string    `db:"expense_detail"      json:"expense_detail,omitempty"`
	ExpensePriceCents *int64     `db:"expense_price_cents" json:"expense_price_cents,omitempty"`
	LoggedOn          time.Time  `db:"logged_on"           json:"logged_on"`
	ApprovalStatus    string     `db:"approval_status"     json:"approval_status"`
	ApprovedAt        *time.Time `db:"approved_at"         json:"approved_at,omitempty"`
	ApprovedBy        *uuid.UUID `db:"approved_by"         json:"approved_by,omitempty"`
	CreatedAt         time.Time  `db:"created_at"          json:"created_at"`
}

// Counted reports whether the income contributes to financial totals.
func (i *Income) Counted() bool {
	return slices.Contains(CountedIncomeStatuses, i.ApprovalStatus)
}

// ValidIncomeStatus reports whether s is a known income approval status.
func ValidIncomeStatus(s string) bool {
	switch s {
	case IncomeStatusAuto, IncomeStatusPending, IncomeStatusApproved, IncomeStatusRejected:
		return true
	}
	return false
}

// IncomeSummary aggregates counted incomes for a tenant over a period.
type IncomeSummary struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	IncomeCount  int       `json:"income_count"`
	GrossCents   int64     `json:"gross_cents"`
	FuelCents    int64     `json:"fuel_cents"`
	ExpenseCents int64     `json:"expense_cents"`
	NetCents     int64     `json:"net_cents"`
}
