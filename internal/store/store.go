package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// StatusConflictError is returned by a compare-and-swap transition when the
// row exists in the tenant but is no longer pending.
type StatusConflictError struct {
	Current string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("status conflict: current status is %q", e.Current)
}

// Store is the data access interface. All database reads go through here;
// writes happen inside RunInTx so that a transition and its audit entry
// commit or roll back together.
type Store interface {
	Ping(ctx context.Context) error
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error)
	CountDriversMissingMFA(ctx context.Context, tenantID uuid.UUID) (int, error)

	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, int, error)

	GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, filter VehicleFilter) ([]*models.Vehicle, int, error)

	GetDocuments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*models.Document, error)

	GetExpiryRequest(ctx context.Context, tenantID, id uuid.UUID) (*models.ExpiryUpdateRequest, error)
	ListExpiryRequests(ctx context.Context, filter ExpiryRequestFilter) ([]*models.ExpiryUpdateRequest, int, error)

	GetIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error)
	ListIncomes(ctx context.Context, filter IncomeFilter) ([]*models.Income, int, error)
	SummarizeIncome(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.IncomeSummary, error)

	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, int, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// Tx is the write side of the store, scoped to a single database transaction.
type Tx interface {
	// LockPolicy reads the tenant policy with a row lock held until commit.
	LockPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error)
	UpdatePolicy(ctx context.Context, policy *models.Policy) error

	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error)
	CountActiveDrivers(ctx context.Context, tenantID uuid.UUID) (int, error)
	CreateUser(ctx context.Context, user *models.User) error
	SetUserActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (*models.User, error)
	UpdateDriverExpiry(ctx context.Context, tenantID, driverID uuid.UUID, dates models.ExpiryDates) (*models.User, error)

	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error

	StorageUsedBytes(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CreateDocument(ctx context.Context, doc *models.Document) error

	CreateExpiryRequest(ctx context.Context, req *models.ExpiryUpdateRequest) error
	TransitionExpiryRequest(ctx context.Context, t ReviewTransition) (*models.ExpiryUpdateRequest, error)

	CreateIncome(ctx context.Context, income *models.Income) error
	TransitionIncome(ctx context.Context, t ReviewTransition) (*models.Income, error)
	DeleteIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error)

	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// ReviewTransition describes a pending -> terminal status change.
// Reason is only stored for expiry request rejections.
type ReviewTransition struct {
	TenantID   uuid.UUID
	ID         uuid.UUID
	To         string
	ReviewerID uuid.UUID
	At         time.Time
	Reason     *string
}

// Page holds 1-based pagination input.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies the default (20) and maximum (100) page sizes.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Offset returns the row offset of a normalized page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

type UserFilter struct {
	TenantID uuid.UUID
	Role     string
	Active   *bool
	Page
}

type VehicleFilter struct {
	TenantID   uuid.UUID
	ActiveOnly bool
	Page
}

type ExpiryRequestFilter struct {
	TenantID uuid.UUID
	Status   string
	DriverID *uuid.UUID
	Page
}

type IncomeFilter struct {
	TenantID  uuid.UUID
	Status    string
	DriverID  *uuid.UUID
	VehicleID *uuid.UUID
	Page
}

type AuditFilter struct {
	TenantID   uuid.UUID
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	Page
}
