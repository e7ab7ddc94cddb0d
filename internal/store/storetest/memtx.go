package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

// memTx runs with MemStore.mu already held by RunInTx.
type memTx struct {
	s *MemStore
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) LockPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error) {
	return t.s.getPolicy(tenantID)
}

func (t *memTx) UpdatePolicy(ctx context.Context, p *models.Policy) error {
	if _, ok := t.s.policies[p.TenantID]; !ok {
		return store.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	t.s.policies[p.TenantID] = *p
	return nil
}

func (t *memTx) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	return t.s.getUser(tenantID, id)
}

func (t *memTx) CountActiveDrivers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	n := 0
	for _, u := range t.s.users {
		if u.TenantID == tenantID && u.IsDriver() && u.Active {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateUser(ctx context.Context, u *models.User) error {
	for _, existing := range t.s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return store.ErrDuplicateKey
		}
	}
	t.s.users[u.ID] = *u
	return nil
}

func (t *memTx) SetUserActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (*models.User, error) {
	u, err := t.s.getUser(tenantID, id)
	if err != nil {
		return nil, err
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	t.s.users[id] = *u
	return u, nil
}

func (t *memTx) UpdateDriverExpiry(ctx context.Context, tenantID, driverID uuid.UUID, d models.ExpiryDates) (*models.User, error) {
	u, err := t.s.getUser(tenantID, driverID)
	if err != nil || !u.IsDriver() {
		return nil, store.ErrNotFound
	}
	u.ApplyExpiry(d)
	u.UpdatedAt = time.Now().UTC()
	t.s.users[driverID] = *u
	return u, nil
}

func (t *memTx) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	for _, existing := range t.s.vehicles {
		if existing.TenantID == v.TenantID && existing.Registration == v.Registration {
			return store.ErrDuplicateKey
		}
	}
	t.s.vehicles[v.ID] = *v
	return nil
}

func (t *memTx) StorageUsedBytes(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	for _, d := range t.s.documents {
		if d.TenantID == tenantID {
			n += d.SizeBytes
		}
	}
	return n, nil
}

func (t *memTx) CreateDocument(ctx context.Context, d *models.Document) error {
	t.s.documents[d.ID] = *d
	return nil
}

func (t *memTx) CreateExpiryRequest(ctx context.Context, r *models.ExpiryUpdateRequest) error {
	t.s.requests[r.ID] = *r
	return nil
}

func (t *memTx) TransitionExpiryRequest(ctx context.Context, tr store.ReviewTransition) (*models.ExpiryUpdateRequest, error) {
	r, ok := t.s.requests[tr.ID]
	if !ok || r.TenantID != tr.TenantID {
		return nil, store.ErrNotFound
	}
	if r.Status != models.RequestStatusPending {
		return nil, &store.StatusConflictError{Current: r.Status}
	}
	at, by := tr.At, tr.ReviewerID
	r.Status = tr.To
	r.ReviewedAt = &at
	r.ReviewedBy = &by
	r.RejectionReason = tr.Reason
	t.s.requests[r.ID] = r
	return &r, nil
}

func (t *memTx) CreateIncome(ctx context.Context, i *models.Income) error {
	t.s.incomes[i.ID] = *i
	return nil
}

func (t *memTx) TransitionIncome(ctx context.Context, tr store.ReviewTransition) (*models.Income, error) {
	i, ok := t.s.incomes[tr.ID]
	if !ok || i.TenantID != tr.TenantID {
		return nil, store.ErrNotFound
	}
	if i.ApprovalStatus != models.IncomeStatusPending {
		return nil, &store.StatusConflictError{Current: i.ApprovalStatus}
	}
	at, by := tr.At, tr.ReviewerID
	i.ApprovalStatus = tr.To
	i.ApprovedAt = &at
	i.ApprovedBy = &by
	t.s.incomes[i.ID] = i
	return &i, nil
}

func (t *memTx) DeleteIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error) {
	i, ok := t.s.incomes[id]
	if !ok || i.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	delete(t.s.incomes, id)
	return &i, nil
}

func (t *memTx) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if t.s.AuditErr != nil {
		return t.s.AuditErr
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	t.s.audit = append(t.s.audit, *e)
	return nil
}
