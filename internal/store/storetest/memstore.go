// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

// MemStore is a transactional in-memory store. RunInTx holds the store lock
// for the whole callback and restores a snapshot when the callback fails, so
// transactions are serializable and atomic. Callbacks must only use the Tx
// they are given; calling MemStore read methods from inside one deadlocks.
type MemStore struct {
	mu        sync.Mutex
	tenants   map[uuid.UUID]models.Tenant
	policies  map[uuid.UUID]models.Policy
	users     map[uuid.UUID]models.User
	vehicles  map[uuid.UUID]models.Vehicle
	documents map[uuid.UUID]models.Document
	requests  map[uuid.UUID]models.ExpiryUpdateRequest
	incomes   map[uuid.UUID]models.Income
	audit     []models.AuditEntry
	apiKeys   map[uuid.UUID]models.APIKey

	// AuditErr, when non-nil, is returned by every AppendAudit call.
	AuditErr error
	// PingErr is returned by Ping.
	PingErr error
}

var _ store.Store = (*MemStore)(nil)

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		tenants:   map[uuid.UUID]models.Tenant{},
		policies:  map[uuid.UUID]models.Policy{},
		users:     map[uuid.UUID]models.User{},
		vehicles:  map[uuid.UUID]models.Vehicle{},
		documents: map[uuid.UUID]models.Document{},
		requests:  map[uuid.UUID]models.ExpiryUpdateRequest{},
		incomes:   map[uuid.UUID]models.Income{},
		apiKeys:   map[uuid.UUID]models.APIKey{},
	}
}

// --- Seeding ---

// AddTenant stores a tenant with its policy and returns the tenant.
func (s *MemStore) AddTenant(slug string, policy models.Policy) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t := models.Tenant{ID: uuid.New(), Slug: slug, Name: slug, Active: true, CreatedAt: now, UpdatedAt: now}
	s.tenants[t.ID] = t
	policy.TenantID = t.ID
	policy.UpdatedAt = now
	s.policies[t.ID] = policy
	return &t
}

// SetTenantActive flips the tenant active flag.
func (s *MemStore) SetTenantActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenants[id]
	t.Active = active
	s.tenants[id] = t
}

// AddUser stores u as is, filling in ID and timestamps when empty.
func (s *MemStore) AddUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = u
	return &u
}

// AddVehicle stores v, filling in ID when empty.
func (s *MemStore) AddVehicle(v models.Vehicle) *models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	s.vehicles[v.ID] = v
	return &v
}

// AddDocument stores d, filling in ID when empty.
func (s *MemStore) AddDocument(d models.Document) *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.documents[d.ID] = d
	return &d
}

// AddIncome stores i as is.
func (s *MemStore) AddIncome(i models.Income) *models.Income {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	s.incomes[i.ID] = i
	return &i
}

// AuditEntries returns a copy of every audit entry in append order.
func (s *MemStore) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}

// --- Store ---

func (s *MemStore) Ping(ctx context.Context) error {
	return s.PingErr
}

type snapshot struct {
	tenants   map[uuid.UUID]models.Tenant
	policies  map[uuid.UUID]models.Policy
	users     map[uuid.UUID]models.User
	vehicles  map[uuid.UUID]models.Vehicle
	documents map[uuid.UUID]models.Document
	requests  map[uuid.UUID]models.ExpiryUpdateRequest
	incomes   map[uuid.UUID]models.Income
	audit     []models.AuditEntry
}

func (s *MemStore) snapshot() snapshot {
	return snapshot{
		tenants:   maps.Clone(s.tenants),
		policies:  maps.Clone(s.policies),
		users:     maps.Clone(s.users),
		vehicles:  maps.Clone(s.vehicles),
		documents: maps.Clone(s.documents),
		requests:  maps.Clone(s.requests),
		incomes:   maps.Clone(s.incomes),
		audit:     slices.Clone(s.audit),
	}
}

func (s *MemStore) restore(snap snapshot) {
	s.tenants = snap.tenants
	s.policies = snap.policies
	s.users = snap.users
	s.vehicles = snap.vehicles
	s.documents = snap.documents
	s.requests = snap.requests
	s.incomes = snap.incomes
	s.audit = snap.audit
}

func (s *MemStore) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemStore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *MemStore) GetPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPolicy(tenantID)
}

func (s *MemStore) getPolicy(tenantID uuid.UUID) (*models.Policy, error) {
	p, ok := s.policies[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *MemStore) CountDriversMissingMFA(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.TenantID == tenantID && u.IsDriver() && u.Active && !u.MFAEnabled {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUser(tenantID, id)
}

func (s *MemStore) getUser(tenantID, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) ListUsers(ctx context.Context, f store.UserFilter) ([]*models.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if u.TenantID != f.TenantID {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		out = append(out, &u)
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(out, f.Page), len(out), nil
}

func (s *MemStore) GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *MemStore) ListVehicles(ctx context.Context, f store.VehicleFilter) ([]*models.Vehicle, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Vehicle
	for _, v := range s.vehicles {
		if v.TenantID != f.TenantID || (f.ActiveOnly && !v.Active) {
			continue
		}
		out = append(out, &v)
	}
	slices.SortFunc(out, func(a, b *models.Vehicle) int {
		return cmp.Compare(a.Registration, b.Registration)
	})
	return paginate(out, f.Page), len(out), nil
}

func (s *MemStore) GetDocuments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Document{}
	for _, id := range ids {
		if d, ok := s.documents[id]; ok && d.TenantID == tenantID {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (s *MemStore) GetExpiryRequest(ctx context.Context, tenantID, id uuid.UUID) (*models.ExpiryUpdateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *MemStore) ListExpiryRequests(ctx context.Context, f store.ExpiryRequestFilter) ([]*models.ExpiryUpdateRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ExpiryUpdateRequest
	for _, r := range s.requests {
		if r.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.DriverID != nil && r.DriverID != *f.DriverID {
			continue
		}
		out = append(out, &r)
	}
	slices.SortFunc(out, func(a, b *models.ExpiryUpdateRequest) int {
		return cmp.Or(b.SubmittedAt.Compare(a.SubmittedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(out, f.Page), len(out), nil
}

func (s *MemStore) GetIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.incomes[id]
	if !ok || i.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &i, nil
}

func (s *MemStore) ListIncomes(ctx context.Context, f store.IncomeFilter) ([]*models.Income, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Income
	for _, i := range s.incomes {
		if i.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && i.ApprovalStatus != f.Status {
			continue
		}
		if f.DriverID != nil && i.DriverID != *f.DriverID {
			continue
		}
		if f.VehicleID != nil && i.VehicleID != *f.VehicleID {
			continue
		}
		out = append(out, &i)
	}
	slices.SortFunc(out, func(a, b *models.Income) int {
		return cmp.Or(b.LoggedOn.Compare(a.LoggedOn), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return paginate(out, f.Page), len(out), nil
}

func (s *MemStore) SummarizeIncome(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.IncomeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := &models.IncomeSummary{TenantID: tenantID, From: from, To: to}
	for _, i := range s.incomes {
		if i.TenantID != tenantID || !i.Counted() {
			continue
		}
		if i.LoggedOn.Before(from) || !i.LoggedOn.Before(to) {
			continue
		}
		sum.IncomeCount++
		sum.GrossCents += i.AmountCents
		if i.FuelCostCents != nil {
			sum.FuelCents += *i.FuelCostCents
		}
		if i.ExpensePriceCents != nil {
			sum.ExpenseCents += *i.ExpensePriceCents
		}
	}
	sum.NetCents = sum.GrossCents - sum.FuelCents - sum.ExpenseCents
	return sum, nil
}

func (s *MemStore) ListAuditEntries(ctx context.Context, f store.AuditFilter) ([]*models.AuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range s.audit {
		if e.TenantID != f.TenantID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.TargetType != "" && e.TargetType != f.TargetType {
			continue
		}
		if f.TargetID != nil && e.TargetID != *f.TargetID {
			continue
		}
		out = append(out, &e)
	}
	slices.SortStableFunc(out, func(a, b *models.AuditEntry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return paginate(out, f.Page), len(out), nil
}

// --- API keys ---

func (s *MemStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, &k)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	s.apiKeys[id] = k
	return nil
}

func (s *MemStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.apiKeys[key.ID] = *key
	return nil
}

func (s *MemStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.apiKeys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			out = append(out, &k)
		}
	}
	slices.SortFunc(out, func(a, b *models.APIKey) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *MemStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	s.apiKeys[id] = k
	return nil
}

func paginate[T any](items []T, p store.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+p.Limit, len(items))]
}
