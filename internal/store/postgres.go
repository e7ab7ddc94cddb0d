package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds the SQL shared by the pool-backed store and its transactions.
type queries struct {
	db querier
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{db: pool}, pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	queries
}

// RunInTx runs fn inside a transaction. The transaction commits only when fn
// returns nil.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Tenants ---

// CreateTenant inserts a tenant and its policy row. Tenant provisioning is an
// external concern; this exists for seeding and integration tests.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant, policy *models.Policy) error {
	return s.RunInTx(ctx, func(tx Tx) error {
		q := tx.(*pgTx).db
		_, err := q.Exec(ctx,
			`INSERT INTO tenants (id, slug, name, active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			tenant.ID, tenant.Slug, tenant.Name, tenant.Active, tenant.CreatedAt, tenant.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create tenant: %w", err)
		}
		policy.TenantID = tenant.ID
		_, err = q.Exec(ctx,
			`INSERT INTO tenant_policies (tenant_id, require_mfa, require_mfa_users, require_income_review, max_drivers, max_storage_mb, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			policy.TenantID, policy.RequireMFA, policy.RequireMFAUsers, policy.RequireIncomeReview,
			policy.MaxDrivers, policy.MaxStorageMB)
		if err != nil {
			return fmt.Errorf("create tenant policy: %w", err)
		}
		return nil
	})
}

const tenantColumns = `id, slug, name, active, created_at, updated_at`

func (q *queries) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := q.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return &t, nil
}

func (q *queries) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := q.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// --- Policy ---

const policyColumns = `tenant_id, require_mfa, require_mfa_users, require_income_review, max_drivers, max_storage_mb, updated_at`

func scanPolicy(row pgx.Row) (*models.Policy, error) {
	var p models.Policy
	err := row.Scan(&p.TenantID, &p.RequireMFA, &p.RequireMFAUsers, &p.RequireIncomeReview,
		&p.MaxDrivers, &p.MaxStorageMB, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) GetPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error) {
	p, err := scanPolicy(q.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM tenant_policies WHERE tenant_id = $1`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func (q *queries) LockPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error) {
	p, err := scanPolicy(q.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM tenant_policies WHERE tenant_id = $1 FOR UPDATE`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock policy: %w", err)
	}
	return p, nil
}

func (q *queries) UpdatePolicy(ctx context.Context, p *models.Policy) error {
	err := q.db.QueryRow(ctx,
		`UPDATE tenant_policies SET require_mfa = $2, require_mfa_users = $3, require_income_review = $4,
		   max_drivers = $5, max_storage_mb = $6, updated_at = NOW()
		 WHERE tenant_id = $1
		 RETURNING updated_at`,
		p.TenantID, p.RequireMFA, p.RequireMFAUsers, p.RequireIncomeReview, p.MaxDrivers, p.MaxStorageMB,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// conflictOrNotFound runs after a conditional update matched zero rows and
// tells a missing row apart from one that is no longer pending.
func conflictOrNotFound(ctx context.Context, db querier, table, column string, tenantID, id uuid.UUID) error {
	var current string
	err := db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND tenant_id = $2`, column, table), id, tenantID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s status: %w", table, err)
	}
	return &StatusConflictError{Current: current}
}
