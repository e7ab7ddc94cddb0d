package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

// --- Users ---

const userColumns = `id, tenant_id, role, name, email, active, mfa_enabled,
	license_number, license_expiry, prdp_number, prdp_expiry, medical_certificate_expiry,
	bank_name, bank_account_number, bank_branch_code, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Role, &u.Name, &u.Email, &u.Active, &u.MFAEnabled,
		&u.LicenseNumber, &u.LicenseExpiry, &u.PrdpNumber, &u.PrdpExpiry, &u.MedicalCertificateExpiry,
		&u.BankName, &u.BankAccountNumber, &u.BankBranchCode, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *queries) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, filter.Role)
		argIdx++
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", argIdx))
		args = append(args, *filter.Active)
		argIdx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	page := filter.Page.Normalize()
	rows, err := q.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM users WHERE %s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		userColumns, where, argIdx, argIdx+1), append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (q *queries) CountDriversMissingMFA(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = 'driver' AND active AND NOT mfa_enabled`,
		tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count drivers missing mfa: %w", err)
	}
	return n, nil
}

func (q *queries) CountActiveDrivers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = 'driver' AND active`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active drivers: %w", err)
	}
	return n, nil
}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO users (id, tenant_id, role, name, email, active, mfa_enabled,
		   license_number, license_expiry, prdp_number, prdp_expiry, medical_certificate_expiry,
		   bank_name, bank_account_number, bank_branch_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		u.ID, u.TenantID, u.Role, u.Name, u.Email, u.Active, u.MFAEnabled,
		u.LicenseNumber, u.LicenseExpiry, u.PrdpNumber, u.PrdpExpiry, u.MedicalCertificateExpiry,
		u.BankName, u.BankAccountNumber, u.BankBranchCode, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *queries) SetUserActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx,
		`UPDATE users SET active = $3, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING `+userColumns, id, tenantID, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set user active: %w", err)
	}
	return u, nil
}

// UpdateDriverExpiry copies every non-nil date onto the driver's profile.
// Nil dates leave the existing column untouched.
func (q *queries) UpdateDriverExpiry(ctx context.Context, tenantID, driverID uuid.UUID, d models.ExpiryDates) (*models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx,
		`UPDATE users SET
		   license_expiry = COALESCE($3, license_expiry),
		   prdp_expiry = COALESCE($4, prdp_expiry),
		   medical_certificate_expiry = COALESCE($5, medical_certificate_expiry),
		   updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND role = 'driver'
		 RETURNING `+userColumns,
		driverID, tenantID, d.LicenseExpiry, d.PrdpExpiry, d.MedicalCertificateExpiry))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update driver expiry: %w", err)
	}
	return u, nil
}

// --- Vehicles ---

const vehicleColumns = `id, tenant_id, registration, make, model, active, created_at, updated_at`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := row.Scan(&v.ID, &v.TenantID, &v.Registration, &v.Make, &v.Model, &v.Active,
		&v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (q *queries) GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error) {
	v, err := scanVehicle(q.db.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

func (q *queries) ListVehicles(ctx context.Context, filter VehicleFilter) ([]*models.Vehicle, int, error) {
	where := "tenant_id = $1"
	if filter.ActiveOnly {
		where += " AND active"
	}

	var total int
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM vehicles WHERE "+where, filter.TenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vehicles: %w", err)
	}

	page := filter.Page.Normalize()
	rows, err := q.db.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE `+where+` ORDER BY registration LIMIT $2 OFFSET $3`,
		filter.TenantID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, total, rows.Err()
}

func (q *queries) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO vehicles (`+vehicleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.TenantID, v.Registration, v.Make, v.Model, v.Active, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

// --- Documents ---

// GetDocuments returns the documents of the tenant matching ids. Ids that do
// not resolve in the tenant are silently absent from the result.
func (q *queries) GetDocuments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*models.Document, error) {
	if len(ids) == 0 {
		return []*models.Document{}, nil
	}
	rows, err := q.db.Query(ctx,
		`SELECT id, tenant_id, owner_id, filename, content_type, size_bytes, storage_key, created_at
		 FROM documents WHERE tenant_id = $1 AND id = ANY($2::uuid[])`, tenantID, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.Filename, &d.ContentType,
			&d.SizeBytes, &d.StorageKey, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func (q *queries) StorageUsedBytes(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0)::bigint FROM documents WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum document storage: %w", err)
	}
	return n, nil
}

func (q *queries) CreateDocument(ctx context.Context, d *models.Document) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO documents (id, tenant_id, owner_id, filename, content_type, size_bytes, storage_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.TenantID, d.OwnerID, d.Filename, d.ContentType, d.SizeBytes, d.StorageKey, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
