package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

// --- Expiry update requests ---

const expiryRequestColumns = `id, tenant_id, driver_id, status,
	requested_license_expiry, requested_prdp_expiry, requested_medical_certificate_expiry,
	supporting_document_ids::text[], submitted_at, reviewed_at, reviewed_by, rejection_reason`

func scanExpiryRequest(row pgx.Row) (*models.ExpiryUpdateRequest, error) {
	var r models.ExpiryUpdateRequest
	var docIDs []string
	err := row.Scan(&r.ID, &r.TenantID, &r.DriverID, &r.Status,
		&r.Requested.LicenseExpiry, &r.Requested.PrdpExpiry, &r.Requested.MedicalCertificateExpiry,
		&docIDs, &r.SubmittedAt, &r.ReviewedAt, &r.ReviewedBy, &r.RejectionReason)
	if err != nil {
		return nil, err
	}
	if r.SupportingDocumentIDs, err = parseUUIDs(docIDs); err != nil {
		return nil, fmt.Errorf("parse supporting document ids: %w", err)
	}
	return &r, nil
}

func (q *queries) GetExpiryRequest(ctx context.Context, tenantID, id uuid.UUID) (*models.ExpiryUpdateRequest, error) {
	r, err := scanExpiryRequest(q.db.QueryRow(ctx,
		`SELECT `+expiryRequestColumns+` FROM expiry_update_requests WHERE id = $1 AND tenant_id = $2`,
		id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expiry request: %w", err)
	}
	return r, nil
}

func (q *queries) ListExpiryRequests(ctx context.Context, filter ExpiryRequestFilter) ([]*models.ExpiryUpdateRequest, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.DriverID != nil {
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", argIdx))
		args = append(args, *filter.DriverID)
		argIdx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM expiry_update_requests WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expiry requests: %w", err)
	}

	page := filter.Page.Normalize()
	rows, err := q.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM expiry_update_requests WHERE %s ORDER BY submitted_at DESC, id LIMIT $%d OFFSET $%d`,
		expiryRequestColumns, where, argIdx, argIdx+1), append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list expiry requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.ExpiryUpdateRequest
	for rows.Next() {
		r, err := scanExpiryRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan expiry request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, total, rows.Err()
}

func (q *queries) CreateExpiryRequest(ctx context.Context, r *models.ExpiryUpdateRequest) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO expiry_update_requests (id, tenant_id, driver_id, status,
		   requested_license_expiry, requested_prdp_expiry, requested_medical_certificate_expiry,
		   supporting_document_ids, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9)`,
		r.ID, r.TenantID, r.DriverID, r.Status,
		r.Requested.LicenseExpiry, r.Requested.PrdpExpiry, r.Requested.MedicalCertificateExpiry,
		uuidStrings(r.SupportingDocumentIDs), r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("create expiry request: %w", err)
	}
	return nil
}

// TransitionExpiryRequest moves a pending request to t.To in one conditional
// update. It returns ErrNotFound or *StatusConflictError when nothing matched.
func (q *queries) TransitionExpiryRequest(ctx context.Context, t ReviewTransition) (*models.ExpiryUpdateRequest, error) {
	r, err := scanExpiryRequest(q.db.QueryRow(ctx,
		`UPDATE expiry_update_requests
		 SET status = $3, reviewed_by = $4, reviewed_at = $5, rejection_reason = $6
		 WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
		 RETURNING `+expiryRequestColumns,
		t.ID, t.TenantID, t.To, t.ReviewerID, t.At, t.Reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conflictOrNotFound(ctx, q.db, "expiry_update_requests", "status", t.TenantID, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition expiry request: %w", err)
	}
	return r, nil
}

// --- Incomes ---

const incomeColumns = `id, tenant_id, vehicle_id, driver_id, amount_cents, odometer_start, odometer_end,
	fuel_cost_cents, fuel_litres, expense_detail, expense_price_cents, logged_on,
	approval_status, approved_at, approved_by, created_at`

func scanIncome(row pgx.Row) (*models.Income, error) {
	var i models.Income
	err := row.Scan(&i.ID, &i.TenantID, &i.VehicleID, &i.DriverID, &i.AmountCents,
		&i.OdometerStart, &i.OdometerEnd, &i.FuelCostCents, &i.FuelLitres,
		&i.ExpenseDetail, &i.ExpensePriceCents, &i.LoggedOn,
		&i.ApprovalStatus, &i.ApprovedAt, &i.ApprovedBy, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (q *queries) GetIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error) {
	i, err := scanIncome(q.db.QueryRow(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get income: %w", err)
	}
	return i, nil
}

func (q *queries) ListIncomes(ctx context.Context, filter IncomeFilter) ([]*models.Income, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("approval_status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.DriverID != nil {
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", argIdx))
		args = append(args, *filter.DriverID)
		argIdx++
	}
	if filter.VehicleID != nil {
		conditions = append(conditions, fmt.Sprintf("vehicle_id = $%d", argIdx))
		args = append(args, *filter.VehicleID)
		argIdx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM incomes WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incomes: %w", err)
	}

	page := filter.Page.Normalize()
	rows, err := q.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM incomes WHERE %s ORDER BY logged_on DESC, id LIMIT $%d OFFSET $%d`,
		incomeColumns, where, argIdx, argIdx+1), append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var incomes []*models.Income
	for rows.Next() {
		i, err := scanIncome(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan income: %w", err)
		}
		incomes = append(incomes, i)
	}
	return incomes, total, rows.Err()
}

func (q *queries) CreateIncome(ctx context.Context, i *models.Income) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO incomes (`+incomeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		i.ID, i.TenantID, i.VehicleID, i.DriverID, i.AmountCents, i.OdometerStart, i.OdometerEnd,
		i.FuelCostCents, i.FuelLitres, i.ExpenseDetail, i.ExpensePriceCents, i.LoggedOn,
		i.ApprovalStatus, i.ApprovedAt, i.ApprovedBy, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	return nil
}

// TransitionIncome moves a pending income to t.To in one conditional update.
func (q *queries) TransitionIncome(ctx context.Context, t ReviewTransition) (*models.Income, error) {
	i, err := scanIncome(q.db.QueryRow(ctx,
		`UPDATE incomes SET approval_status = $3, approved_by = $4, approved_at = $5
		 WHERE id = $1 AND tenant_id = $2 AND approval_status = 'pending'
		 RETURNING `+incomeColumns,
		t.ID, t.TenantID, t.To, t.ReviewerID, t.At))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conflictOrNotFound(ctx, q.db, "incomes", "approval_status", t.TenantID, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition income: %w", err)
	}
	return i, nil
}

func (q *queries) DeleteIncome(ctx context.Context, tenantID, id uuid.UUID) (*models.Income, error) {
	i, err := scanIncome(q.db.QueryRow(ctx,
		`DELETE FROM incomes WHERE id = $1 AND tenant_id = $2 RETURNING `+incomeColumns, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete income: %w", err)
	}
	return i, nil
}

// SummarizeIncome aggregates incomes logged in [from, to). Only counted
// statuses contribute.
func (q *queries) SummarizeIncome(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.IncomeSummary, error) {
	sum := &models.IncomeSummary{TenantID: tenantID, From: from, To: to}
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(amount_cents), 0)::bigint,
		        COALESCE(SUM(fuel_cost_cents), 0)::bigint,
		        COALESCE(SUM(expense_price_cents), 0)::bigint
		 FROM incomes
		 WHERE tenant_id = $1 AND approval_status = ANY($2) AND logged_on >= $3 AND logged_on < $4`,
		tenantID, models.CountedIncomeStatuses, from, to,
	).Scan(&sum.IncomeCount, &sum.GrossCents, &sum.FuelCents, &sum.ExpenseCents)
	if err != nil {
		return nil, fmt.Errorf("summarize income: %w", err)
	}
	sum.NetCents = sum.GrossCents - sum.FuelCents - sum.ExpenseCents
	return sum, nil
}

// --- Audit ---

func (q *queries) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO audit_entries (id, tenant_id, action, actor_user_id, actor_role, target_type, target_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TenantID, e.Action, e.ActorUserID, e.ActorRole, e.TargetType, e.TargetID, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (q *queries) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, filter.Action)
		argIdx++
	}
	if filter.TargetType != "" {
		conditions = append(conditions, fmt.Sprintf("target_type = $%d", argIdx))
		args = append(args, filter.TargetType)
		argIdx++
	}
	if filter.TargetID != nil {
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", argIdx))
		args = append(args, *filter.TargetID)
		argIdx++
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entries WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	page := filter.Page.Normalize()
	rows, err := q.db.Query(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, action, actor_user_id, actor_role, target_type, target_id, metadata, created_at
		 FROM audit_entries WHERE %s ORDER BY created_at, id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1), append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Action, &e.ActorUserID, &e.ActorRole,
			&e.TargetType, &e.TargetID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
