package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

const (
	targetIncome = "income"

	ActionIncomeLogged   = "income.logged"
	ActionIncomeApproved = "income.approved"
	ActionIncomeRejected = "income.rejected"
	ActionIncomeDeleted  = "income.deleted"

	maxExpenseDetailLen = 500
	// MaxCents bounds every monetary field; ten billion in major units.
	MaxCents int64 = 1_000_000_000_000
)

// LogIncomeInput is a driver's earnings record. Amounts are in cents.
type LogIncomeInput struct {
	DriverID          uuid.UUID
	VehicleID         uuid.UUID
	AmountCents       int64
	OdometerStart     *int64
	OdometerEnd       *int64
	FuelCostCents     *int64
	FuelLitres        *float64
	ExpenseDetail     *string
	ExpensePriceCents *int64
	LoggedOn          time.Time
}

func (in LogIncomeInput) validate() error {
	if in.AmountCents <= 0 {
		return invalid("amount_cents", "must be greater than zero")
	}
	if in.AmountCents > MaxCents {
		return invalid("amount_cents", "must be at most %d", MaxCents)
	}
	if in.LoggedOn.IsZero() {
		return invalid("logged_on", "is required")
	}
	if in.OdometerStart != nil && *in.OdometerStart < 0 {
		return invalid("odometer_start", "must not be negative")
	}
	if in.OdometerEnd != nil && *in.OdometerEnd < 0 {
		return invalid("odometer_end", "must not be negative")
	}
	if in.OdometerStart != nil && in.OdometerEnd != nil && *in.OdometerEnd < *in.OdometerStart {
		return invalid("odometer_end", "must not be less than odometer_start")
	}
	if in.FuelCostCents != nil && (*in.FuelCostCents < 0 || *in.FuelCostCents > MaxCents) {
		return invalid("fuel_cost_cents", "must be between 0 and %d", MaxCents)
	}
	if in.FuelLitres != nil && *in.FuelLitres < 0 {
		return invalid("fuel_litres", "must not be negative")
	}
	if in.ExpensePriceCents != nil && (*in.ExpensePriceCents < 0 || *in.ExpensePriceCents > MaxCents) {
		return invalid("expense_price_cents", "must be between 0 and %d", MaxCents)
	}
	if in.ExpenseDetail != nil && len(*in.ExpenseDetail) > maxExpenseDetailLen {
		return invalid("expense_detail", "must be at most %d characters", maxExpenseDetailLen)
	}
	return nil
}

// LogIncome records an income. It starts pending when the tenant requires
// income review and auto otherwise.
func (e *Engine) LogIncome(ctx context.Context, tc *tenancy.Context, in LogIncomeInput) (inc *models.Income, err error) {
	ctx, span := e.span(ctx, "LogIncome", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc); err != nil {
		return nil, err
	}
	driverID, err := subjectDriver(tc, in.DriverID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	driver, err := e.resolveDriver(ctx, tc, "driver_id", driverID)
	if err != nil {
		return nil, err
	}
	if in.VehicleID == uuid.Nil {
		return nil, invalid("vehicle_id", "is required")
	}
	vehicle, err := e.store.GetVehicle(ctx, tc.TenantID(), in.VehicleID)
	if err != nil {
		if isNotFound(err) {
			return nil, invalid("vehicle_id", "vehicle not found")
		}
		return nil, fmt.Errorf("load vehicle: %w", err)
	}
	if !vehicle.Active {
		return nil, invalid("vehicle_id", "vehicle is inactive")
	}

	policy := tc.Policy()
	inc = &models.Income{
		ID:                uuid.New(),
		TenantID:          tc.TenantID(),
		VehicleID:         vehicle.ID,
		DriverID:          driver.ID,
		AmountCents:       in.AmountCents,
		OdometerStart:     in.OdometerStart,
		OdometerEnd:       in.OdometerEnd,
		FuelCostCents:     in.FuelCostCents,
		FuelLitres:        in.FuelLitres,
		ExpenseDetail:     in.ExpenseDetail,
		ExpensePriceCents: in.ExpensePriceCents,
		LoggedOn:          in.LoggedOn.UTC(),
		ApprovalStatus:    policy.InitialIncomeStatus(),
		CreatedAt:         e.now(),
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateIncome(ctx, inc); err != nil {
			return fmt.Errorf("create income: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionIncomeLogged, targetIncome, inc.ID, incomeMeta(inc))
	})
	if err != nil {
		return nil, err
	}

	var msgs []notify.Message
	if inc.ApprovalStatus == models.IncomeStatusPending {
		msgs = append(msgs, notify.Message{
			Kind:     notify.KindIncomePendingReview,
			TargetID: inc.ID,
			Data:     map[string]any{"driver_id": driver.ID.String(), "amount_cents": inc.AmountCents},
		})
	}
	e.afterCommit(ctx, tc, "income", "logged", msgs...)
	return inc, nil
}

func (e *Engine) ApproveIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.Income, error) {
	return e.reviewIncome(ctx, tc, id, models.IncomeStatusApproved, nil)
}

// RejectIncome rejects a pending income. The optional reason is kept on the
// audit entry only.
func (e *Engine) RejectIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID, reason *string) (*models.Income, error) {
	return e.reviewIncome(ctx, tc, id, models.IncomeStatusRejected, reason)
}

func (e *Engine) reviewIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID, to string, reason *string) (inc *models.Income, err error) {
	ctx, span := e.span(ctx, "ReviewIncome", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	reason, err = normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	action := ActionIncomeApproved
	if to == models.IncomeStatusRejected {
		action = ActionIncomeRejected
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		inc, err = tx.TransitionIncome(ctx, e.review(tc, id, to, nil))
		if err != nil {
			return reviewErr(err, incomeReviewed)
		}
		meta := incomeMeta(inc)
		if reason != nil {
			meta["reason"] = *reason
		}
		return e.appendAudit(ctx, tx, tc, action, targetIncome, inc.ID, meta)
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, tc, "income", to, notify.Message{
		Kind:        notify.KindIncomeReviewed,
		RecipientID: &inc.DriverID,
		TargetID:    inc.ID,
		Data:        map[string]any{"status": inc.ApprovalStatus},
	})
	return inc, nil
}

// An auto income was never up for review, so a conflict on it is an
// invalid transition rather than a lost race.
func incomeReviewed(current string) bool {
	return current != models.IncomeStatusAuto
}

// DeleteIncome hard-deletes an income of the tenant in any status.
func (e *Engine) DeleteIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (err error) {
	ctx, span := e.span(ctx, "DeleteIncome", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return err
	}
	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		inc, err := tx.DeleteIncome(ctx, tc.TenantID(), id)
		if err != nil {
			return err
		}
		return e.appendAudit(ctx, tx, tc, ActionIncomeDeleted, targetIncome, inc.ID, incomeMeta(inc))
	})
	if err != nil {
		return err
	}
	e.afterCommit(ctx, tc, "income", "deleted")
	return nil
}

// GetIncome returns an income of the tenant. Drivers only see their own.
func (e *Engine) GetIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.Income, error) {
	if err := Authorize(tc); err != nil {
		return nil, err
	}
	inc, err := e.store.GetIncome(ctx, tc.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if tc.IsDriver() && inc.DriverID != tc.Actor().UserID {
		return nil, ErrNotFound
	}
	return inc, nil
}

type ListIncomesInput struct {
	Status    string
	DriverID  *uuid.UUID
	VehicleID *uuid.UUID
	store.Page
}

// ListIncomes lists the tenant's incomes. A driver's listing is always
// restricted to their own records.
func (e *Engine) ListIncomes(ctx context.Context, tc *tenancy.Context, in ListIncomesInput) ([]*models.Income, int, error) {
	if err := Authorize(tc); err != nil {
		return nil, 0, err
	}
	if in.Status != "" && !models.ValidIncomeStatus(in.Status) {
		return nil, 0, invalid("status", "must be one of auto, pending, approved, rejected")
	}
	if tc.IsDriver() {
		self := tc.Actor().UserID
		if in.DriverID != nil && *in.DriverID != self {
			return nil, 0, fmt.Errorf("%w: drivers may only list their own incomes", ErrForbidden)
		}
		in.DriverID = &self
	}
	return e.store.ListIncomes(ctx, store.IncomeFilter{
		TenantID:  tc.TenantID(),
		Status:    in.Status,
		DriverID:  in.DriverID,
		VehicleID: in.VehicleID,
		Page:      in.Page.Normalize(),
	})
}

func incomeMeta(inc *models.Income) map[string]any {
	return map[string]any{
		"driver_id":       inc.DriverID.String(),
		"vehicle_id":      inc.VehicleID.String(),
		"amount_cents":    inc.AmountCents,
		"approval_status": inc.ApprovalStatus,
	}
}
