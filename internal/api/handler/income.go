package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type IncomeService interface {
	LogIncome(ctx context.Context, tc *tenancy.Context, in workflow.LogIncomeInput) (*models.Income, error)
	ApproveIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.Income, error)
	RejectIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID, reason *string) (*models.Income, error)
	DeleteIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) error
	GetIncome(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.Income, error)
	ListIncomes(ctx context.Context, tc *tenancy.Context, in workflow.ListIncomesInput) ([]*models.Income, int, error)
}

// Incomes serves /tenant/incomes.
type Incomes struct {
	svc IncomeService
}

func NewIncomes(svc IncomeService) *Incomes {
	return &Incomes{svc: svc}
}

type logIncomeRequest struct {
	DriverID          *uuid.UUID `json:"driver_id"`
	VehicleID         uuid.UUID  `json:"vehicle_id"`
	AmountCents       int64      `json:"amount_cents"`
	OdometerStart     *int64     `json:"odometer_start"`
	OdometerEnd       *int64     `json:"odometer_end"`
	FuelCostCents     *int64     `json:"fuel_cost_cents"`
	FuelLitres        *float64   `json:"fuel_litres"`
	ExpenseDetail     *string    `json:"expense_detail"`
	ExpensePriceCents *int64     `json:"expense_price_cents"`
	LoggedOn          string     `json:"logged_on"`
}

func (h *Incomes) Create(w http.ResponseWriter, r *http.Request) {
	var body logIncomeRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	in := workflow.LogIncomeInput{
		VehicleID:         body.VehicleID,
		AmountCents:       body.AmountCents,
		OdometerStart:     body.OdometerStart,
		OdometerEnd:       body.OdometerEnd,
		FuelCostCents:     body.FuelCostCents,
		FuelLitres:        body.FuelLitres,
		ExpenseDetail:     body.ExpenseDetail,
		ExpensePriceCents: body.ExpensePriceCents,
	}
	if body.DriverID != nil {
		in.DriverID = *body.DriverID
	}
	if body.LoggedOn != "" {
		loggedOn, err := parseDate("logged_on", body.LoggedOn)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.LoggedOn = loggedOn
	}

	inc, err := h.svc.LogIncome(r.Context(), tenancy.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, inc)
}

func (h *Incomes) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := h.svc.ApproveIncome(r.Context(), tenancy.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, inc)
}

func (h *Incomes) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body rejectRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := h.svc.RejectIncome(r.Context(), tenancy.FromContext(r.Context()), id, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, inc)
}

func (h *Incomes) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteIncome(r.Context(), tenancy.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Incomes) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := h.svc.GetIncome(r.Context(), tenancy.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, inc)
}

func (h *Incomes) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := workflow.ListIncomesInput{Status: r.URL.Query().Get("status"), Page: page}
	if in.DriverID, err = queryUUID(r, "driver_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if in.VehicleID, err = queryUUID(r, "vehicle_id"); err != nil {
		writeError(w, r, err)
		return
	}
	incomes, total, err := h.svc.ListIncomes(r.Context(), tenancy.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, incomes, response.Meta(page.Page, page.Limit, total))
}
