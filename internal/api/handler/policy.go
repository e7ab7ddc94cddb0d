package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type PolicyService interface {
	GetPolicy(ctx context.Context, tc *tenancy.Context) (*workflow.PolicyView, error)
	UpdatePolicy(ctx context.Context, tc *tenancy.Context, in workflow.UpdatePolicyInput) (*models.Policy, error)
}

// Policy serves /tenant/policy.
type Policy struct {
	svc PolicyService
}

func NewPolicy(svc PolicyService) *Policy {
	return &Policy{svc: svc}
}

func (h *Policy) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetPolicy(r.Context(), tenancy.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, view)
}

// updatePolicyRequest replaces the whole policy; omitted limits become unbounded.
type updatePolicyRequest struct {
	RequireMFA          bool `json:"require_mfa"`
	RequireMFAUsers     bool `json:"require_mfa_users"`
	RequireIncomeReview bool `json:"require_income_review"`
	MaxDrivers          *int `json:"max_drivers"`
	MaxStorageMB        *int `json:"max_storage_mb"`
}

func (h *Policy) Update(w http.ResponseWriter, r *http.Request) {
	var body updatePolicyRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.UpdatePolicy(r.Context(), tenancy.FromContext(r.Context()), workflow.UpdatePolicyInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, p)
}
