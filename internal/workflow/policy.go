package workflow

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

const (
	targetPolicy = "policy"

	ActionPolicyUpdated = "policy.updated"
)

// PolicyView is the tenant policy plus the number of active drivers that
// have not enrolled in MFA.
type PolicyView struct {
	models.Policy
	DriversMissingMFA int `json:"drivers_missing_mfa"`
}

func (e *Engine) GetPolicy(ctx context.Context, tc *tenancy.Context) (*PolicyView, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	p, err := e.store.GetPolicy(ctx, tc.TenantID())
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	missing, err := e.store.CountDriversMissingMFA(ctx, tc.TenantID())
	if err != nil {
		return nil, fmt.Errorf("count drivers missing mfa: %w", err)
	}
	return &PolicyView{Policy: *p, DriversMissingMFA: missing}, nil
}

// UpdatePolicyInput replaces every editable policy field.
type UpdatePolicyInput struct {
	RequireMFA          bool
	RequireMFAUsers     bool
	RequireIncomeReview bool
	MaxDrivers          *int
	MaxStorageMB        *int
}

// UpdatePolicy replaces the tenant policy. Lowering a limit below current
// usage is allowed; it only blocks further growth.
func (e *Engine) UpdatePolicy(ctx context.Context, tc *tenancy.Context, in UpdatePolicyInput) (p *models.Policy, err error) {
	ctx, span := e.span(ctx, "UpdatePolicy", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	if in.MaxDrivers != nil && *in.MaxDrivers < 0 {
		return nil, invalid("max_drivers", "must not be negative")
	}
	if in.MaxStorageMB != nil && (*in.MaxStorageMB < 0 || *in.MaxStorageMB > models.MaxStorageMBLimit) {
		return nil, invalid("max_storage_mb", "must be between 0 and %d", models.MaxStorageMBLimit)
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		before, err := tx.LockPolicy(ctx, tc.TenantID())
		if err != nil {
			return fmt.Errorf("lock policy: %w", err)
		}
		p = &models.Policy{
			TenantID:            tc.TenantID(),
			RequireMFA:          in.RequireMFA,
			RequireMFAUsers:     in.RequireMFAUsers,
			RequireIncomeReview: in.RequireIncomeReview,
			MaxDrivers:          in.MaxDrivers,
			MaxStorageMB:        in.MaxStorageMB,
		}
		if err := tx.UpdatePolicy(ctx, p); err != nil {
			return fmt.Errorf("update policy: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionPolicyUpdated, targetPolicy, tc.TenantID(), map[string]any{
			"before": policyFields(before),
			"after":  policyFields(p),
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, tc, "policy", "updated")
	return p, nil
}

func policyFields(p *models.Policy) map[string]any {
	return map[string]any{
		"require_mfa":           p.RequireMFA,
		"require_mfa_users":     p.RequireMFAUsers,
		"require_income_review": p.RequireIncomeReview,
		"max_drivers":           p.MaxDrivers,
		"max_storage_mb":        p.MaxStorageMB,
	}
}
