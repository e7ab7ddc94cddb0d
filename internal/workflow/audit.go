package workflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type ListAuditInput struct {
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	store.Page
}

// ListAudit returns the tenant's audit trail, oldest first.
func (e *Engine) ListAudit(ctx context.Context, tc *tenancy.Context, in ListAuditInput) ([]*models.AuditEntry, int, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	return e.store.ListAuditEntries(ctx, store.AuditFilter{
		TenantID:   tc.TenantID(),
		Action:     in.Action,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Page:       in.Page.Normalize(),
	})
}
