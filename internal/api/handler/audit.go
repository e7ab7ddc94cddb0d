package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type AuditService interface {
	ListAudit(ctx context.Context, tc *tenancy.Context, in workflow.ListAuditInput) ([]*models.AuditEntry, int, error)
}

// Audit serves GET /tenant/audit.
func Audit(svc AuditService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageParams(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		targetID, err := queryUUID(r, "target_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		entries, total, err := svc.ListAudit(r.Context(), tenancy.FromContext(r.Context()), workflow.ListAuditInput{
			Action:     q.Get("action"),
			TargetType: q.Get("target_type"),
			TargetID:   targetID,
			Page:       page,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, entries, response.Meta(page.Page, page.Limit, total))
	}
}
