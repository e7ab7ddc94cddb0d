// Package handler implements the tenant HTTP endpoints. Handlers decode
// input, call the workflow engine with the request's tenant context, and
// translate engine errors to typed responses in one place.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
)

// writeError maps an engine error to its status and code. Unknown errors are
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *workflow.ValidationError
		quota *workflow.QuotaError
	)
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(),
			map[string]string{"field": verr.Field, "message": verr.Message})
	case errors.Is(err, workflow.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", nil)
	case errors.Is(err, workflow.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	case errors.Is(err, workflow.ErrMFARequired):
		response.Error(w, http.StatusForbidden, "MFA_REQUIRED", "Multi-factor authentication required by tenant policy", nil)
	case errors.As(err, &quota):
		response.Error(w, http.StatusForbidden, "QUOTA_EXCEEDED", "Tenant quota exceeded",
			map[string]any{"resource": quota.Resource, "limit": quota.Limit, "current": quota.Current})
	case errors.Is(err, workflow.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
	case errors.Is(err, workflow.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, workflow.ErrAlreadyReviewed):
		response.Error(w, http.StatusConflict, "ALREADY_REVIEWED", "Already reviewed", nil)
	case errors.Is(err, workflow.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", "Not awaiting review", nil)
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
