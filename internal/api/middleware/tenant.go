package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
)

// Resolver turns a principal into a tenant context.
type Resolver interface {
	Resolve(ctx context.Context, p tenancy.Principal) (*tenancy.Context, error)
}

// Tenant resolves the authenticated principal and stores the tenant context
// for handlers. It must run after Authenticate.
func Tenant(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
				return
			}

			tc, err := res.Resolve(r.Context(), p)
			if errors.Is(err, tenancy.ErrUnauthorized) {
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown or inactive tenant or user", nil)
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "tenant resolution failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenancy.NewContext(r.Context(), tc)))
		})
	}
}
