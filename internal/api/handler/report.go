package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type SummaryService interface {
	Summary(ctx context.Context, tc *tenancy.Context, from, to time.Time) (*models.IncomeSummary, error)
}

// Summary serves GET /tenant/reports/summary?from=&to=. The range is
// half-open; missing bounds are rejected by the service.
func Summary(svc SummaryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var from, to time.Time
		q := r.URL.Query()
		if raw := q.Get("from"); raw != "" {
			t, err := parseDate("from", raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			from = t
		}
		if raw := q.Get("to"); raw != "" {
			t, err := parseDate("to", raw)
			if err != nil {
				writeError(w, r, err)
				return
			}
			to = t
		}

		sum, err := svc.Summary(r.Context(), tenancy.FromContext(r.Context()), from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, sum)
	}
}
