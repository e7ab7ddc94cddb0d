package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/fleetledger/internal/metrics"
	"github.com/stretchr/testify/assert"
)

// scrape returns the text exposition of m.
func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestRecordTransition(t *testing.T) {
	m := metrics.New("fleetledger")
	m.RecordTransition("income", "approved")
	m.RecordTransition("income", "approved")
	m.RecordTransition("expiry_request", "rejected")

	body := scrape(t, m)
	assert.Contains(t, body, `fleetledger_workflow_transitions_total{action="approved",entity="income"} 2`)
	assert.Contains(t, body, `fleetledger_workflow_transitions_total{action="rejected",entity="expiry_request"} 1`)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := metrics.New("fleetledger")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/tenant/incomes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tenant/incomes/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tenant/incomes/def", nil))

	assert.Contains(t, scrape(t, m),
		`fleetledger_http_requests_total{method="GET",route="/tenant/incomes/{id}",status="404"} 2`)
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	m := metrics.New("fleetledger")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/wp-login.php", "/.env", "/admin/config.json"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PROPFIND", "/.git/config", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `fleetledger_http_requests_total{method="GET",route="unmatched",status="404"} 3`)
	assert.Contains(t, body, `fleetledger_http_requests_total{method="OTHER",route="unmatched",status="405"} 1`)
	assert.NotContains(t, body, "wp-login")
	assert.NotContains(t, body, ".env")
}

func TestRecordSummaryLookup(t *testing.T) {
	m := metrics.New("fleetledger")
	m.RecordSummaryLookup(true)
	m.RecordSummaryLookup(false)
	m.RecordSummaryLookup(false)

	body := scrape(t, m)
	assert.Contains(t, body, `fleetledger_summary_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `fleetledger_summary_cache_lookups_total{result="miss"} 2`)
}
