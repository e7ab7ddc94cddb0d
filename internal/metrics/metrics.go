package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	httpReqCnt  *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	summaryHits *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "workflow_transitions_total"}, []string{"entity", "action"})
	summaryHits := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "summary_cache_lookups_total"}, []string{"result"})
	r.MustRegister(httpReqCnt, httpDur, transitions, summaryHits)

	return &Metrics{
		registry:    r,
		httpReqCnt:  httpReqCnt,
		httpDur:     httpDur,
		transitions: transitions,
		summaryHits: summaryHits,
	}
}

// RecordTransition counts a committed workflow state change.
func (m *Metrics) RecordTransition(entity, action string) {
	m.transitions.WithLabelValues(entity, action).Inc()
}

// RecordSummaryLookup counts a financial summary cache hit or miss.
func (m *Metrics) RecordSummaryLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.summaryHits.WithLabelValues(result).Inc()
}

// Requests that match no route share one label so raw paths never become
// label values.
const unmatchedRoute = "unmatched"

var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodOptions: true,
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := r.Method
		if !knownMethods[method] {
			method = "OTHER"
		}
		m.httpReqCnt.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDur.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
