// Package report serves the tenant financial summary. Summaries are cached
// under a per-tenant version counter held in Redis; every committed workflow
// transition bumps the counter, so readers never see totals that predate it.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/cache"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

// MaxRange bounds a single summary query.
const MaxRange = 366 * 24 * time.Hour

type Summarizer interface {
	SummarizeIncome(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.IncomeSummary, error)
}

// Versions is the shared counter store. It must be the same for every
// instance, so it is Redis directly rather than the tiered cache.
type Versions interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Incr(ctx context.Context, key string) (int64, error)
}

type LookupRecorder interface {
	RecordSummaryLookup(hit bool)
}

type Service struct {
	store    Summarizer
	cache    cache.KV
	versions Versions
	ttl      time.Duration
	lookups  LookupRecorder
}

type Option func(*Service)

func WithLookupRecorder(r LookupRecorder) Option {
	return func(s *Service) { s.lookups = r }
}

func New(st Summarizer, kv cache.KV, versions Versions, ttl time.Duration, opts ...Option) *Service {
	s := &Service{store: st, cache: kv, versions: versions, ttl: ttl, lookups: nopLookups{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopLookups struct{}

func (nopLookups) RecordSummaryLookup(bool) {}

// Summary totals the counted incomes logged in [from, to).
func (s *Service) Summary(ctx context.Context, tc *tenancy.Context, from, to time.Time) (sum *models.IncomeSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "report.Summary")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := workflow.Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	if from.IsZero() {
		return nil, &workflow.ValidationError{Field: "from", Message: "is required"}
	}
	if to.IsZero() {
		return nil, &workflow.ValidationError{Field: "to", Message: "is required"}
	}
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return nil, &workflow.ValidationError{Field: "to", Message: "must be after from"}
	}
	if to.Sub(from) > MaxRange {
		return nil, &workflow.ValidationError{Field: "to", Message: "range must not exceed 366 days"}
	}

	tenantID := tc.TenantID()
	version, ok := s.version(ctx, tenantID)
	if !ok {
		// Without a trustworthy version a cached value cannot be validated.
		s.lookups.RecordSummaryLookup(false)
		return s.compute(ctx, tenantID, from, to)
	}

	key := cache.SummaryKey(tenantID, version, from, to)
	if raw, found, err := s.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "summary cache read failed", "tenant", tc.Partition(), "error", err)
	} else if found {
		var cached models.IncomeSummary
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.lookups.RecordSummaryLookup(true)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
		slog.WarnContext(ctx, "discarding undecodable summary cache entry", "key", key)
	}
	s.lookups.RecordSummaryLookup(false)

	sum, err = s.compute(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(sum); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			slog.WarnContext(ctx, "summary cache write failed", "tenant", tc.Partition(), "error", err)
		}
	}
	return sum, nil
}

func (s *Service) compute(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.IncomeSummary, error) {
	sum, err := s.store.SummarizeIncome(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summarize income: %w", err)
	}
	return sum, nil
}

func (s *Service) version(ctx context.Context, tenantID uuid.UUID) (int64, bool) {
	raw, found, err := s.versions.Get(ctx, cache.SummaryVersionKey(tenantID))
	if err != nil {
		slog.WarnContext(ctx, "summary version read failed", "tenant_id", tenantID, "error", err)
		return 0, false
	}
	if !found {
		return 0, true
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		slog.WarnContext(ctx, "summary version is not an integer", "tenant_id", tenantID, "value", string(raw))
		return 0, false
	}
	return v, true
}

// InvalidateTenant bumps the tenant's summary version. Entries cached under
// older versions are never read again and age out by TTL.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := s.versions.Incr(ctx, cache.SummaryVersionKey(tenantID)); err != nil {
		return fmt.Errorf("bump summary version: %w", err)
	}
	return nil
}
