// Package workflow implements the request/approval engine: expiry update
// requests, income approval, and the tenant administration actions that
// share their audit and policy rules.
//
// Every operation takes a resolved *tenancy.Context. State changes and their
// audit entries commit in a single store transaction; cache invalidation,
// notifications and metrics run only after commit and cannot fail the call.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Invalidator drops read-side caches derived from a tenant's data.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// Recorder counts committed transitions.
type Recorder interface {
	RecordTransition(entity, action string)
}

type Engine struct {
	store       store.Store
	notifier    notify.Notifier
	invalidator Invalidator
	recorder    Recorder
	now         func() time.Time
}

type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithInvalidator(i Invalidator) Option {
	return func(e *Engine) { e.invalidator = i }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		notifier:    notify.LogNotifier{},
		invalidator: nopInvalidator{},
		recorder:    nopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateTenant(context.Context, uuid.UUID) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}

// Authorize checks that tc is resolved, that the actor holds one of roles
// (any role when none are given), and that the tenant's MFA policy for that
// role is satisfied.
func Authorize(tc *tenancy.Context, roles ...string) error {
	if !tc.Valid() {
		return ErrUnauthorized
	}
	if len(roles) > 0 && !slices.Contains(roles, tc.Actor().Role) {
		return ErrForbidden
	}
	if !tc.MFAOK() {
		return ErrMFARequired
	}
	return nil
}

func (e *Engine) span(ctx context.Context, op string, tc *tenancy.Context) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if tc.Valid() {
		attrs = append(attrs,
			attribute.String("tenant.partition", tc.Partition()),
			attribute.String("actor.role", tc.Actor().Role))
	}
	return telemetry.StartSpan(ctx, "workflow."+op, attrs...)
}

// appendAudit writes the audit entry for a transition inside tx. Any failure
// is reported as ErrInternal and rolls the transition back with it.
func (e *Engine) appendAudit(ctx context.Context, tx store.Tx, tc *tenancy.Context, action, targetType string, targetID uuid.UUID, meta map[string]any) error {
	actor := tc.Actor()
	entry := &models.AuditEntry{
		ID:          uuid.New(),
		TenantID:    tc.TenantID(),
		Action:      action,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    meta,
		CreatedAt:   e.now(),
	}
	if actor.APIKey {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["via_api_key"] = true
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// afterCommit runs the side effects of a committed transition. Failures are
// logged and swallowed.
func (e *Engine) afterCommit(ctx context.Context, tc *tenancy.Context, entity, action string, msgs ...notify.Message) {
	e.recorder.RecordTransition(entity, action)

	if err := e.invalidator.InvalidateTenant(ctx, tc.TenantID()); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed",
			"tenant", tc.Partition(), "entity", entity, "action", action, "error", err)
	}

	tenant := tc.Tenant()
	for _, msg := range msgs {
		msg.TenantID = tenant.ID
		msg.TenantSlug = tenant.Slug
		msg.SentAt = e.now()
		e.notifier.Notify(ctx, msg)
	}
}

// resolveDriver loads an active driver of the tenant or returns a
// ValidationError naming field.
func (e *Engine) resolveDriver(ctx context.Context, tc *tenancy.Context, field string, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, invalid(field, "is required")
	}
	u, err := e.store.GetUser(ctx, tc.TenantID(), id)
	if err != nil {
		if isNotFound(err) {
			return nil, invalid(field, "driver not found")
		}
		return nil, fmt.Errorf("load driver: %w", err)
	}
	if !u.IsDriver() {
		return nil, invalid(field, "user is not a driver")
	}
	if !u.Active {
		return nil, invalid(field, "driver is inactive")
	}
	return u, nil
}

// subjectDriver applies the self-service rule: drivers act only for
// themselves, admins must name the driver.
func subjectDriver(tc *tenancy.Context, requested uuid.UUID) (uuid.UUID, error) {
	if !tc.IsDriver() {
		return requested, nil
	}
	self := tc.Actor().UserID
	if requested != uuid.Nil && requested != self {
		return uuid.Nil, fmt.Errorf("%w: drivers may only act for themselves", ErrForbidden)
	}
	return self, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
