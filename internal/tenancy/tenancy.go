// Package tenancy resolves an authenticated principal to the tenant it may
// operate in. Every workflow call takes the resolved *Context; there is no
// other way to obtain one, so no data access can skip the resolver.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal is an authenticated caller before tenant resolution. User
// principals carry a tenant slug from their token; API key principals carry
// the tenant id the key was issued for.
type Principal struct {
	Subject      uuid.UUID
	Role         string
	TenantSlug   string
	TenantID     uuid.UUID
	MFASatisfied bool
	APIKey       bool
}

// Actor is the resolved caller recorded on audit entries.
type Actor struct {
	UserID       uuid.UUID
	Role         string
	MFASatisfied bool
	APIKey       bool
}

// Context scopes an operation to one active tenant. The zero value is
// unresolved and rejected by every engine operation.
type Context struct {
	tenant   models.Tenant
	policy   models.Policy
	actor    Actor
	resolved bool
}

func (c *Context) Valid() bool {
	return c != nil && c.resolved
}

func (c *Context) TenantID() uuid.UUID { return c.tenant.ID }
func (c *Context) Tenant() models.Tenant { return c.tenant }
func (c *Context) Policy() models.Policy { return c.policy }
func (c *Context) Actor() Actor { return c.actor }
func (c *Context) Partition() string { return c.tenant.Partition() }
func (c *Context) IsAdmin() bool { return c.actor.Role == models.RoleAdmin }
func (c *Context) IsDriver() bool { return c.actor.Role == models.RoleDriver }

// MFAOK reports whether the actor meets the tenant's MFA requirement for their role.
func (c *Context) MFAOK() bool {
	return c.actor.MFASatisfied || !c.policy.MFARequiredFor(c.actor.Role)
}

// Source is the read access the resolver needs.
type Source interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetPolicy(ctx context.Context, tenantID uuid.UUID) (*models.Policy, error)
	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error)
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve fails closed: any lookup miss, inactive tenant, or inactive or
// foreign user yields ErrUnauthorized. Only infrastructure failures are
// returned as other errors.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (*Context, error) {
	if p.Subject == uuid.Nil {
		return nil, ErrUnauthorized
	}
	if p.Role != models.RoleAdmin && p.Role != models.RoleDriver {
		return nil, ErrUnauthorized
	}

	var (
		tenant *models.Tenant
		err    error
	)
	switch {
	case p.TenantSlug != "":
		tenant, err = r.src.GetTenantBySlug(ctx, p.TenantSlug)
	case p.APIKey && p.TenantID != uuid.Nil:
		tenant, err = r.src.GetTenant(ctx, p.TenantID)
	default:
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, lookupErr("tenant", err)
	}
	if !tenant.Active {
		slog.Warn("rejected principal for inactive tenant", "tenant", tenant.Slug, "subject", p.Subject)
		return nil, ErrUnauthorized
	}

	if !p.APIKey {
		user, err := r.src.GetUser(ctx, tenant.ID, p.Subject)
		if err != nil {
			return nil, lookupErr("user", err)
		}
		if !user.Active || user.Role != p.Role {
			return nil, ErrUnauthorized
		}
	}

	policy, err := r.src.GetPolicy(ctx, tenant.ID)
	if err != nil {
		return nil, lookupErr("policy", err)
	}

	return &Context{
		tenant: *tenant,
		policy: *policy,
		actor: Actor{
			UserID:       p.Subject,
			Role:         p.Role,
			MFASatisfied: p.MFASatisfied || p.APIKey,
			APIKey:       p.APIKey,
		},
		resolved: true,
	}, nil
}

func lookupErr(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthorized
	}
	return fmt.Errorf("resolve %s: %w", what, err)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying tc.
func NewContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context stored by NewContext, or nil.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(ctxKey{}).(*Context)
	return tc
}
