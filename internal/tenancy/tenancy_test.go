package tenancy_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store/storetest"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*storetest.MemStore, *models.Tenant, *models.User) {
	t.Helper()
	st := storetest.New()
	tenant := st.AddTenant("acme", models.Policy{RequireMFAUsers: true})
	driver := st.AddUser(models.User{TenantID: tenant.ID, Role: models.RoleDriver, Name: "d1", Email: "d1@acme.test", Active: true})
	return st, tenant, driver
}

func TestResolve_UserPrincipal(t *testing.T) {
	st, tenant, driver := setup(t)
	r := tenancy.NewResolver(st)

	tc, err := r.Resolve(context.Background(), tenancy.Principal{
		Subject: driver.ID, Role: models.RoleDriver, TenantSlug: "acme", MFASatisfied: false,
	})
	require.NoError(t, err)
	assert.True(t, tc.Valid())
	assert.Equal(t, tenant.ID, tc.TenantID())
	assert.Equal(t, "tenant_acme", tc.Partition())
	assert.True(t, tc.IsDriver())
	assert.True(t, tc.Policy().RequireMFAUsers)
	assert.False(t, tc.MFAOK())
}

func TestResolve_FailsClosed(t *testing.T) {
	st, tenant, driver := setup(t)
	other := st.AddTenant("globex", models.Policy{})
	inactive := st.AddUser(models.User{TenantID: tenant.ID, Role: models.RoleDriver, Name: "gone", Email: "gone@acme.test"})
	r := tenancy.NewResolver(st)

	tests := []struct {
		name string
		p    tenancy.Principal
	}{
		{"missing slug", tenancy.Principal{Subject: driver.ID, Role: models.RoleDriver}},
		{"unknown slug", tenancy.Principal{Subject: driver.ID, Role: models.RoleDriver, TenantSlug: "nope"}},
		{"user of another tenant", tenancy.Principal{Subject: driver.ID, Role: models.RoleDriver, TenantSlug: other.Slug}},
		{"unknown user", tenancy.Principal{Subject: uuid.New(), Role: models.RoleDriver, TenantSlug: "acme"}},
		{"inactive user", tenancy.Principal{Subject: inactive.ID, Role: models.RoleDriver, TenantSlug: "acme"}},
		{"role mismatch", tenancy.Principal{Subject: driver.ID, Role: models.RoleAdmin, TenantSlug: "acme"}},
		{"unknown role", tenancy.Principal{Subject: driver.ID, Role: "owner", TenantSlug: "acme"}},
		{"nil subject", tenancy.Principal{Role: models.RoleDriver, TenantSlug: "acme"}},
		{"tenant id without api key", tenancy.Principal{Subject: driver.ID, Role: models.RoleDriver, TenantID: tenant.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := r.Resolve(context.Background(), tt.p)
			assert.ErrorIs(t, err, tenancy.ErrUnauthorized)
			assert.Nil(t, tc)
		})
	}
}

func TestResolve_InactiveTenant(t *testing.T) {
	st, tenant, driver := setup(t)
	st.SetTenantActive(tenant.ID, false)

	_, err := tenancy.NewResolver(st).Resolve(context.Background(), tenancy.Principal{
		Subject: driver.ID, Role: models.RoleDriver, TenantSlug: "acme",
	})
	assert.ErrorIs(t, err, tenancy.ErrUnauthorized)
}

func TestResolve_APIKeyPrincipal(t *testing.T) {
	st, tenant, _ := setup(t)

	tc, err := tenancy.NewResolver(st).Resolve(context.Background(), tenancy.Principal{
		Subject: uuid.New(), Role: models.RoleAdmin, TenantID: tenant.ID, APIKey: true,
	})
	require.NoError(t, err)
	assert.True(t, tc.IsAdmin())
	assert.True(t, tc.Actor().APIKey)
	assert.True(t, tc.MFAOK())
}

func TestZeroContextIsInvalid(t *testing.T) {
	var nilCtx *tenancy.Context
	assert.False(t, nilCtx.Valid())
	assert.False(t, (&tenancy.Context{}).Valid())
}

func TestContextRoundtrip(t *testing.T) {
	st, _, driver := setup(t)
	tc, err := tenancy.NewResolver(st).Resolve(context.Background(), tenancy.Principal{
		Subject: driver.ID, Role: models.RoleDriver, TenantSlug: "acme",
	})
	require.NoError(t, err)

	ctx := tenancy.NewContext(context.Background(), tc)
	assert.Same(t, tc, tenancy.FromContext(ctx))
	assert.Nil(t, tenancy.FromContext(context.Background()))
}
