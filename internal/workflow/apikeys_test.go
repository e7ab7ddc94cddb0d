package workflow_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateAPIKey(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	admin := f.as(t, f.admin)

	created, err := f.eng.CreateAPIKey(ctx, admin, workflow.CreateAPIKeyInput{
		Name: " payroll export ", Scopes: []string{models.ScopeWrite, models.ScopeRead, models.ScopeRead},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Key, models.APIKeyPrefix))
	assert.Equal(t, created.Key[:models.APIKeyLookupLen], created.KeyPrefix)
	assert.Equal(t, "payroll export", created.Name)
	assert.Equal(t, []string{models.ScopeRead, models.ScopeWrite}, created.Scopes)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.KeyHash), []byte(created.Key)))

	keys, err := f.eng.ListAPIKeys(ctx, admin)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, created.ID, keys[0].ID)
}

func TestCreateAPIKey_DefaultsToRead(t *testing.T) {
	f := newFixture(t, models.Policy{})

	created, err := f.eng.CreateAPIKey(context.Background(), f.as(t, f.admin), workflow.CreateAPIKeyInput{Name: "bi"})
	require.NoError(t, err)
	assert.Equal(t, []string{models.ScopeRead}, created.Scopes)
}

func TestCreateAPIKey_Validation(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	admin := f.as(t, f.admin)

	_, err := f.eng.CreateAPIKey(ctx, admin, workflow.CreateAPIKeyInput{Name: "  "})
	assert.ErrorIs(t, err, workflow.ErrValidation)
	_, err = f.eng.CreateAPIKey(ctx, admin, workflow.CreateAPIKeyInput{Name: "x", Scopes: []string{"admin"}})
	assert.ErrorIs(t, err, workflow.ErrValidation)
	_, err = f.eng.CreateAPIKey(ctx, f.as(t, f.driver), workflow.CreateAPIKeyInput{Name: "x"})
	assert.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestRevokeAPIKey(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	admin := f.as(t, f.admin)
	created, err := f.eng.CreateAPIKey(ctx, admin, workflow.CreateAPIKeyInput{Name: "bi"})
	require.NoError(t, err)

	require.NoError(t, f.eng.RevokeAPIKey(ctx, admin, created.ID))
	assert.ErrorIs(t, f.eng.RevokeAPIKey(ctx, admin, created.ID), workflow.ErrNotFound)
	assert.ErrorIs(t, f.eng.RevokeAPIKey(ctx, admin, uuid.New()), workflow.ErrNotFound)

	keys, err := f.eng.ListAPIKeys(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRevokeAPIKey_OtherTenant(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	created, err := f.eng.CreateAPIKey(ctx, f.as(t, f.admin), workflow.CreateAPIKeyInput{Name: "bi"})
	require.NoError(t, err)

	_, otherAdmin, _, _ := seedTenant(f.st, "globex", models.Policy{})
	tc := resolve(t, f.st, "globex", otherAdmin, true)
	assert.ErrorIs(t, f.eng.RevokeAPIKey(ctx, tc, created.ID), workflow.ErrNotFound)
}
