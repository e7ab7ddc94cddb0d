package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

type CreateAPIKeyInput struct {
	Name   string
	Scopes []string
}

// NewAPIKey is returned once at creation. Key is the raw credential and is
// not recoverable afterwards.
type NewAPIKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// CreateAPIKey issues a tenant integration key. Scopes default to read.
func (e *Engine) CreateAPIKey(ctx context.Context, tc *tenancy.Context, in CreateAPIKeyInput) (*NewAPIKey, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if len(name) > 100 {
		return nil, invalid("name", "must be at most 100 characters")
	}
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = []string{models.ScopeRead}
	}
	for _, s := range scopes {
		if !models.ValidScope(s) {
			return nil, invalid("scopes", "unknown scope %q", s)
		}
	}
	slices.Sort(scopes)
	scopes = slices.Compact(scopes)

	raw, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash api key: %v", ErrInternal, err)
	}

	now := e.now()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tc.TenantID(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:models.APIKeyLookupLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, invalid("name", "already in use")
		}
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &NewAPIKey{APIKey: key, Key: raw}, nil
}

func generateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return models.APIKeyPrefix + hex.EncodeToString(b), nil
}

func (e *Engine) ListAPIKeys(ctx context.Context, tc *tenancy.Context) ([]*models.APIKey, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	return e.store.ListAPIKeys(ctx, tc.TenantID())
}

// RevokeAPIKey soft-deletes a key. A key may revoke itself.
func (e *Engine) RevokeAPIKey(ctx context.Context, tc *tenancy.Context, id uuid.UUID) error {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return err
	}
	return e.store.RevokeAPIKey(ctx, id, tc.TenantID())
}
