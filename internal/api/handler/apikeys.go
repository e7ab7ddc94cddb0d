package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type APIKeyService interface {
	CreateAPIKey(ctx context.Context, tc *tenancy.Context, in workflow.CreateAPIKeyInput) (*workflow.NewAPIKey, error)
	ListAPIKeys(ctx context.Context, tc *tenancy.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, tc *tenancy.Context, id uuid.UUID) error
}

// APIKeys serves /tenant/api-keys.
type APIKeys struct {
	svc APIKeyService
}

func NewAPIKeys(svc APIKeyService) *APIKeys {
	return &APIKeys{svc: svc}
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// Create returns the raw key. It is not retrievable afterwards.
func (h *APIKeys) Create(w http.ResponseWriter, r *http.Request) {
	var body createKeyRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := h.svc.CreateAPIKey(r.Context(), tenancy.FromContext(r.Context()), workflow.CreateAPIKeyInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, key)
}

func (h *APIKeys) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.ListAPIKeys(r.Context(), tenancy.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, keys, response.Meta(1, len(keys), len(keys)))
}

func (h *APIKeys) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.RevokeAPIKey(r.Context(), tenancy.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
