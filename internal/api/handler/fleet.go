package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/api/response"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

type FleetService interface {
	CreateVehicle(ctx context.Context, tc *tenancy.Context, in workflow.CreateVehicleInput) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, tc *tenancy.Context, activeOnly bool, page store.Page) ([]*models.Vehicle, int, error)
	RegisterDocument(ctx context.Context, tc *tenancy.Context, in workflow.RegisterDocumentInput) (*models.Document, error)
}

// Fleet serves /tenant/vehicles and /tenant/documents.
type Fleet struct {
	svc FleetService
}

func NewFleet(svc FleetService) *Fleet {
	return &Fleet{svc: svc}
}

type createVehicleRequest struct {
	Registration string `json:"registration"`
	Make         string `json:"make"`
	Model        string `json:"model"`
}

func (h *Fleet) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var body createVehicleRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.svc.CreateVehicle(r.Context(), tenancy.FromContext(r.Context()), workflow.CreateVehicleInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, v)
}

func (h *Fleet) ListVehicles(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	vehicles, total, err := h.svc.ListVehicles(r.Context(), tenancy.FromContext(r.Context()),
		activeOnly != nil && *activeOnly, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, vehicles, response.Meta(page.Page, page.Limit, total))
}

type registerDocumentRequest struct {
	OwnerID     *uuid.UUID `json:"owner_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	StorageKey  string     `json:"storage_key"`
}

func (h *Fleet) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var body registerDocumentRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	in := workflow.RegisterDocumentInput{
		Filename:    body.Filename,
		ContentType: body.ContentType,
		SizeBytes:   body.SizeBytes,
		StorageKey:  body.StorageKey,
	}
	if body.OwnerID != nil {
		in.OwnerID = *body.OwnerID
	}
	doc, err := h.svc.RegisterDocument(r.Context(), tenancy.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, doc)
}
