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

type ExpiryService interface {
	SubmitExpiryRequest(ctx context.Context, tc *tenancy.Context, in workflow.SubmitExpiryInput) (*models.ExpiryUpdateRequest, error)
	ApproveExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.ExpiryUpdateRequest, error)
	RejectExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID, reason *string) (*models.ExpiryUpdateRequest, error)
	GetExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.ExpiryUpdateRequest, error)
	ListExpiryRequests(ctx context.Context, tc *tenancy.Context, in workflow.ListExpiryRequestsInput) ([]*models.ExpiryUpdateRequest, int, error)
}

// Expiry serves /tenant/drivers/expiry-update-requests.
type Expiry struct {
	svc ExpiryService
}

func NewExpiry(svc ExpiryService) *Expiry {
	return &Expiry{svc: svc}
}

type submitExpiryRequest struct {
	DriverID                 *uuid.UUID  `json:"driver_id"`
	LicenseExpiry            *string     `json:"license_expiry"`
	PrdpExpiry               *string     `json:"prdp_expiry"`
	MedicalCertificateExpiry *string     `json:"medical_certificate_expiry"`
	SupportingDocumentIDs    []uuid.UUID `json:"supporting_document_ids"`
}

func (req submitExpiryRequest) toInput() (workflow.SubmitExpiryInput, error) {
	var (
		in  workflow.SubmitExpiryInput
		err error
	)
	if req.DriverID != nil {
		in.DriverID = *req.DriverID
	}
	if in.Requested.LicenseExpiry, err = optionalDate(models.FieldLicenseExpiry, req.LicenseExpiry); err != nil {
		return in, err
	}
	if in.Requested.PrdpExpiry, err = optionalDate(models.FieldPrdpExpiry, req.PrdpExpiry); err != nil {
		return in, err
	}
	if in.Requested.MedicalCertificateExpiry, err = optionalDate(models.FieldMedicalCertificateExpiry, req.MedicalCertificateExpiry); err != nil {
		return in, err
	}
	in.SupportingDocumentIDs = req.SupportingDocumentIDs
	return in, nil
}

func (h *Expiry) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitExpiryRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := body.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.svc.SubmitExpiryRequest(r.Context(), tenancy.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, req)
}

func (h *Expiry) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.svc.ApproveExpiryRequest(r.Context(), tenancy.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, req)
}

type rejectRequest struct {
	Reason *string `json:"reason"`
}

func (h *Expiry) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body rejectRequest
	if err := decodeJSON(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.svc.RejectExpiryRequest(r.Context(), tenancy.FromContext(r.Context()), id, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, req)
}

func (h *Expiry) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := h.svc.GetExpiryRequest(r.Context(), tenancy.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, req)
}

func (h *Expiry) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	driverID, err := queryUUID(r, "driver_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, total, err := h.svc.ListExpiryRequests(r.Context(), tenancy.FromContext(r.Context()), workflow.ListExpiryRequestsInput{
		Status:   r.URL.Query().Get("status"),
		DriverID: driverID,
		Page:     page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, reqs, response.Meta(page.Page, page.Limit, total))
}
