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

type DriverService interface {
	CreateDriver(ctx context.Context, tc *tenancy.Context, in workflow.CreateDriverInput) (*models.User, error)
	SetDriverActive(ctx context.Context, tc *tenancy.Context, id uuid.UUID, active bool) (*models.User, error)
	GetDriver(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.User, error)
	ListDrivers(ctx context.Context, tc *tenancy.Context, in workflow.ListDriversInput) ([]*models.User, int, error)
	SendMFAReminders(ctx context.Context, tc *tenancy.Context) (int, error)
}

// Drivers serves /tenant/drivers.
type Drivers struct {
	svc DriverService
}

func NewDrivers(svc DriverService) *Drivers {
	return &Drivers{svc: svc}
}

type createDriverRequest struct {
	Name                     string  `json:"name"`
	Email                    string  `json:"email"`
	MFAEnabled               bool    `json:"mfa_enabled"`
	LicenseNumber            *string `json:"license_number"`
	LicenseExpiry            *string `json:"license_expiry"`
	PrdpNumber               *string `json:"prdp_number"`
	PrdpExpiry               *string `json:"prdp_expiry"`
	MedicalCertificateExpiry *string `json:"medical_certificate_expiry"`
	BankName                 *string `json:"bank_name"`
	BankAccountNumber        *string `json:"bank_account_number"`
	BankBranchCode           *string `json:"bank_branch_code"`
}

func (h *Drivers) Create(w http.ResponseWriter, r *http.Request) {
	var body createDriverRequest
	if err := decodeJSON(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	in := workflow.CreateDriverInput{
		Name:              body.Name,
		Email:             body.Email,
		MFAEnabled:        body.MFAEnabled,
		LicenseNumber:     body.LicenseNumber,
		PrdpNumber:        body.PrdpNumber,
		BankName:          body.BankName,
		BankAccountNumber: body.BankAccountNumber,
		BankBranchCode:    body.BankBranchCode,
	}
	var err error
	if in.Expiry.LicenseExpiry, err = optionalDate(models.FieldLicenseExpiry, body.LicenseExpiry); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Expiry.PrdpExpiry, err = optionalDate(models.FieldPrdpExpiry, body.PrdpExpiry); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Expiry.MedicalCertificateExpiry, err = optionalDate(models.FieldMedicalCertificateExpiry, body.MedicalCertificateExpiry); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.svc.CreateDriver(r.Context(), tenancy.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, u)
}

func (h *Drivers) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Drivers) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Drivers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.SetDriverActive(r.Context(), tenancy.FromContext(r.Context()), id, active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, u)
}

func (h *Drivers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.svc.GetDriver(r.Context(), tenancy.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, u)
}

func (h *Drivers) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, total, err := h.svc.ListDrivers(r.Context(), tenancy.FromContext(r.Context()), workflow.ListDriversInput{Active: active, Page: page})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, users, response.Meta(page.Page, page.Limit, total))
}

// SendMFAReminders responds 202: delivery is asynchronous.
func (h *Drivers) SendMFAReminders(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SendMFAReminders(r.Context(), tenancy.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Accepted(w, map[string]int{"notified": n})
}
