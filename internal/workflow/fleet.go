package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

const (
	targetVehicle  = "vehicle"
	targetDocument = "document"

	ActionVehicleCreated     = "vehicle.created"
	ActionDocumentRegistered = "document.registered"
)

type CreateVehicleInput struct {
	Registration string
	Make         string
	Model        string
}

// CreateVehicle adds an active vehicle. Registrations are unique per tenant,
// compared case-insensitively.
func (e *Engine) CreateVehicle(ctx context.Context, tc *tenancy.Context, in CreateVehicleInput) (v *models.Vehicle, err error) {
	ctx, span := e.span(ctx, "CreateVehicle", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	reg := strings.ToUpper(strings.Join(strings.Fields(in.Registration), " "))
	if reg == "" {
		return nil, invalid("registration", "is required")
	}

	now := e.now()
	v = &models.Vehicle{
		ID:           uuid.New(),
		TenantID:     tc.TenantID(),
		Registration: reg,
		Make:         strings.TrimSpace(in.Make),
		Model:        strings.TrimSpace(in.Model),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateVehicle(ctx, v); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return invalid("registration", "already registered in this tenant")
			}
			return fmt.Errorf("create vehicle: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionVehicleCreated, targetVehicle, v.ID,
			map[string]any{"registration": v.Registration})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, tc, "vehicle", "created")
	return v, nil
}

// ListVehicles is open to drivers, who only see active vehicles.
func (e *Engine) ListVehicles(ctx context.Context, tc *tenancy.Context, activeOnly bool, page store.Page) ([]*models.Vehicle, int, error) {
	if err := Authorize(tc); err != nil {
		return nil, 0, err
	}
	return e.store.ListVehicles(ctx, store.VehicleFilter{
		TenantID:   tc.TenantID(),
		ActiveOnly: activeOnly || tc.IsDriver(),
		Page:       page.Normalize(),
	})
}

// RegisterDocumentInput is document metadata. The bytes are already stored
// under StorageKey.
type RegisterDocumentInput struct {
	OwnerID     uuid.UUID
	Filename    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
}

// RegisterDocument records document metadata against max_storage_mb.
func (e *Engine) RegisterDocument(ctx context.Context, tc *tenancy.Context, in RegisterDocumentInput) (doc *models.Document, err error) {
	ctx, span := e.span(ctx, "RegisterDocument", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc); err != nil {
		return nil, err
	}
	ownerID, err := subjectDriver(tc, in.OwnerID)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(in.Filename) == "":
		return nil, invalid("filename", "is required")
	case strings.TrimSpace(in.ContentType) == "":
		return nil, invalid("content_type", "is required")
	case in.SizeBytes < 0:
		return nil, invalid("size_bytes", "must not be negative")
	case in.SizeBytes > models.MaxDocumentBytes:
		return nil, invalid("size_bytes", "must be at most %d", models.MaxDocumentBytes)
	case strings.TrimSpace(in.StorageKey) == "":
		return nil, invalid("storage_key", "is required")
	}
	owner, err := e.resolveDriver(ctx, tc, "owner_id", ownerID)
	if err != nil {
		return nil, err
	}

	doc = &models.Document{
		ID:          uuid.New(),
		TenantID:    tc.TenantID(),
		OwnerID:     owner.ID,
		Filename:    strings.TrimSpace(in.Filename),
		ContentType: strings.TrimSpace(in.ContentType),
		SizeBytes:   in.SizeBytes,
		StorageKey:  strings.TrimSpace(in.StorageKey),
		CreatedAt:   e.now(),
	}
	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		policy, err := tx.LockPolicy(ctx, tc.TenantID())
		if err != nil {
			return fmt.Errorf("lock policy: %w", err)
		}
		if limit := policy.MaxStorageBytes(); limit >= 0 {
			used, err := tx.StorageUsedBytes(ctx, tc.TenantID())
			if err != nil {
				return fmt.Errorf("storage used: %w", err)
			}
			if doc.SizeBytes > limit-used {
				return &QuotaError{Resource: "storage_bytes", Limit: limit, Current: used}
			}
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionDocumentRegistered, targetDocument, doc.ID, map[string]any{
			"owner_id":   owner.ID.String(),
			"size_bytes": doc.SizeBytes,
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, tc, "document", "registered")
	return doc, nil
}
