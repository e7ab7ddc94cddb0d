package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

const (
	targetExpiryRequest = "expiry_update_request"

	ActionExpirySubmitted = "expiry_request.submitted"
	ActionExpiryApproved  = "expiry_request.approved"
	ActionExpiryRejected  = "expiry_request.rejected"

	maxReasonLen = 1000
)

// SubmitExpiryInput is a proposed change to a driver's expiry dates.
// Drivers may leave DriverID empty; admins submitting on a driver's behalf must set it.
type SubmitExpiryInput struct {
	DriverID              uuid.UUID
	Requested             models.ExpiryDates
	SupportingDocumentIDs []uuid.UUID
}

// SubmitExpiryRequest creates a pending request. Supporting documents must
// belong to the driver; an empty list is accepted and flagged in the audit entry.
func (e *Engine) SubmitExpiryRequest(ctx context.Context, tc *tenancy.Context, in SubmitExpiryInput) (req *models.ExpiryUpdateRequest, err error) {
	ctx, span := e.span(ctx, "SubmitExpiryRequest", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc); err != nil {
		return nil, err
	}
	driverID, err := subjectDriver(tc, in.DriverID)
	if err != nil {
		return nil, err
	}
	if in.Requested.IsEmpty() {
		return nil, invalid("requested", "at least one expiry date is required")
	}
	driver, err := e.resolveDriver(ctx, tc, "driver_id", driverID)
	if err != nil {
		return nil, err
	}
	docIDs, err := e.checkSupportingDocuments(ctx, tc, driver.ID, in.SupportingDocumentIDs)
	if err != nil {
		return nil, err
	}

	req = &models.ExpiryUpdateRequest{
		ID:                    uuid.New(),
		TenantID:              tc.TenantID(),
		DriverID:              driver.ID,
		Status:                models.RequestStatusPending,
		Requested:             in.Requested,
		SupportingDocumentIDs: docIDs,
		SubmittedAt:           e.now(),
	}
	meta := map[string]any{
		"driver_id":        driver.ID.String(),
		"requested_fields": in.Requested.Fields(),
		"document_count":   len(docIDs),
	}
	if len(docIDs) == 0 {
		meta["missing_documents"] = true
		slog.WarnContext(ctx, "expiry request submitted without supporting documents",
			"tenant", tc.Partition(), "driver", driver.ID, "request", req.ID)
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateExpiryRequest(ctx, req); err != nil {
			return fmt.Errorf("create expiry request: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionExpirySubmitted, targetExpiryRequest, req.ID, meta)
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, tc, "expiry_request", "submitted", notify.Message{
		Kind:     notify.KindExpiryRequestSubmitted,
		TargetID: req.ID,
		Data:     map[string]any{"driver_id": driver.ID.String(), "fields": in.Requested.Fields()},
	})
	return req, nil
}

// checkSupportingDocuments dedupes ids, keeping first-seen order, and
// verifies each names a document of the tenant owned by the driver.
func (e *Engine) checkSupportingDocuments(ctx context.Context, tc *tenancy.Context, driverID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, invalid("supporting_document_ids", "contains an empty id")
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return out, nil
	}

	docs, err := e.store.GetDocuments(ctx, tc.TenantID(), out)
	if err != nil {
		return nil, fmt.Errorf("load supporting documents: %w", err)
	}
	owned := make(map[uuid.UUID]bool, len(docs))
	for _, d := range docs {
		if d.OwnerID == driverID {
			owned[d.ID] = true
		}
	}
	for _, id := range out {
		if !owned[id] {
			return nil, invalid("supporting_document_ids", "document %s not found for driver", id)
		}
	}
	return out, nil
}

// ApproveExpiryRequest moves a pending request to approved and copies every
// requested date onto the driver's profile in the same transaction.
func (e *Engine) ApproveExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (req *models.ExpiryUpdateRequest, err error) {
	ctx, span := e.span(ctx, "ApproveExpiryRequest", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.TransitionExpiryRequest(ctx, e.review(tc, id, models.RequestStatusApproved, nil))
		if err != nil {
			return reviewErr(err, anyReviewed)
		}
		if _, err := tx.UpdateDriverExpiry(ctx, tc.TenantID(), req.DriverID, req.Requested); err != nil {
			return fmt.Errorf("apply expiry dates: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionExpiryApproved, targetExpiryRequest, req.ID, map[string]any{
			"driver_id":      req.DriverID.String(),
			"changed_fields": req.Requested.Fields(),
		})
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, tc, "expiry_request", "approved", notify.Message{
		Kind:        notify.KindExpiryRequestReviewed,
		RecipientID: &req.DriverID,
		TargetID:    req.ID,
		Data:        map[string]any{"status": req.Status},
	})
	return req, nil
}

// RejectExpiryRequest moves a pending request to rejected. The driver's
// profile is not touched.
func (e *Engine) RejectExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID, reason *string) (req *models.ExpiryUpdateRequest, err error) {
	ctx, span := e.span(ctx, "RejectExpiryRequest", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	reason, err = normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.TransitionExpiryRequest(ctx, e.review(tc, id, models.RequestStatusRejected, reason))
		if err != nil {
			return reviewErr(err, anyReviewed)
		}
		meta := map[string]any{"driver_id": req.DriverID.String()}
		if reason != nil {
			meta["reason"] = *reason
		}
		return e.appendAudit(ctx, tx, tc, ActionExpiryRejected, targetExpiryRequest, req.ID, meta)
	})
	if err != nil {
		return nil, err
	}

	data := map[string]any{"status": req.Status}
	if reason != nil {
		data["reason"] = *reason
	}
	e.afterCommit(ctx, tc, "expiry_request", "rejected", notify.Message{
		Kind:        notify.KindExpiryRequestReviewed,
		RecipientID: &req.DriverID,
		TargetID:    req.ID,
		Data:        data,
	})
	return req, nil
}

// GetExpiryRequest returns a request of the tenant. Drivers only see their own.
func (e *Engine) GetExpiryRequest(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.ExpiryUpdateRequest, error) {
	if err := Authorize(tc); err != nil {
		return nil, err
	}
	req, err := e.store.GetExpiryRequest(ctx, tc.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if tc.IsDriver() && req.DriverID != tc.Actor().UserID {
		return nil, ErrNotFound
	}
	return req, nil
}

type ListExpiryRequestsInput struct {
	Status   string
	DriverID *uuid.UUID
	store.Page
}

// ListExpiryRequests returns the tenant's requests, newest first.
func (e *Engine) ListExpiryRequests(ctx context.Context, tc *tenancy.Context, in ListExpiryRequestsInput) ([]*models.ExpiryUpdateRequest, int, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	if in.Status != "" && !models.ValidRequestStatus(in.Status) {
		return nil, 0, invalid("status", "must be one of pending, approved, rejected")
	}
	return e.store.ListExpiryRequests(ctx, store.ExpiryRequestFilter{
		TenantID: tc.TenantID(),
		Status:   in.Status,
		DriverID: in.DriverID,
		Page:     in.Page.Normalize(),
	})
}

func (e *Engine) review(tc *tenancy.Context, id uuid.UUID, to string, reason *string) store.ReviewTransition {
	return store.ReviewTransition{
		TenantID:   tc.TenantID(),
		ID:         id,
		To:         to,
		ReviewerID: tc.Actor().UserID,
		At:         e.now(),
		Reason:     reason,
	}
}

// Every non-pending request status is the result of a review.
func anyReviewed(string) bool { return true }

func normalizeReason(reason *string) (*string, error) {
	if reason == nil {
		return nil, nil
	}
	r := strings.TrimSpace(*reason)
	if r == "" {
		return nil, nil
	}
	if len(r) > maxReasonLen {
		return nil, invalid("reason", "must be at most %d characters", maxReasonLen)
	}
	return &r, nil
}
