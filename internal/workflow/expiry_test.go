package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) submitLicense(t *testing.T) *models.ExpiryUpdateRequest {
	t.Helper()
	doc := f.st.AddDocument(models.Document{TenantID: f.tenant.ID, OwnerID: f.driver.ID, Filename: "licence.pdf", SizeBytes: 10})
	req, err := f.eng.SubmitExpiryRequest(context.Background(), f.as(t, f.driver), workflow.SubmitExpiryInput{
		Requested:             models.ExpiryDates{LicenseExpiry: ptr(date(2030, 1, 31))},
		SupportingDocumentIDs: []uuid.UUID{doc.ID},
	})
	require.NoError(t, err)
	return req
}

func TestSubmitExpiryRequest_CreatesPending(t *testing.T) {
	f := newFixture(t, models.Policy{})
	req := f.submitLicense(t)

	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, f.driver.ID, req.DriverID)
	assert.Len(t, req.SupportingDocumentIDs, 1)
	assert.Equal(t, fixedNow, req.SubmittedAt)

	entries := f.st.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, workflow.ActionExpirySubmitted, entries[0].Action)
	assert.Equal(t, req.ID, entries[0].TargetID)
	assert.NotContains(t, entries[0].Metadata, "missing_documents")
	assert.Equal(t, []string{notify.KindExpiryRequestSubmitted}, f.notifier.kinds())
}

func TestSubmitExpiryRequest_WithoutDocumentsIsFlagged(t *testing.T) {
	f := newFixture(t, models.Policy{})

	req, err := f.eng.SubmitExpiryRequest(context.Background(), f.as(t, f.driver), workflow.SubmitExpiryInput{
		Requested: models.ExpiryDates{PrdpExpiry: ptr(date(2029, 6, 30))},
	})
	require.NoError(t, err)
	assert.Empty(t, req.SupportingDocumentIDs)

	entries := f.st.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Metadata["missing_documents"])
}

func TestSubmitExpiryRequest_AdminOnBehalfOfDriver(t *testing.T) {
	f := newFixture(t, models.Policy{})

	req, err := f.eng.SubmitExpiryRequest(context.Background(), f.as(t, f.admin), workflow.SubmitExpiryInput{
		DriverID:  f.driver.ID,
		Requested: models.ExpiryDates{MedicalCertificateExpiry: ptr(date(2027, 3, 1))},
	})
	require.NoError(t, err)
	assert.Equal(t, f.driver.ID, req.DriverID)
	assert.Equal(t, models.RoleAdmin, f.st.AuditEntries()[0].ActorRole)
}

func TestSubmitExpiryRequest_Rejections(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	other := f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Other", Email: "o@acme.test", Active: true})
	inactive := f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Gone", Email: "g@acme.test"})
	othersDoc := f.st.AddDocument(models.Document{TenantID: f.tenant.ID, OwnerID: other.ID, Filename: "x.pdf"})
	dates := models.ExpiryDates{LicenseExpiry: ptr(date(2030, 1, 1))}

	tests := []struct {
		name   string
		asUser *models.User
		in     workflow.SubmitExpiryInput
		want   error
	}{
		{"no dates", f.driver, workflow.SubmitExpiryInput{}, workflow.ErrValidation},
		{"document of another driver", f.driver, workflow.SubmitExpiryInput{Requested: dates, SupportingDocumentIDs: []uuid.UUID{othersDoc.ID}}, workflow.ErrValidation},
		{"unknown document", f.driver, workflow.SubmitExpiryInput{Requested: dates, SupportingDocumentIDs: []uuid.UUID{uuid.New()}}, workflow.ErrValidation},
		{"driver for someone else", f.driver, workflow.SubmitExpiryInput{DriverID: other.ID, Requested: dates}, workflow.ErrForbidden},
		{"admin without driver", f.admin, workflow.SubmitExpiryInput{Requested: dates}, workflow.ErrValidation},
		{"admin for inactive driver", f.admin, workflow.SubmitExpiryInput{DriverID: inactive.ID, Requested: dates}, workflow.ErrValidation},
		{"admin for an admin", f.admin, workflow.SubmitExpiryInput{DriverID: f.admin.ID, Requested: dates}, workflow.ErrValidation},
		{"admin for unknown user", f.admin, workflow.SubmitExpiryInput{DriverID: uuid.New(), Requested: dates}, workflow.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.SubmitExpiryRequest(ctx, f.as(t, tt.asUser), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.st.AuditEntries())
}

func TestSubmitExpiryRequest_ValidationErrorNamesField(t *testing.T) {
	f := newFixture(t, models.Policy{})

	_, err := f.eng.SubmitExpiryRequest(context.Background(), f.as(t, f.driver), workflow.SubmitExpiryInput{})
	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "requested", verr.Field)
}

func TestApproveExpiryRequest_CopiesOnlyRequestedDates(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)

	approved, err := f.eng.ApproveExpiryRequest(ctx, f.as(t, f.admin), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	assert.Equal(t, f.admin.ID, *approved.ReviewedBy)
	assert.Equal(t, fixedNow, *approved.ReviewedAt)

	driver, err := f.st.GetUser(ctx, f.tenant.ID, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2030, 1, 31), *driver.LicenseExpiry)
	assert.Equal(t, date(2025, 2, 28), *driver.PrdpExpiry, "unrequested dates stay untouched")
	assert.Nil(t, driver.MedicalCertificateExpiry)

	entries := f.st.AuditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, workflow.ActionExpiryApproved, last.Action)
	assert.Equal(t, []string{models.FieldLicenseExpiry}, last.Metadata["changed_fields"])
	assert.Equal(t, 1, f.rec.get("expiry_request.approved"))
}

func TestApproveExpiryRequest_RetryIsAlreadyReviewed(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)
	admin := f.as(t, f.admin)

	_, err := f.eng.ApproveExpiryRequest(ctx, admin, req.ID)
	require.NoError(t, err)
	_, err = f.eng.ApproveExpiryRequest(ctx, admin, req.ID)
	assert.ErrorIs(t, err, workflow.ErrAlreadyReviewed)

	assert.Equal(t, []string{workflow.ActionExpirySubmitted, workflow.ActionExpiryApproved}, f.auditActions())
}

func TestRejectExpiryRequest_LeavesProfileAndBlocksApproval(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)
	admin := f.as(t, f.admin)

	rejected, err := f.eng.RejectExpiryRequest(ctx, admin, req.ID, ptr("  blurry scan  "))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "blurry scan", *rejected.RejectionReason)

	_, err = f.eng.ApproveExpiryRequest(ctx, admin, req.ID)
	assert.ErrorIs(t, err, workflow.ErrAlreadyReviewed)

	driver, err := f.st.GetUser(ctx, f.tenant.ID, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 31), *driver.LicenseExpiry)

	kinds := f.notifier.kinds()
	assert.Equal(t, notify.KindExpiryRequestReviewed, kinds[len(kinds)-1])
}

func TestRejectExpiryRequest_BlankReasonStoredAsNil(t *testing.T) {
	f := newFixture(t, models.Policy{})
	req := f.submitLicense(t)

	rejected, err := f.eng.RejectExpiryRequest(context.Background(), f.as(t, f.admin), req.ID, ptr("   "))
	require.NoError(t, err)
	assert.Nil(t, rejected.RejectionReason)
}

func TestReviewExpiryRequest_ConcurrentReviewersExactlyOneWins(t *testing.T) {
	f := newFixture(t, models.Policy{})
	req := f.submitLicense(t)
	admin := f.as(t, f.admin)

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := range reviewers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.eng.ApproveExpiryRequest(context.Background(), admin, req.ID)
			} else {
				_, err = f.eng.RejectExpiryRequest(context.Background(), admin, req.ID, nil)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, workflow.ErrAlreadyReviewed):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, reviewers-1, conflicts)
	assert.Len(t, f.st.AuditEntries(), 2)
}

func TestApproveExpiryRequest_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)
	f.st.AuditErr = errors.New("disk full")

	_, err := f.eng.ApproveExpiryRequest(ctx, f.as(t, f.admin), req.ID)
	assert.ErrorIs(t, err, workflow.ErrInternal)

	got, err := f.st.GetExpiryRequest(ctx, f.tenant.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, got.Status)
	driver, err := f.st.GetUser(ctx, f.tenant.ID, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 1, 31), *driver.LicenseExpiry)
	assert.Equal(t, 0, f.rec.get("expiry_request.approved"))
}

func TestExpiryRequest_TenantIsolation(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)

	_, otherAdmin, _, _ := seedTenant(f.st, "globex", models.Policy{})
	globex := resolve(t, f.st, "globex", otherAdmin, true)

	_, err := f.eng.GetExpiryRequest(ctx, globex, req.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = f.eng.ApproveExpiryRequest(ctx, globex, req.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	list, total, err := f.eng.ListExpiryRequests(ctx, globex, workflow.ListExpiryRequestsInput{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	got, err := f.st.GetExpiryRequest(ctx, f.tenant.ID, req.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
}

func TestExpiryRequest_RoleRules(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	req := f.submitLicense(t)
	driver := f.as(t, f.driver)

	_, err := f.eng.ApproveExpiryRequest(ctx, driver, req.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	_, _, err = f.eng.ListExpiryRequests(ctx, driver, workflow.ListExpiryRequestsInput{})
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	own, err := f.eng.GetExpiryRequest(ctx, driver, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, own.ID)

	other := f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Other", Email: "o@acme.test", Active: true})
	_, err = f.eng.GetExpiryRequest(ctx, f.as(t, other), req.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestListExpiryRequests_StatusFilter(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	admin := f.as(t, f.admin)
	first := f.submitLicense(t)
	f.submitLicense(t)
	_, err := f.eng.ApproveExpiryRequest(ctx, admin, first.ID)
	require.NoError(t, err)

	pending, total, err := f.eng.ListExpiryRequests(ctx, admin, workflow.ListExpiryRequestsInput{Status: models.RequestStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, pending, 1)

	_, total, err = f.eng.ListExpiryRequests(ctx, admin, workflow.ListExpiryRequestsInput{Page: store.Page{Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = f.eng.ListExpiryRequests(ctx, admin, workflow.ListExpiryRequestsInput{Status: "archived"})
	assert.ErrorIs(t, err, workflow.ErrValidation)
}
