package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDriver(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()

	u, err := f.eng.CreateDriver(ctx, f.as(t, f.admin), workflow.CreateDriverInput{
		Name:   "  Thabo M  ",
		Email:  "Thabo@Acme.test",
		Expiry: models.ExpiryDates{LicenseExpiry: ptr(date(2028, 4, 30))},
	})
	require.NoError(t, err)
	assert.Equal(t, "Thabo M", u.Name)
	assert.Equal(t, "thabo@acme.test", u.Email)
	assert.True(t, u.Active)
	assert.True(t, u.IsDriver())
	assert.Equal(t, date(2028, 4, 30), *u.LicenseExpiry)
	assert.Equal(t, []string{workflow.ActionDriverCreated}, f.auditActions())

	_, err = f.eng.CreateDriver(ctx, f.as(t, f.admin), workflow.CreateDriverInput{Name: "Dup", Email: "thabo@acme.test"})
	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Field)
}

func TestCreateDriver_Validation(t *testing.T) {
	f := newFixture(t, models.Policy{})
	admin := f.as(t, f.admin)

	for _, in := range []workflow.CreateDriverInput{
		{Email: "a@acme.test"},
		{Name: "No Email"},
		{Name: "Bad", Email: "not-an-email"},
		{Name: "Display", Email: "Bob <bob@acme.test>"},
	} {
		_, err := f.eng.CreateDriver(context.Background(), admin, in)
		assert.ErrorIs(t, err, workflow.ErrValidation, "input %+v", in)
	}
}

func TestCreateDriver_Quota(t *testing.T) {
	// The fixture already has one active driver.
	f := newFixture(t, models.Policy{MaxDrivers: ptr(1)})

	_, err := f.eng.CreateDriver(context.Background(), f.as(t, f.admin), workflow.CreateDriverInput{Name: "Extra", Email: "x@acme.test"})
	assert.ErrorIs(t, err, workflow.ErrQuotaExceeded)

	var qerr *workflow.QuotaError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "drivers", qerr.Resource)
	assert.Equal(t, int64(1), qerr.Limit)
	assert.Equal(t, int64(1), qerr.Current)
	assert.Empty(t, f.st.AuditEntries())
}

func TestSetDriverActive(t *testing.T) {
	f := newFixture(t, models.Policy{MaxDrivers: ptr(1)})
	ctx := context.Background()
	admin := f.as(t, f.admin)

	u, err := f.eng.SetDriverActive(ctx, admin, f.driver.ID, false)
	require.NoError(t, err)
	assert.False(t, u.Active)

	// Repeating the change is a no-op and is not audited.
	_, err = f.eng.SetDriverActive(ctx, admin, f.driver.ID, false)
	require.NoError(t, err)

	// The freed seat is taken, so reactivation would exceed the quota.
	_, err = f.eng.CreateDriver(ctx, admin, workflow.CreateDriverInput{Name: "New", Email: "new@acme.test"})
	require.NoError(t, err)
	_, err = f.eng.SetDriverActive(ctx, admin, f.driver.ID, true)
	assert.ErrorIs(t, err, workflow.ErrQuotaExceeded)

	assert.Equal(t, []string{workflow.ActionDriverDeactivated, workflow.ActionDriverCreated}, f.auditActions())
}

func TestSetDriverActive_NotADriver(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()

	_, err := f.eng.SetDriverActive(ctx, f.as(t, f.admin), f.admin.ID, false)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = f.eng.SetDriverActive(ctx, f.as(t, f.admin), uuid.New(), false)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestGetAndListDrivers(t *testing.T) {
	f := newFixture(t, models.Policy{})
	ctx := context.Background()
	f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Gone", Email: "g@acme.test"})

	all, total, err := f.eng.ListDrivers(ctx, f.as(t, f.admin), workflow.ListDriversInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	active := true
	_, total, err = f.eng.ListDrivers(ctx, f.as(t, f.admin), workflow.ListDriversInput{Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	self, err := f.eng.GetDriver(ctx, f.as(t, f.driver), f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, f.driver.ID, self.ID)

	_, err = f.eng.GetDriver(ctx, f.as(t, f.admin), f.admin.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, _, err = f.eng.ListDrivers(ctx, f.as(t, f.driver), workflow.ListDriversInput{})
	assert.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestSendMFAReminders(t *testing.T) {
	f := newFixture(t, models.Policy{RequireMFAUsers: true})
	ctx := context.Background()
	f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Enrolled", Email: "e@acme.test", Active: true, MFAEnabled: true})
	f.st.AddUser(models.User{TenantID: f.tenant.ID, Role: models.RoleDriver, Name: "Inactive", Email: "i@acme.test"})

	n, err := f.eng.SendMFAReminders(ctx, f.as(t, f.admin))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{notify.KindMFAReminder}, f.notifier.kinds())
	assert.Equal(t, f.driver.ID, *f.notifier.msgs[0].RecipientID)
	assert.Equal(t, "acme", f.notifier.msgs[0].TenantSlug)
	assert.Equal(t, []string{workflow.ActionMFARemindersSent}, f.auditActions())
}

func TestSendMFAReminders_PolicyOff(t *testing.T) {
	f := newFixture(t, models.Policy{})

	n, err := f.eng.SendMFAReminders(context.Background(), f.as(t, f.admin))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notifier.kinds())
}
