package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/pkg/models"
)

const (
	targetUser   = "user"
	targetTenant = "tenant"

	ActionDriverCreated     = "driver.created"
	ActionDriverActivated   = "driver.activated"
	ActionDriverDeactivated = "driver.deactivated"
	ActionMFARemindersSent  = "driver.mfa_reminders_sent"
)

type CreateDriverInput struct {
	Name              string
	Email             string
	MFAEnabled        bool
	LicenseNumber     *string
	PrdpNumber        *string
	Expiry            models.ExpiryDates
	BankName          *string
	BankAccountNumber *string
	BankBranchCode    *string
}

func (in *CreateDriverInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return invalid("name", "is required")
	}
	if in.Email == "" {
		return invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return invalid("email", "is not a valid address")
	}
	return nil
}

// CreateDriver adds an active driver, enforcing max_drivers under the
// tenant's policy row lock.
func (e *Engine) CreateDriver(ctx context.Context, tc *tenancy.Context, in CreateDriverInput) (u *models.User, err error) {
	ctx, span := e.span(ctx, "CreateDriver", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	now := e.now()
	u = &models.User{
		ID:                uuid.New(),
		TenantID:          tc.TenantID(),
		Role:              models.RoleDriver,
		Name:              in.Name,
		Email:             in.Email,
		Active:            true,
		MFAEnabled:        in.MFAEnabled,
		LicenseNumber:     in.LicenseNumber,
		PrdpNumber:        in.PrdpNumber,
		BankName:          in.BankName,
		BankAccountNumber: in.BankAccountNumber,
		BankBranchCode:    in.BankBranchCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	u.ApplyExpiry(in.Expiry)

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := checkDriverQuota(ctx, tx, tc.TenantID()); err != nil {
			return err
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return invalid("email", "already in use in this tenant")
			}
			return fmt.Errorf("create driver: %w", err)
		}
		return e.appendAudit(ctx, tx, tc, ActionDriverCreated, targetUser, u.ID, map[string]any{"email": u.Email})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, tc, "driver", "created")
	return u, nil
}

// checkDriverQuota must run inside the transaction that adds the driver.
func checkDriverQuota(ctx context.Context, tx store.Tx, tenantID uuid.UUID) error {
	policy, err := tx.LockPolicy(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("lock policy: %w", err)
	}
	if policy.MaxDrivers == nil {
		return nil
	}
	n, err := tx.CountActiveDrivers(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("count drivers: %w", err)
	}
	if n >= *policy.MaxDrivers {
		return &QuotaError{Resource: "drivers", Limit: int64(*policy.MaxDrivers), Current: int64(n)}
	}
	return nil
}

// SetDriverActive deactivates or reactivates a driver. Reactivation counts
// against max_drivers. Setting the current state again is a no-op.
func (e *Engine) SetDriverActive(ctx context.Context, tc *tenancy.Context, id uuid.UUID, active bool) (u *models.User, err error) {
	ctx, span := e.span(ctx, "SetDriverActive", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, err
	}

	changed := false
	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetUser(ctx, tc.TenantID(), id)
		if err != nil {
			return err
		}
		if !cur.IsDriver() {
			return ErrNotFound
		}
		if cur.Active == active {
			u = cur
			return nil
		}
		if active {
			if err := checkDriverQuota(ctx, tx, tc.TenantID()); err != nil {
				return err
			}
		}
		if u, err = tx.SetUserActive(ctx, tc.TenantID(), id, active); err != nil {
			return fmt.Errorf("set driver active: %w", err)
		}
		changed = true
		action := ActionDriverDeactivated
		if active {
			action = ActionDriverActivated
		}
		return e.appendAudit(ctx, tx, tc, action, targetUser, u.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		verb := "deactivated"
		if active {
			verb = "activated"
		}
		e.afterCommit(ctx, tc, "driver", verb)
	}
	return u, nil
}

// GetDriver returns a driver of the tenant. Drivers may read their own profile.
func (e *Engine) GetDriver(ctx context.Context, tc *tenancy.Context, id uuid.UUID) (*models.User, error) {
	if err := Authorize(tc); err != nil {
		return nil, err
	}
	if tc.IsDriver() && id != tc.Actor().UserID {
		return nil, ErrNotFound
	}
	u, err := e.store.GetUser(ctx, tc.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if !u.IsDriver() {
		return nil, ErrNotFound
	}
	return u, nil
}

type ListDriversInput struct {
	Active *bool
	store.Page
}

func (e *Engine) ListDrivers(ctx context.Context, tc *tenancy.Context, in ListDriversInput) ([]*models.User, int, error) {
	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return nil, 0, err
	}
	return e.store.ListUsers(ctx, store.UserFilter{
		TenantID: tc.TenantID(),
		Role:     models.RoleDriver,
		Active:   in.Active,
		Page:     in.Page.Normalize(),
	})
}

// SendMFAReminders notifies every active driver without MFA. It does nothing
// unless the tenant requires MFA for drivers, and returns the number notified.
func (e *Engine) SendMFAReminders(ctx context.Context, tc *tenancy.Context) (sent int, err error) {
	ctx, span := e.span(ctx, "SendMFAReminders", tc)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := Authorize(tc, models.RoleAdmin); err != nil {
		return 0, err
	}
	policy := tc.Policy()
	if !policy.RequireMFAUsers {
		return 0, nil
	}

	active := true
	var recipients []uuid.UUID
	page := store.Page{Page: 1, Limit: 100}
	for {
		users, total, err := e.store.ListUsers(ctx, store.UserFilter{
			TenantID: tc.TenantID(),
			Role:     models.RoleDriver,
			Active:   &active,
			Page:     page,
		})
		if err != nil {
			return 0, fmt.Errorf("list drivers: %w", err)
		}
		for _, u := range users {
			if !u.MFAEnabled {
				recipients = append(recipients, u.ID)
			}
		}
		if len(users) == 0 || page.Page*page.Limit >= total {
			break
		}
		page.Page++
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		return e.appendAudit(ctx, tx, tc, ActionMFARemindersSent, targetTenant, tc.TenantID(),
			map[string]any{"recipients": len(recipients)})
	})
	if err != nil {
		return 0, err
	}

	msgs := make([]notify.Message, 0, len(recipients))
	for _, id := range recipients {
		msgs = append(msgs, notify.Message{
			Kind:        notify.KindMFAReminder,
			RecipientID: &id,
			TargetID:    id,
		})
	}
	e.afterCommit(ctx, tc, "driver", "mfa_reminder", msgs...)
	return len(recipients), nil
}
