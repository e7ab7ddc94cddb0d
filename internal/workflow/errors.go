package workflow

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
)

var (
	ErrUnauthorized = tenancy.ErrUnauthorized
	// ErrNotFound covers both missing ids and ids owned by another tenant.
	ErrNotFound          = store.ErrNotFound
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("entity is not reviewable")
	ErrAlreadyReviewed   = errors.New("entity already reviewed")
	ErrQuotaExceeded     = errors.New("tenant quota exceeded")
	ErrMFARequired       = errors.New("multi-factor authentication required")
	ErrForbidden         = errors.New("forbidden")
	ErrInternal          = errors.New("internal error")
)

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// QuotaError reports which tenant limit would be exceeded. It matches ErrQuotaExceeded.
type QuotaError struct {
	Resource string
	Limit    int64
	Current  int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: limit %d, current %d", e.Resource, e.Limit, e.Current)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// reviewErr maps a failed compare-and-swap. reviewable reports whether
// the current status is one a reviewer could ever have acted on; anything
// else is an invalid transition rather than a lost race.
func reviewErr(err error, reviewable func(current string) bool) error {
	var conflict *store.StatusConflictError
	if errors.As(err, &conflict) {
		if reviewable(conflict.Current) {
			return fmt.Errorf("%w: status is %s", ErrAlreadyReviewed, conflict.Current)
		}
		return fmt.Errorf("%w: status is %s", ErrInvalidTransition, conflict.Current)
	}
	return err
}
