// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/royalty"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrInvariant always travels together with ErrValidation.
	ErrInvariant            = royalty.ErrInvariant
	ErrDuplicate            = errors.New("duplicate submission")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrGateway              = errors.New("payment gateway error")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrPaymentNotCompleted  = errors.New("payment not completed")
	ErrIdentityMismatch     = errors.New("identity mismatch")
	ErrNoLicense            = errors.New("content has no approved licensing agreement")
	ErrNotApproved          = errors.New("account not approved")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// splitError reports a royalty invariant violation as a validation failure
// while keeping ErrInvariant matchable.
func splitError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// ResourceError is a sentinel failure tied to a message catalog key, so the
// HTTP layer can answer in the caller's language.
type ResourceError struct {
	Kind   error
	Key    string
	Detail string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ResourceError) Unwrap() error {
	return e.Kind
}

func resourceError(kind error, key, format string, args ...interface{}) error {
	return &ResourceError{Kind: kind, Key: key, Detail: fmt.Sprintf(format, args...)}
}

var notFoundKeys = map[string]string{
	"content":      i18n.KeyContentNotFound,
	"licensing":    i18n.KeyLicensingNotFound,
	"purchase":     i18n.KeyPurchaseNotFound,
	"approval":     i18n.KeyApprovalNotFound,
	"notification": i18n.KeyNotificationNotFound,
	"setting":      i18n.KeySettingNotFound,
}

// notFound reports a missing record of one of the catalogued resources.
func notFound(resource, what, id string) error {
	return resourceError(ErrNotFound, notFoundKeys[resource], "%s %q", what, id)
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}
