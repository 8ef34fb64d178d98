// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

// respondError maps service sentinels onto the response envelope. The order
// matters: ErrInvariant is checked before the ErrValidation it travels with.
// Errors that carry a catalog key answer in the caller's language and keep
// the service detail under "cause".
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	message := err.Error()
	var details interface{}
	var resourceErr *services.ResourceError
	if errors.As(err, &resourceErr) && resourceErr.Key != "" {
		message = i18n.T(lang, resourceErr.Key)
		details = gin.H{"cause": resourceErr.Detail}
	}

	switch {
	case errors.Is(err, services.ErrInvariant):
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR",
			i18n.T(lang, i18n.KeyLicensingInvalidSplit), gin.H{"cause": err.Error()})
	case errors.Is(err, services.ErrValidation):
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
	case errors.Is(err, services.ErrIdentityMismatch):
		utils.ErrorResponse(c, http.StatusForbidden, "IDENTITY_MISMATCH",
			i18n.T(lang, i18n.KeyPaymentIdentityMismatch), nil)
	case errors.Is(err, services.ErrNotApproved):
		utils.ErrorResponse(c, http.StatusForbidden, "NOT_APPROVED",
			i18n.T(lang, i18n.KeyAccessApprovalRequired), nil)
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, message)
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, message, details)
	case errors.Is(err, services.ErrDuplicate):
		utils.ConflictResponse(c, message, details)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.ErrorResponse(c, http.StatusConflict, "INVALID_TRANSITION", message, details)
	case errors.Is(err, services.ErrPaymentNotCompleted):
		utils.PaymentRequiredResponse(c, "PAYMENT_NOT_COMPLETED", i18n.T(lang, i18n.KeyPaymentNotCompleted))
	case errors.Is(err, services.ErrGatewayNotConfigured):
		utils.ServiceUnavailableResponse(c, "GATEWAY_NOT_CONFIGURED", i18n.T(lang, i18n.KeyPaymentNotConfigured))
	case errors.Is(err, services.ErrGateway):
		utils.BadGatewayResponse(c, "")
	case errors.Is(err, services.ErrNoLicense):
		utils.ErrorResponse(c, http.StatusInternalServerError, "NO_LICENSE", i18n.T(lang, i18n.KeyPaymentNoLicense), nil)
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON decodes and validates a request body, writing the error response
// itself when it returns false.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func requireIdentity(c *gin.Context) (string, bool) {
	identity, exists := utils.GetUserIDFromContext(c)
	if !exists || identity == "" {
		utils.UnauthorizedResponse(c, "")
		return "", false
	}
	return identity, true
}
