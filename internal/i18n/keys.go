// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Access control
	KeyAccessInitialized      = "access.initialized"
	KeyAccessApprovalRequired = "access.approval_required"
	KeyAccessApprovalRequest  = "access.approval_requested"
	KeyAccessRoleAssigned     = "access.role_assigned"
	KeyAccessLastAdmin        = "access.last_admin"
	KeyApprovalNotFound       = "approval.not_found"

	// Content
	KeyContentCreated   = "content.created"
	KeyContentUpdated   = "content.updated"
	KeyContentNotFound  = "content.not_found"
	KeyContentDuplicate = "content.duplicate"
	KeyContentNoAccess  = "content.no_access"

	// Licensing
	KeyLicensingSubmitted         = "licensing.submitted"
	KeyLicensingApproved          = "licensing.approved"
	KeyLicensingRejected          = "licensing.rejected"
	KeyLicensingOverridden        = "licensing.overridden"
	KeyLicensingNotFound          = "licensing.not_found"
	KeyLicensingDuplicate         = "licensing.duplicate"
	KeyLicensingInvalidTransition = "licensing.invalid_transition"
	KeyLicensingInvalidSplit      = "licensing.invalid_split"

	// Payments and settlement
	KeyPaymentNotCompleted     = "payment.not_completed"
	KeyPaymentGatewayError     = "payment.gateway_error"
	KeyPaymentNotConfigured    = "payment.not_configured"
	KeyPaymentIdentityMismatch = "payment.identity_mismatch"
	KeyPaymentNoLicense        = "payment.no_license"
	KeyPaymentConfigured       = "payment.configured"
	KeyPurchaseNotFound        = "purchase.not_found"

	// Admin
	KeyAdminActionSuccess   = "admin.action_success"
	KeyAdminAccessDenied    = "admin.access_denied"
	KeyNotificationNotFound = "notification.not_found"
	KeySettingNotFound      = "setting.not_found"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"

	// Rate limiting
	KeyRateLimitExceeded = "rate_limit.exceeded"
)
