// internal/handlers/admin.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type AdminHandler struct {
	adminService        *services.AdminService
	licensingService    *services.LicensingService
	settlementService   *services.SettlementService
	accessService       *services.AccessService
	paymentService      *services.PaymentService
	notificationService *services.NotificationService
}

func NewAdminHandler(
	adminService *services.AdminService,
	licensingService *services.LicensingService,
	settlementService *services.SettlementService,
	accessService *services.AccessService,
	paymentService *services.PaymentService,
	notificationService *services.NotificationService,
) *AdminHandler {
	return &AdminHandler{
		adminService:        adminService,
		licensingService:    licensingService,
		settlementService:   settlementService,
		accessService:       accessService,
		paymentService:      paymentService,
		notificationService: notificationService,
	}
}

// GET /admin/dashboard
func (h *AdminHandler) GetDashboard(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, stats)
}

// GET /admin/analytics?start_date=&end_date=&metrics=
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	endDate := time.Now()
	startDate := endDate.AddDate(0, -1, 0)

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid start_date format, expected YYYY-MM-DD", nil)
			return
		}
		startDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid end_date format, expected YYYY-MM-DD", nil)
			return
		}
		endDate = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	metrics := c.QueryArray("metrics")
	if len(metrics) == 0 {
		metrics = []string{"content_uploads", "licensing_submissions", "licensing_approvals", "purchases", "gross_volume", "platform_fees"}
	}

	analytics, err := h.adminService.GetAnalytics(c.Request.Context(), startDate, endDate, metrics)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"start_date": startDate,
		"end_date":   endDate,
		"metrics":    analytics,
	})
}

// GET /admin/licensing/pending
func (h *AdminHandler) ListPendingAgreements(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	agreements, total, err := h.licensingService.ListPending(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(agreements, total, params))
}

// GET /admin/licensing/approved
func (h *AdminHandler) ListApprovedAgreements(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	agreements, total, err := h.licensingService.ListApproved(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(agreements, total, params))
}

// GET /admin/licensing/:contentId
func (h *AdminHandler) GetAgreement(c *gin.Context) {
	agreement, err := h.licensingService.GetForReview(c.Request.Context(),
		utils.GetIdentityFromContext(c), c.Param("contentId"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, agreement)
}

// PUT /admin/licensing/:contentId/approve
func (h *AdminHandler) ApproveAgreement(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	contentID := c.Param("contentId")

	agreement, err := h.licensingService.Approve(ctx, admin, contentID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(ctx, admin, "APPROVE_LICENSING", "licensing_agreement", contentID,
		map[string]interface{}{"status": models.AgreementStatusPending},
		map[string]interface{}{"status": agreement.Status})

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeyLicensingApproved),
		"agreement": agreement,
	})
}

// PUT /admin/licensing/:contentId/reject
func (h *AdminHandler) RejectAgreement(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.RejectAgreementRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	contentID := c.Param("contentId")

	agreement, err := h.licensingService.Reject(ctx, admin, contentID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(ctx, admin, "REJECT_LICENSING", "licensing_agreement", contentID,
		map[string]interface{}{"status": models.AgreementStatusPending},
		map[string]interface{}{"status": agreement.Status, "reason": req.Reason})

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeyLicensingRejected),
		"agreement": agreement,
	})
}

// PUT /admin/licensing/:contentId/override
func (h *AdminHandler) OverrideAgreement(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.AgreementRequest
	if !bindJSON(c, &req) {
		return
	}
	contentID := c.Param("contentId")
	if req.ContentID != contentID {
		utils.BadRequestResponse(c, "content_id does not match the path", nil)
		return
	}
	ctx := c.Request.Context()

	before, err := h.licensingService.GetPublished(ctx, contentID)
	if err != nil {
		respondError(c, err)
		return
	}

	agreement, err := h.licensingService.AdminOverride(ctx, admin, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(ctx, admin, "OVERRIDE_LICENSING", "licensing_agreement", contentID,
		map[string]interface{}{"splits": before.Splits()},
		map[string]interface{}{"splits": agreement.Splits()})

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeyLicensingOverridden),
		"agreement": agreement,
	})
}

// GET /admin/purchases
func (h *AdminHandler) ListPurchases(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	purchases, total, err := h.settlementService.ListPurchases(c.Request.Context(), services.PurchaseFilter{
		PaginationParams: params,
		ContentID:        c.Query("content_id"),
		BuyerID:          c.Query("buyer_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(purchases, total, params))
}

// GET /admin/purchases/:id/distribution
func (h *AdminHandler) GetDistribution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid purchase ID", nil)
		return
	}

	settlement, err := h.settlementService.GetDistribution(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, settlement)
}

// GET /admin/approvals
func (h *AdminHandler) ListApprovals(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.ApprovalFilter{PaginationParams: params}
	if status := c.Query("status"); status != "" {
		approvalStatus := models.ApprovalStatus(status)
		filter.Status = &approvalStatus
	}

	approvals, total, err := h.accessService.ListApprovals(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(approvals, total, params))
}

// PUT /admin/approvals/:identity
func (h *AdminHandler) SetApproval(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.SetApprovalRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	identity := c.Param("identity")

	approval, err := h.accessService.SetApproval(ctx, admin, identity, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(ctx, admin, "SET_APPROVAL", "user_approval", identity, nil,
		map[string]interface{}{"status": req.Status})

	utils.SuccessResponse(c, approval)
}

// PUT /admin/roles/:identity
func (h *AdminHandler) AssignRole(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	identity := c.Param("identity")

	role, err := h.accessService.AssignRole(ctx, admin, identity, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(ctx, admin, "ASSIGN_ROLE", "user_role", identity, nil,
		map[string]interface{}{"role": req.Role})

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAccessRoleAssigned),
		"role":    role,
	})
}

// PUT /admin/payments/stripe
func (h *AdminHandler) ConfigureStripe(c *gin.Context) {
	admin, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.GatewaySettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	settings, err := h.paymentService.ConfigureGateway(c.Request.Context(), admin, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.adminService.RecordAction(c.Request.Context(), admin, "CONFIGURE_STRIPE", "admin_setting", "payments.stripe", nil,
		map[string]interface{}{"key_fingerprint": settings.KeyFingerprint, "allowed_countries": settings.AllowedCountries})

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyPaymentConfigured),
		"settings": settings,
	})
}

// GET /admin/payments/stripe
func (h *AdminHandler) GetStripeSettings(c *gin.Context) {
	settings, err := h.paymentService.GetGatewaySettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, settings)
}

// GET /admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.adminService.GetSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, settings)
}

// GET /admin/notifications
func (h *AdminHandler) ListNotifications(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	notifications, total, err := h.adminService.ListNotifications(c.Request.Context(), services.NotificationFilter{
		PaginationParams: params,
		Status:           c.Query("status"),
		Type:             c.Query("type"),
		Priority:         c.Query("priority"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(notifications, total, params))
}

// PUT /admin/notifications/:id/read
func (h *AdminHandler) MarkNotificationRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid notification ID", nil)
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminActionSuccess),
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	logs, total, err := h.adminService.ListAuditLogs(c.Request.Context(), services.AuditLogFilter{
		PaginationParams: params,
		Identity:         c.Query("identity"),
		Action:           c.Query("action"),
		ResourceType:     c.Query("resource_type"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}
