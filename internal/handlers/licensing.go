// internal/handlers/licensing.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type LicensingHandler struct {
	licensingService  *services.LicensingService
	settlementService *services.SettlementService
}

func NewLicensingHandler(licensingService *services.LicensingService, settlementService *services.SettlementService) *LicensingHandler {
	return &LicensingHandler{
		licensingService:  licensingService,
		settlementService: settlementService,
	}
}

// POST /licensing
func (h *LicensingHandler) SubmitAgreement(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.AgreementRequest
	if !bindJSON(c, &req) {
		return
	}

	agreement, err := h.licensingService.Submit(c.Request.Context(), identity, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeyLicensingSubmitted),
		"agreement": agreement,
	})
}

// PUT /licensing/:contentId
func (h *LicensingHandler) UpdateAgreement(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.AgreementRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ContentID != c.Param("contentId") {
		utils.BadRequestResponse(c, "content_id does not match the path", nil)
		return
	}

	agreement, err := h.licensingService.Update(c.Request.Context(), identity, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, agreement)
}

// GET /licensing/:contentId
func (h *LicensingHandler) GetAgreement(c *gin.Context) {
	views, err := h.licensingService.GetAgreementViews(c.Request.Context(),
		utils.GetIdentityFromContext(c), c.Param("contentId"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, views)
}

// GET /licensing/:contentId/summary
func (h *LicensingHandler) GetRoyaltySummary(c *gin.Context) {
	summary, err := h.licensingService.GetRoyaltySummary(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}

// GET /licensing/:contentId/royalty-preview?sale_price=
func (h *LicensingHandler) PreviewDistribution(c *gin.Context) {
	var salePrice int64
	if raw := c.Query("sale_price"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			utils.BadRequestResponse(c, "sale_price must be a non-negative integer", nil)
			return
		}
		salePrice = parsed
	}

	preview, err := h.settlementService.PreviewDistribution(c.Request.Context(),
		utils.GetIdentityFromContext(c), c.Param("contentId"), salePrice)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, preview)
}
