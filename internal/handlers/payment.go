// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type PaymentHandler struct {
	paymentService    *services.PaymentService
	settlementService *services.SettlementService
}

func NewPaymentHandler(paymentService *services.PaymentService, settlementService *services.SettlementService) *PaymentHandler {
	return &PaymentHandler{
		paymentService:    paymentService,
		settlementService: settlementService,
	}
}

// POST /payments/checkout
// Accepts either a content id or a raw item list.
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var body struct {
		services.ContentCheckoutRequest
		Items []services.ShoppingItem `json:"items,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	var (
		ref *services.SessionReference
		err error
	)
	if len(body.Items) > 0 {
		ref, err = h.paymentService.CreateCheckoutSession(c.Request.Context(), identity, &services.CreateCheckoutRequest{
			Items:      body.Items,
			SuccessURL: body.SuccessURL,
			CancelURL:  body.CancelURL,
		})
	} else {
		ref, err = h.paymentService.CreateContentCheckout(c.Request.Context(), identity, &body.ContentCheckoutRequest)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, ref)
}

// POST /purchases/settle
func (h *PaymentHandler) SettlePurchase(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.SettlePurchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.settlementService.SettlePurchase(c.Request.Context(), req.ContentID, req.SessionID, identity)
	if err != nil {
		respondError(c, err)
		return
	}

	// A replay answers exactly like the first settlement; only the header
	// tells them apart.
	if result.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	utils.SuccessResponse(c, result)
}

// GET /purchases/me
func (h *PaymentHandler) GetMyPurchases(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	purchases, total, err := h.settlementService.GetPurchasesFor(c.Request.Context(), identity, params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(purchases, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /purchases/access/:contentId
func (h *PaymentHandler) HasAccess(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	contentID := c.Param("contentId")
	granted, err := h.settlementService.HasAccess(c.Request.Context(), identity, contentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"content_id": contentID,
		"has_access": granted,
	})
}

// GET /earnings/me
func (h *PaymentHandler) GetMyEarnings(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	summary, err := h.settlementService.GetEarnings(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}
