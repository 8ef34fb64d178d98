// internal/handlers/access.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type AccessHandler struct {
	accessService *services.AccessService
}

func NewAccessHandler(accessService *services.AccessService) *AccessHandler {
	return &AccessHandler{
		accessService: accessService,
	}
}

// POST /access/initialize
func (h *AccessHandler) Initialize(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	role, err := h.accessService.InitializeAccessControl(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyAccessInitialized),
		"identity": identity,
		"role":     role,
	})
}

// POST /access/request
func (h *AccessHandler) RequestApproval(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	approval, err := h.accessService.RequestApproval(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyAccessApprovalRequest),
		"approval": approval,
	})
}

// GET /access/me
func (h *AccessHandler) GetMyAccess(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	summary, err := h.accessService.Summary(c.Request.Context(), identity)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}
