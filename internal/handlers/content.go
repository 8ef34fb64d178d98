// internal/handlers/content.go
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

type ContentHandler struct {
	contentService *services.ContentService
	storageService *services.StorageService
}

func NewContentHandler(contentService *services.ContentService, storageService *services.StorageService) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		storageService: storageService,
	}
}

// POST /content
func (h *ContentHandler) CreateContent(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.UploadContentRequest
	if !bindJSON(c, &req) {
		return
	}

	content, err := h.contentService.Upload(c.Request.Context(), identity, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContentCreated),
		"content": content,
	})
}

// PUT /content/:id
func (h *ContentHandler) UpdateContent(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req services.UpdateContentRequest
	if !bindJSON(c, &req) {
		return
	}

	content, err := h.contentService.Update(c.Request.Context(), identity, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyContentUpdated),
		"content": content,
	})
}

// GET /content/:id
// Unlisted content is visible to its owner only.
func (h *ContentHandler) GetContent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	content, err := h.contentService.GetListedContent(ctx, id)
	if err == nil {
		utils.SuccessResponse(c, content)
		return
	}

	identity := utils.GetIdentityFromContext(c)
	if identity != "" {
		if own, ownErr := h.contentService.GetContent(ctx, id); ownErr == nil && own.OwnerID == identity {
			utils.SuccessResponse(c, own)
			return
		}
	}

	respondError(c, err)
}

// GET /content/:id/download
func (h *ContentHandler) GetDownload(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	grant, err := h.contentService.GetDownload(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, grant)
}

// GET /marketplace
func (h *ContentHandler) ListMarketplace(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	contents, total, err := h.contentService.ListMarketplace(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(contents, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /content/mine
func (h *ContentHandler) ListMyContent(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	contents, total, err := h.contentService.ListByCreator(c.Request.Context(), services.ContentFilter{
		PaginationParams: params,
		OwnerID:          identity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(contents, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /content/upload
func (h *ContentHandler) UploadBlob(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	result, err := h.storageService.UploadFile(file, header, services.ContentUploadOptions())
	if errors.Is(err, services.ErrValidation) {
		respondError(c, err)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("filename", header.Filename).Error("Blob upload failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "UPLOAD_FAILED", i18n.T(lang, i18n.KeyFileUploadFailed), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyFileUploadSuccess),
		"file":    result,
	})
}
