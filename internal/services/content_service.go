// internal/services/content_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/utils"
)

// ContentStore is what the licensing and checkout paths need from content.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (*models.Content, error)
	ContentExists(ctx context.Context, id string) (bool, error)
}

type accessLedger interface {
	HasAccess(ctx context.Context, identity, contentID string) (bool, error)
}

type ContentService struct {
	db             *gorm.DB
	storageService *StorageService
	accessService  *AccessService
	purchases      accessLedger
}

type UploadContentRequest struct {
	ID          string   `json:"id,omitempty" validate:"omitempty,content_id"`
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description,omitempty" validate:"max=5000"`
	Price       int64    `json:"price" validate:"min=0"`
	Currency    string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	Category    string   `json:"category,omitempty" validate:"max=50"`
	Tags        []string `json:"tags,omitempty" validate:"max=20,dive,max=50"`
	BlobKey     string   `json:"blob_key,omitempty" validate:"max=512"`
}

type UpdateContentRequest struct {
	Title       *string  `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Price       *int64   `json:"price,omitempty" validate:"omitempty,min=0"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=50"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	BlobKey     *string  `json:"blob_key,omitempty" validate:"omitempty,max=512"`
}

type ContentFilter struct {
	utils.PaginationParams
	OwnerID string
}

type DownloadGrant struct {
	ContentID string    `json:"content_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewContentService(db *gorm.DB, storageService *StorageService, accessService *AccessService, purchases accessLedger) *ContentService {
	return &ContentService{
		db:             db,
		storageService: storageService,
		accessService:  accessService,
		purchases:      purchases,
	}
}

// Upload stores a content record. It stays off the marketplace until its
// licensing agreement is approved.
func (s *ContentService) Upload(ctx context.Context, owner string, req *UploadContentRequest) (*models.Content, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%v", err)
	}
	if owner == "" {
		return nil, validationError("owner identity is required")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}

	content := &models.Content{
		ID:          id,
		OwnerID:     owner,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		Category:    req.Category,
		Tags:        models.TagList(req.Tags),
		BlobKey:     req.BlobKey,
		CreatedAt:   utils.MonotonicNanos(),
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(content)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, resourceError(ErrDuplicate, i18n.KeyContentDuplicate, "content id %q is already taken", id)
	}

	logrus.WithFields(logrus.Fields{
		"content_id": id,
		"owner":      owner,
		"price":      req.Price,
	}).Info("Content uploaded")

	return s.GetContent(ctx, id)
}

func (s *ContentService) Update(ctx context.Context, caller, id string, req *UpdateContentRequest) (*models.Content, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%v", err)
	}

	content, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if content.OwnerID != caller && !s.accessService.IsAdmin(ctx, caller) {
		return nil, forbidden("only the owner or an admin can modify content %q", id)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Tags != nil {
		updates["tags"] = models.TagList(req.Tags)
	}
	if req.BlobKey != nil {
		updates["blob_key"] = *req.BlobKey
	}
	if len(updates) == 0 {
		return content, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Content{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update content: %w", err)
	}

	return s.GetContent(ctx, id)
}

func (s *ContentService) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("content", "content", id)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &content, nil
}

func (s *ContentService) ContentExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Content{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

// GetListedContent returns content only while it is marketplace-visible.
func (s *ContentService) GetListedContent(ctx context.Context, id string) (*models.Content, error) {
	var content models.Content
	err := s.listed(s.db.WithContext(ctx)).
		Preload("Agreement").
		Where("id = ?", id).
		First(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("content", "listed content", id)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &content, nil
}

// ListMarketplace returns content with an approved licensing agreement.
func (s *ContentService) ListMarketplace(ctx context.Context, params utils.PaginationParams) ([]models.Content, int64, error) {
	query := s.listed(s.db.WithContext(ctx).Model(&models.Content{}))

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count content: %w", err)
	}

	allowedSortFields := []string{"created_at", "price", "title"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var contents []models.Content
	if err := query.Preload("Agreement").Find(&contents).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch content: %w", err)
	}

	return contents, total, nil
}

// ListByCreator includes unlisted content; it backs the creator's own view.
func (s *ContentService) ListByCreator(ctx context.Context, filter ContentFilter) ([]models.Content, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Content{}).Where("owner_id = ?", filter.OwnerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count content: %w", err)
	}

	allowedSortFields := []string{"created_at", "price", "title"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var contents []models.Content
	if err := query.Preload("Agreement").Find(&contents).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch content: %w", err)
	}

	return contents, total, nil
}

// GetDownload grants a blob URL to the owner, an admin or a buyer holding a
// purchase record.
func (s *ContentService) GetDownload(ctx context.Context, caller, contentID string) (*DownloadGrant, error) {
	content, err := s.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	allowed := content.OwnerID == caller || s.accessService.IsAdmin(ctx, caller)
	if !allowed {
		allowed, err = s.purchases.HasAccess(ctx, caller, contentID)
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return nil, resourceError(ErrForbidden, i18n.KeyContentNoAccess, "%s has not purchased content %q", caller, contentID)
	}

	if content.BlobKey == "" {
		return nil, notFound("content", "blob for content", contentID)
	}

	url, expiresAt, err := s.storageService.DownloadURL(content.BlobKey)
	if err != nil {
		return nil, err
	}

	return &DownloadGrant{
		ContentID: contentID,
		URL:       url,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ContentService) listed(query *gorm.DB) *gorm.DB {
	approved := s.db.Model(&models.LicensingAgreement{}).
		Select("content_id").
		Where("status = ?", models.AgreementStatusApproved)
	return query.Where("id IN (?)", approved)
}
