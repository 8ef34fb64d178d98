// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type NotificationService struct {
	db *gorm.DB
}

type NotificationFilter struct {
	utils.PaginationParams
	Status   string
	Type     string
	Priority string
}

const (
	NotificationLicensingSubmitted = "licensing_submitted"
	NotificationLicensingApproved  = "licensing_approved"
	NotificationLicensingRejected  = "licensing_rejected"
	NotificationSettlementAlert    = "settlement_integrity_alert"
	NotificationApprovalRequested  = "approval_requested"
)

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// Licensing notifications
func (s *NotificationService) NotifyLicensingSubmitted(ctx context.Context, agreement *models.LicensingAgreement) {
	s.create(ctx, &models.AdminNotification{
		Type:                NotificationLicensingSubmitted,
		Title:               "Licensing agreement awaiting review",
		Message:             fmt.Sprintf("Content %s has a licensing agreement pending review", agreement.ContentID),
		Priority:            models.PriorityMedium,
		RelatedResourceType: "licensing_agreement",
		RelatedResourceID:   agreement.ContentID,
	})
}

func (s *NotificationService) NotifyLicensingDecision(ctx context.Context, agreement *models.LicensingAgreement) {
	notification := &models.AdminNotification{
		Recipient:           agreement.OwnerID,
		Priority:            models.PriorityMedium,
		RelatedResourceType: "licensing_agreement",
		RelatedResourceID:   agreement.ContentID,
	}

	switch agreement.Status {
	case models.AgreementStatusApproved:
		notification.Type = NotificationLicensingApproved
		notification.Title = "Licensing agreement approved"
		notification.Message = fmt.Sprintf("Content %s is now listed on the marketplace", agreement.ContentID)
	case models.AgreementStatusRejected:
		notification.Type = NotificationLicensingRejected
		notification.Title = "Licensing agreement rejected"
		notification.Message = fmt.Sprintf("Content %s was rejected: %s", agreement.ContentID, agreement.RejectionReason)
	default:
		return
	}

	s.create(ctx, notification)
}

// Settlement notifications
func (s *NotificationService) RaiseSettlementAlert(ctx context.Context, contentID, sessionID, buyer string, cause error) {
	s.create(ctx, &models.AdminNotification{
		Type:                NotificationSettlementAlert,
		Title:               "Purchase attempted on unlicensed content",
		Message:             fmt.Sprintf("Session %s by %s for content %s was refused: %v", sessionID, buyer, contentID, cause),
		Priority:            models.PriorityCritical,
		RelatedResourceType: "content",
		RelatedResourceID:   contentID,
	})
}

// Access notifications
func (s *NotificationService) NotifyApprovalRequested(ctx context.Context, identity string) {
	s.create(ctx, &models.AdminNotification{
		Type:                NotificationApprovalRequested,
		Title:               "Account approval requested",
		Message:             fmt.Sprintf("%s requested access to the marketplace", identity),
		Priority:            models.PriorityLow,
		RelatedResourceType: "user_approval",
		RelatedResourceID:   identity,
	})
}

func (s *NotificationService) List(ctx context.Context, filter NotificationFilter) ([]models.AdminNotification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AdminNotification{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	allowedSortFields := []string{"created_at", "priority", "status"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var notifications []models.AdminNotification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.AdminNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": "read", "read_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to update notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("notification", "notification", id.String())
	}
	return nil
}

// A failed notification never fails the operation that raised it.
func (s *NotificationService) create(ctx context.Context, notification *models.AdminNotification) {
	if s == nil {
		return
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"type":        notification.Type,
			"resource_id": notification.RelatedResourceID,
		}).Error("Failed to create notification")
	}
}
