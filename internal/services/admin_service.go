// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/utils"
)

type AdminService struct {
	db                  *gorm.DB
	notificationService *NotificationService
}

type AdminDashboardStats struct {
	TotalContent        int64   `json:"total_content"`
	ListedContent       int64   `json:"listed_content"`
	PendingAgreements   int64   `json:"pending_agreements"`
	ApprovedAgreements  int64   `json:"approved_agreements"`
	RejectedAgreements  int64   `json:"rejected_agreements"`
	TotalPurchases      int64   `json:"total_purchases"`
	PurchasesThisMonth  int64   `json:"purchases_this_month"`
	GrossVolume         int64   `json:"gross_volume"`
	MonthlyVolume       int64   `json:"monthly_volume"`
	PlatformFees        int64   `json:"platform_fees"`
	AccruedRoyalties    int64   `json:"accrued_royalties"`
	PendingApprovals    int64   `json:"pending_approvals"`
	UnreadNotifications int64   `json:"unread_notifications"`
	VolumeGrowth        float64 `json:"volume_growth"`
}

type AuditLogFilter struct {
	utils.PaginationParams
	Identity     string
	Action       string
	ResourceType string
}

func NewAdminService(db *gorm.DB, notificationService *NotificationService) *AdminService {
	return &AdminService{
		db:                  db,
		notificationService: notificationService,
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}
	db := s.db.WithContext(ctx)

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	// Content and licensing
	if err := db.Model(&models.Content{}).Count(&stats.TotalContent).Error; err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	counts := map[models.AgreementStatus]*int64{
		models.AgreementStatusPending:  &stats.PendingAgreements,
		models.AgreementStatusApproved: &stats.ApprovedAgreements,
		models.AgreementStatusRejected: &stats.RejectedAgreements,
	}
	for status, target := range counts {
		if err := db.Model(&models.LicensingAgreement{}).Where("status = ?", status).Count(target).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s agreements: %w", status, err)
		}
	}
	stats.ListedContent = stats.ApprovedAgreements

	// Purchases and volume
	if err := db.Model(&models.PurchaseRecord{}).Count(&stats.TotalPurchases).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}
	db.Model(&models.PurchaseRecord{}).
		Where("purchased_at >= ?", monthStart.UnixNano()).
		Count(&stats.PurchasesThisMonth)
	db.Model(&models.PurchaseRecord{}).
		Select("COALESCE(SUM(sale_price), 0)").Scan(&stats.GrossVolume)
	db.Model(&models.PurchaseRecord{}).
		Where("purchased_at >= ?", monthStart.UnixNano()).
		Select("COALESCE(SUM(sale_price), 0)").Scan(&stats.MonthlyVolume)
	db.Model(&models.PurchaseRecord{}).
		Select("COALESCE(SUM(platform_fee), 0)").Scan(&stats.PlatformFees)
	db.Model(&models.RoyaltyDistribution{}).
		Where("status = ?", models.DistributionStatusAccrued).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.AccruedRoyalties)

	// Access and notifications
	db.Model(&models.UserApproval{}).
		Where("status = ?", models.ApprovalStatusPending).
		Count(&stats.PendingApprovals)
	db.Model(&models.AdminNotification{}).
		Where("status = ?", "unread").
		Count(&stats.UnreadNotifications)

	// Growth calculations
	var lastMonthVolume int64
	db.Model(&models.PurchaseRecord{}).
		Where("purchased_at >= ? AND purchased_at < ?", lastMonthStart.UnixNano(), monthStart.UnixNano()).
		Select("COALESCE(SUM(sale_price), 0)").Scan(&lastMonthVolume)

	if lastMonthVolume > 0 {
		stats.VolumeGrowth = float64(stats.MonthlyVolume-lastMonthVolume) / float64(lastMonthVolume) * 100
	}

	return stats, nil
}

// Analytics and Reporting
func (s *AdminService) GetAnalytics(ctx context.Context, startDate, endDate time.Time, metrics []string) (map[string]interface{}, error) {
	analytics := make(map[string]interface{})
	db := s.db.WithContext(ctx)
	start, end := startDate.UnixNano(), endDate.UnixNano()

	for _, metric := range metrics {
		switch metric {
		case "content_uploads":
			var count int64
			db.Model(&models.Content{}).
				Where("created_at BETWEEN ? AND ?", start, end).
				Count(&count)
			analytics["content_uploads"] = count

		case "licensing_submissions":
			var count int64
			db.Model(&models.LicensingAgreement{}).
				Where("submitted_at BETWEEN ? AND ?", start, end).
				Count(&count)
			analytics["licensing_submissions"] = count

		case "licensing_approvals":
			var count int64
			db.Model(&models.LicensingAgreement{}).
				Where("status = ? AND reviewed_at BETWEEN ? AND ?",
					models.AgreementStatusApproved, startDate, endDate).
				Count(&count)
			analytics["licensing_approvals"] = count

		case "purchases":
			var count int64
			db.Model(&models.PurchaseRecord{}).
				Where("purchased_at BETWEEN ? AND ?", start, end).
				Count(&count)
			analytics["purchases"] = count

		case "gross_volume":
			var volume int64
			db.Model(&models.PurchaseRecord{}).
				Where("purchased_at BETWEEN ? AND ?", start, end).
				Select("COALESCE(SUM(sale_price), 0)").Scan(&volume)
			analytics["gross_volume"] = volume

		case "platform_fees":
			var fees int64
			db.Model(&models.PurchaseRecord{}).
				Where("purchased_at BETWEEN ? AND ?", start, end).
				Select("COALESCE(SUM(platform_fee), 0)").Scan(&fees)
			analytics["platform_fees"] = fees
		}
	}

	return analytics, nil
}

// GetSettings returns every setting with stored secrets stripped.
func (s *AdminService) GetSettings(ctx context.Context) (map[string]models.AdminSettings, error) {
	var settings []models.AdminSettings
	if err := s.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	settingsMap := make(map[string]models.AdminSettings)
	for _, setting := range settings {
		redacted := models.JSONB{}
		for k, v := range setting.Value {
			if !strings.HasPrefix(k, "secret_") {
				redacted[k] = v
			}
		}
		setting.Value = redacted
		key := fmt.Sprintf("%s.%s", setting.Category, setting.Key)
		settingsMap[key] = setting
	}

	return settingsMap, nil
}

func (s *AdminService) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.Identity != "" {
		query = query.Where("identity = ?", filter.Identity)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	allowedSortFields := []string{"created_at", "action", "resource_type"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	return logs, total, nil
}

func (s *AdminService) ListNotifications(ctx context.Context, filter NotificationFilter) ([]models.AdminNotification, int64, error) {
	return s.notificationService.List(ctx, filter)
}

// RecordAction writes an audit row for an admin decision.
func (s *AdminService) RecordAction(ctx context.Context, admin, action, resourceType, resourceID string, oldValues, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		Identity:     admin,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    models.JSONB(oldValues),
		NewValues:    models.JSONB(newValues),
	}

	if err := s.db.WithContext(ctx).Create(auditLog).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":      action,
			"resource_id": resourceID,
		}).Warn("Failed to record admin action")
	}
}
