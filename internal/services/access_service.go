// internal/services/access_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/utils"
)

const (
	settingsCategoryAccess = "access"
	settingsKeyInitialized = "initialized"
)

// AccessService is the approval registry and role table. Approval is a policy
// gate for upload and checkout; settlement never consults it.
type AccessService struct {
	db                  *gorm.DB
	notificationService *NotificationService
	requireApproval     bool
}

type ApprovalFilter struct {
	utils.PaginationParams
	Status *models.ApprovalStatus
}

type SetApprovalRequest struct {
	Status models.ApprovalStatus `json:"status" validate:"required,oneof=pending approved rejected"`
}

type AssignRoleRequest struct {
	Role models.UserRoleType `json:"role" validate:"required,oneof=admin user guest"`
}

type AccessSummary struct {
	Identity string                `json:"identity"`
	Role     models.UserRoleType   `json:"role"`
	Approval models.ApprovalStatus `json:"approval,omitempty"`
	Approved bool                  `json:"approved"`
}

func NewAccessService(db *gorm.DB, notificationService *NotificationService, requireApproval bool) *AccessService {
	return &AccessService{
		db:                  db,
		notificationService: notificationService,
		requireApproval:     requireApproval,
	}
}

// InitializeAccessControl makes the first caller the admin. Later callers are
// registered as users.
func (s *AccessService) InitializeAccessControl(ctx context.Context, caller string) (models.UserRoleType, error) {
	if caller == "" {
		return "", validationError("identity is required")
	}

	role := models.RoleUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := &models.AdminSettings{
			Category:    settingsCategoryAccess,
			Key:         settingsKeyInitialized,
			Value:       models.JSONB{"value": caller},
			DataType:    "string",
			Description: "Identity that initialized access control",
			UpdatedBy:   caller,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category"}, {Name: "key"}},
			DoNothing: true,
		}).Create(claim)
		if result.Error != nil {
			return fmt.Errorf("failed to claim access control: %w", result.Error)
		}

		if result.RowsAffected == 1 {
			role = models.RoleAdmin
			return upsertRole(tx, caller, models.RoleAdmin, caller)
		}

		var existing models.UserRole
		err := tx.Where("identity = ?", caller).First(&existing).Error
		if err == nil {
			role = existing.Role
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error: %w", err)
		}
		return tx.Create(&models.UserRole{Identity: caller, Role: models.RoleUser}).Error
	})
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{"identity": caller, "role": role}).Info("Access control initialized for caller")
	return role, nil
}

func (s *AccessService) GetRole(ctx context.Context, identity string) (models.UserRoleType, error) {
	if identity == "" {
		return models.RoleGuest, nil
	}

	var role models.UserRole
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoleGuest, nil
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	return role.Role, nil
}

func (s *AccessService) IsAdmin(ctx context.Context, identity string) bool {
	role, err := s.GetRole(ctx, identity)
	if err != nil {
		logrus.WithError(err).WithField("identity", identity).Warn("Role lookup failed")
		return false
	}
	return role == models.RoleAdmin
}

func (s *AccessService) AssignRole(ctx context.Context, admin, identity string, role models.UserRoleType) (*models.UserRole, error) {
	if !s.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can assign roles")
	}
	if identity == "" {
		return nil, validationError("identity is required")
	}
	if !role.Valid() {
		return nil, validationError("unknown role %q", role)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if role != models.RoleAdmin {
			var current models.UserRole
			if err := tx.Where("identity = ?", identity).First(&current).Error; err == nil && current.Role == models.RoleAdmin {
				var admins int64
				if err := tx.Model(&models.UserRole{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
					return fmt.Errorf("failed to count admins: %w", err)
				}
				if admins <= 1 {
					return resourceError(ErrInvalidTransition, i18n.KeyAccessLastAdmin, "cannot demote the last admin")
				}
			}
		}
		return upsertRole(tx, identity, role, admin)
	})
	if err != nil {
		return nil, err
	}

	var updated models.UserRole
	if err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&updated).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &updated, nil
}

// RequestApproval creates a pending request, or reopens a rejected one.
// Pending and approved records are returned unchanged.
func (s *AccessService) RequestApproval(ctx context.Context, identity string) (*models.UserApproval, error) {
	if identity == "" {
		return nil, validationError("identity is required")
	}

	now := time.Now()
	created := false
	db := s.db.WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		approval := &models.UserApproval{
			Identity:    identity,
			Status:      models.ApprovalStatusPending,
			RequestedAt: &now,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoNothing: true,
		}).Create(approval)
		if result.Error != nil {
			return fmt.Errorf("failed to create approval request: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			created = true
			return nil
		}

		reopened := tx.Model(&models.UserApproval{}).
			Where("identity = ? AND status = ?", identity, models.ApprovalStatusRejected).
			Updates(map[string]interface{}{
				"status":       models.ApprovalStatusPending,
				"requested_at": now,
				"decided_by":   "",
				"decided_at":   nil,
			})
		if reopened.Error != nil {
			return fmt.Errorf("failed to reopen approval request: %w", reopened.Error)
		}
		created = reopened.RowsAffected == 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.notificationService.NotifyApprovalRequested(ctx, identity)
	}

	return s.GetApproval(ctx, identity)
}

func (s *AccessService) GetApproval(ctx context.Context, identity string) (*models.UserApproval, error) {
	var approval models.UserApproval
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&approval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("approval", "approval for", identity)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &approval, nil
}

func (s *AccessService) SetApproval(ctx context.Context, admin, identity string, status models.ApprovalStatus) (*models.UserApproval, error) {
	if !s.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can change approvals")
	}
	if identity == "" {
		return nil, validationError("identity is required")
	}
	if !status.Valid() {
		return nil, validationError("unknown approval status %q", status)
	}

	now := time.Now()
	approval := &models.UserApproval{
		Identity:  identity,
		Status:    status,
		DecidedBy: admin,
		DecidedAt: &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "decided_by", "decided_at", "updated_at"}),
	}).Create(approval).Error
	if err != nil {
		return nil, fmt.Errorf("failed to set approval: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"identity": identity,
		"status":   status,
		"admin":    admin,
	}).Info("Approval status changed")

	return s.GetApproval(ctx, identity)
}

// IsApproved reports whether identity may transact. Admins are implicitly
// approved.
func (s *AccessService) IsApproved(ctx context.Context, identity string) bool {
	if identity == "" {
		return false
	}
	if s.IsAdmin(ctx, identity) {
		return true
	}

	approval, err := s.GetApproval(ctx, identity)
	if err != nil {
		return false
	}
	return approval.Status == models.ApprovalStatusApproved
}

// CheckTransact is the policy gate used by upload and checkout.
func (s *AccessService) CheckTransact(ctx context.Context, identity string) error {
	if !s.requireApproval {
		return nil
	}
	if !s.IsApproved(ctx, identity) {
		return fmt.Errorf("%w: %s", ErrNotApproved, identity)
	}
	return nil
}

func (s *AccessService) Summary(ctx context.Context, identity string) (*AccessSummary, error) {
	role, err := s.GetRole(ctx, identity)
	if err != nil {
		return nil, err
	}

	summary := &AccessSummary{
		Identity: identity,
		Role:     role,
		Approved: s.IsApproved(ctx, identity),
	}
	if approval, err := s.GetApproval(ctx, identity); err == nil {
		summary.Approval = approval.Status
	}
	return summary, nil
}

func (s *AccessService) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]models.UserApproval, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.UserApproval{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count approvals: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "status", "identity"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var approvals []models.UserApproval
	if err := query.Find(&approvals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approvals: %w", err)
	}

	return approvals, total, nil
}

func upsertRole(tx *gorm.DB, identity string, role models.UserRoleType, assignedBy string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "assigned_by", "updated_at"}),
	}).Create(&models.UserRole{
		Identity:   identity,
		Role:       role,
		AssignedBy: assignedBy,
	}).Error
}
