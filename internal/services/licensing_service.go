// internal/services/licensing_service.go
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
	"github.com/javajoker/creative-settlement/internal/metrics"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/royalty"
	"github.com/javajoker/creative-settlement/internal/utils"
)

// LicensingService owns the agreement lifecycle:
//
//	pending -> approved
//	pending -> rejected -> pending (resubmission)
//	approved -> approved (admin override only)
//
// Every transition is a compare-and-swap on the current status.
type LicensingService struct {
	db                  *gorm.DB
	contents            ContentStore
	accessService       *AccessService
	notificationService *NotificationService
}

type AgreementRequest struct {
	ContentID       string                `json:"content_id" validate:"required,content_id"`
	CommercialUse   bool                  `json:"commercial_use"`
	DerivativeWorks models.DerivativeMode `json:"derivative_works" validate:"required,oneof=none withAttribution fullRemix"`
	Redistribution  models.Redistribution `json:"redistribution"`
	RoyaltySplits   []royalty.Split       `json:"royalty_splits" validate:"required,min=1,dive"`
	TermsAccepted   bool                  `json:"terms_accepted"`
}

type RejectAgreementRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type AgreementViews struct {
	Pending   *models.LicensingAgreement `json:"pending,omitempty"`
	Published *models.LicensingAgreement `json:"published,omitempty"`
}

type RoyaltySummary struct {
	ContentID       string                `json:"content_id"`
	OwnerID         string                `json:"owner_id"`
	CommercialUse   bool                  `json:"commercial_use"`
	DerivativeWorks models.DerivativeMode `json:"derivative_works"`
	Redistribution  models.Redistribution `json:"redistribution"`
	Splits          []royalty.Split       `json:"splits"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
}

func NewLicensingService(db *gorm.DB, contents ContentStore, accessService *AccessService, notificationService *NotificationService) *LicensingService {
	return &LicensingService{
		db:                  db,
		contents:            contents,
		accessService:       accessService,
		notificationService: notificationService,
	}
}

// Submit creates a pending agreement, resubmits a rejected one, or lets the
// owner amend a still-pending one. Anything else is a duplicate.
func (s *LicensingService) Submit(ctx context.Context, caller string, req *AgreementRequest) (*models.LicensingAgreement, error) {
	content, err := s.checkSubmission(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	submittedAt := utils.MonotonicNanos()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.LicensingAgreement
		err := tx.Where("content_id = ?", req.ContentID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			agreement := newAgreement(content.OwnerID, req, submittedAt)
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "content_id"}},
				DoNothing: true,
			}).Create(agreement)
			if result.Error != nil {
				return fmt.Errorf("failed to create licensing agreement: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return resourceError(ErrDuplicate, i18n.KeyLicensingDuplicate, "content %q received a concurrent submission", req.ContentID)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		switch existing.Status {
		case models.AgreementStatusRejected:
			return casTerms(tx, req, models.AgreementStatusRejected, submittedAt)
		case models.AgreementStatusPending:
			if caller != content.OwnerID {
				return resourceError(ErrDuplicate, i18n.KeyLicensingDuplicate, "content %q already has a pending agreement", req.ContentID)
			}
			return casTerms(tx, req, models.AgreementStatusPending, submittedAt)
		default:
			return resourceError(ErrDuplicate, i18n.KeyLicensingDuplicate, "content %q already has an approved agreement", req.ContentID)
		}
	})
	if err != nil {
		return nil, err
	}

	agreement, err := s.get(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}

	metrics.LicensingTransition(string(models.AgreementStatusPending))
	logrus.WithFields(logrus.Fields{
		"content_id": req.ContentID,
		"caller":     caller,
		"splits":     len(req.RoyaltySplits),
	}).Info("Licensing agreement submitted")

	s.notificationService.NotifyLicensingSubmitted(ctx, agreement)
	return agreement, nil
}

// Update lets the owner amend terms while the agreement is still pending.
func (s *LicensingService) Update(ctx context.Context, caller string, req *AgreementRequest) (*models.LicensingAgreement, error) {
	content, err := s.checkSubmission(ctx, caller, req)
	if err != nil {
		return nil, err
	}
	if caller != content.OwnerID {
		return nil, forbidden("only the owner can amend the agreement for %q", req.ContentID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return casTerms(tx, req, models.AgreementStatusPending, utils.MonotonicNanos())
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, s.transitionError(ctx, req.ContentID, models.AgreementStatusPending)
		}
		return nil, err
	}

	return s.get(ctx, req.ContentID)
}

// Approve freezes the submitted split and publishes the content.
func (s *LicensingService) Approve(ctx context.Context, admin, contentID string) (*models.LicensingAgreement, error) {
	if !s.accessService.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can approve licensing agreements")
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.LicensingAgreement{}).
		Where("content_id = ? AND status = ?", contentID, models.AgreementStatusPending).
		Updates(map[string]interface{}{
			"status":           models.AgreementStatusApproved,
			"frozen_splits":    gorm.Expr("royalty_splits"),
			"reviewed_by":      admin,
			"reviewed_at":      now,
			"rejection_reason": "",
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to approve licensing agreement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionError(ctx, contentID, models.AgreementStatusApproved)
	}

	agreement, err := s.get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	metrics.LicensingTransition(string(models.AgreementStatusApproved))
	logrus.WithFields(logrus.Fields{
		"content_id": contentID,
		"admin":      admin,
	}).Info("Licensing agreement approved")

	s.notificationService.NotifyLicensingDecision(ctx, agreement)
	return agreement, nil
}

func (s *LicensingService) Reject(ctx context.Context, admin, contentID, reason string) (*models.LicensingAgreement, error) {
	if !s.accessService.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can reject licensing agreements")
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.LicensingAgreement{}).
		Where("content_id = ? AND status = ?", contentID, models.AgreementStatusPending).
		Updates(map[string]interface{}{
			"status":           models.AgreementStatusRejected,
			"reviewed_by":      admin,
			"reviewed_at":      now,
			"rejection_reason": reason,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to reject licensing agreement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionError(ctx, contentID, models.AgreementStatusRejected)
	}

	agreement, err := s.get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	metrics.LicensingTransition(string(models.AgreementStatusRejected))
	logrus.WithFields(logrus.Fields{
		"content_id": contentID,
		"admin":      admin,
		"reason":     reason,
	}).Info("Licensing agreement rejected")

	s.notificationService.NotifyLicensingDecision(ctx, agreement)
	return agreement, nil
}

// AdminOverride replaces the terms and the frozen split of an approved
// agreement without a review cycle. Past purchases keep their persisted
// distributions.
func (s *LicensingService) AdminOverride(ctx context.Context, admin string, req *AgreementRequest) (*models.LicensingAgreement, error) {
	if !s.accessService.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can override licensing agreements")
	}
	if err := validateTerms(req); err != nil {
		return nil, err
	}
	// Index 0 may be reassigned by an admin but never removed.
	if err := royalty.ValidateSplit(req.RoyaltySplits, ""); err != nil {
		return nil, splitError(err)
	}

	splits := models.RoyaltySplits(req.RoyaltySplits)
	result := s.db.WithContext(ctx).Model(&models.LicensingAgreement{}).
		Where("content_id = ? AND status = ?", req.ContentID, models.AgreementStatusApproved).
		Updates(map[string]interface{}{
			"commercial_use":             req.CommercialUse,
			"derivative_works":           req.DerivativeWorks,
			"redistribution_kind":        req.Redistribution.Kind,
			"redistribution_usage_terms": req.Redistribution.UsageTerms,
			"royalty_splits":             splits,
			"frozen_splits":              splits,
			"terms_accepted":             true,
			"reviewed_by":                admin,
			"reviewed_at":                time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to override licensing agreement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.transitionError(ctx, req.ContentID, models.AgreementStatusApproved)
	}

	logrus.WithFields(logrus.Fields{
		"content_id": req.ContentID,
		"admin":      admin,
	}).Warn("Licensing agreement overridden by admin")

	return s.get(ctx, req.ContentID)
}

// GetPublished returns the approved agreement only.
func (s *LicensingService) GetPublished(ctx context.Context, contentID string) (*models.LicensingAgreement, error) {
	var agreement models.LicensingAgreement
	err := s.db.WithContext(ctx).
		Where("content_id = ? AND status = ?", contentID, models.AgreementStatusApproved).
		First(&agreement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("licensing", "published agreement for content", contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &agreement, nil
}

// GetAgreementViews partitions the agreement for display. Rejected
// agreements are never shown; the pending view is limited to the owner and
// admins.
func (s *LicensingService) GetAgreementViews(ctx context.Context, caller, contentID string) (*AgreementViews, error) {
	views := &AgreementViews{}

	agreement, err := s.get(ctx, contentID)
	if errors.Is(err, ErrNotFound) {
		return views, nil
	}
	if err != nil {
		return nil, err
	}

	switch agreement.Status {
	case models.AgreementStatusApproved:
		views.Published = agreement
	case models.AgreementStatusPending:
		if caller != "" && (caller == agreement.OwnerID || s.accessService.IsAdmin(ctx, caller)) {
			views.Pending = agreement
		}
	}
	return views, nil
}

func (s *LicensingService) GetRoyaltySummary(ctx context.Context, contentID string) (*RoyaltySummary, error) {
	agreement, err := s.GetPublished(ctx, contentID)
	if err != nil {
		return nil, err
	}

	return &RoyaltySummary{
		ContentID:       agreement.ContentID,
		OwnerID:         agreement.OwnerID,
		CommercialUse:   agreement.CommercialUse,
		DerivativeWorks: agreement.DerivativeWorks,
		Redistribution:  agreement.Redistribution,
		Splits:          agreement.Splits(),
		ApprovedAt:      agreement.ReviewedAt,
	}, nil
}

func (s *LicensingService) ListPending(ctx context.Context, params utils.PaginationParams) ([]models.LicensingAgreement, int64, error) {
	return s.listByStatus(ctx, models.AgreementStatusPending, params)
}

func (s *LicensingService) ListApproved(ctx context.Context, params utils.PaginationParams) ([]models.LicensingAgreement, int64, error) {
	return s.listByStatus(ctx, models.AgreementStatusApproved, params)
}

// GetForReview returns an agreement in any state, for the owner or an admin.
func (s *LicensingService) GetForReview(ctx context.Context, caller, contentID string) (*models.LicensingAgreement, error) {
	agreement, err := s.get(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if caller != agreement.OwnerID && !s.accessService.IsAdmin(ctx, caller) {
		return nil, forbidden("agreement for %q is not visible to %s", contentID, caller)
	}
	return agreement, nil
}

func (s *LicensingService) listByStatus(ctx context.Context, status models.AgreementStatus, params utils.PaginationParams) ([]models.LicensingAgreement, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LicensingAgreement{}).Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licensing agreements: %w", err)
	}

	allowedSortFields := []string{"submitted_at", "created_at", "updated_at", "reviewed_at"}
	if params.Sort == "" || params.Sort == "created_at" {
		params.Sort = "submitted_at"
	}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var agreements []models.LicensingAgreement
	if err := query.Find(&agreements).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licensing agreements: %w", err)
	}

	return agreements, total, nil
}

func (s *LicensingService) get(ctx context.Context, contentID string) (*models.LicensingAgreement, error) {
	var agreement models.LicensingAgreement
	err := s.db.WithContext(ctx).Where("content_id = ?", contentID).First(&agreement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("licensing", "licensing agreement for content", contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &agreement, nil
}

// transitionError explains why a compare-and-swap toward target matched no row.
func (s *LicensingService) transitionError(ctx context.Context, contentID string, target models.AgreementStatus) error {
	current, err := s.get(ctx, contentID)
	if err != nil {
		return err
	}
	return resourceError(ErrInvalidTransition, i18n.KeyLicensingInvalidTransition,
		"agreement for %q is %s, cannot move to %s", contentID, current.Status, target)
}

func (s *LicensingService) checkSubmission(ctx context.Context, caller string, req *AgreementRequest) (*models.Content, error) {
	if err := validateTerms(req); err != nil {
		return nil, err
	}
	if !req.TermsAccepted {
		return nil, validationError("licensing terms must be accepted")
	}

	content, err := s.contents.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	if caller != content.OwnerID && !s.accessService.IsAdmin(ctx, caller) {
		return nil, forbidden("only the owner can submit licensing terms for %q", req.ContentID)
	}
	if err := royalty.ValidateSplit(req.RoyaltySplits, content.OwnerID); err != nil {
		return nil, splitError(err)
	}
	return content, nil
}

func validateTerms(req *AgreementRequest) error {
	if req == nil {
		return validationError("agreement is required")
	}
	if req.ContentID == "" {
		return validationError("content_id is required")
	}
	if !req.DerivativeWorks.Valid() {
		return validationError("unknown derivative works mode %q", req.DerivativeWorks)
	}
	if err := req.Redistribution.Validate(); err != nil {
		return validationError("%v", err)
	}
	return nil
}

func newAgreement(owner string, req *AgreementRequest, submittedAt int64) *models.LicensingAgreement {
	return &models.LicensingAgreement{
		ContentID:       req.ContentID,
		OwnerID:         owner,
		CommercialUse:   req.CommercialUse,
		DerivativeWorks: req.DerivativeWorks,
		Redistribution:  req.Redistribution,
		RoyaltySplits:   models.RoyaltySplits(req.RoyaltySplits),
		TermsAccepted:   req.TermsAccepted,
		SubmittedAt:     submittedAt,
		Status:          models.AgreementStatusPending,
	}
}

// casTerms writes new pending terms if the agreement is still in from.
func casTerms(tx *gorm.DB, req *AgreementRequest, from models.AgreementStatus, submittedAt int64) error {
	result := tx.Model(&models.LicensingAgreement{}).
		Where("content_id = ? AND status = ?", req.ContentID, from).
		Updates(map[string]interface{}{
			"commercial_use":             req.CommercialUse,
			"derivative_works":           req.DerivativeWorks,
			"redistribution_kind":        req.Redistribution.Kind,
			"redistribution_usage_terms": req.Redistribution.UsageTerms,
			"royalty_splits":             models.RoyaltySplits(req.RoyaltySplits),
			"frozen_splits":              nil,
			"terms_accepted":             req.TermsAccepted,
			"submitted_at":               submittedAt,
			"status":                     models.AgreementStatusPending,
			"reviewed_by":                "",
			"reviewed_at":                nil,
			"rejection_reason":           "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update licensing agreement: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return resourceError(ErrDuplicate, i18n.KeyLicensingDuplicate, "agreement for %q changed concurrently", req.ContentID)
	}
	return nil
}
