// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/metrics"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/royalty"
	"github.com/javajoker/creative-settlement/internal/utils"
)

// SettlementService turns a completed checkout session into exactly one
// purchase record and its royalty ledger lines.
type SettlementService struct {
	db                  *gorm.DB
	config              *config.Config
	gateway             CheckoutGateway
	accessService       *AccessService
	notificationService *NotificationService
	group               singleflight.Group
}

type SettlePurchaseRequest struct {
	ContentID string `json:"content_id" validate:"required,content_id"`
	SessionID string `json:"session_id" validate:"required,max=255"`
}

type SettlementResult struct {
	Purchase     *models.PurchaseRecord       `json:"purchase"`
	Distribution []models.RoyaltyDistribution `json:"distribution"`
	Replayed     bool                         `json:"-"`
}

type DistributionPreview struct {
	ContentID     string                 `json:"content_id"`
	Status        models.AgreementStatus `json:"status"`
	SalePrice     int64                  `json:"sale_price"`
	PlatformFee   int64                  `json:"platform_fee"`
	Distributable int64                  `json:"distributable"`
	Currency      string                 `json:"currency"`
	Shares        []royalty.Share        `json:"shares"`
}

type EarningsSummary struct {
	Identity      string `json:"identity"`
	TotalAccrued  int64  `json:"total_accrued"`
	TotalPaid     int64  `json:"total_paid"`
	PurchaseCount int64  `json:"purchase_count"`
	ContentCount  int64  `json:"content_count"`
	LastAccruedAt *int64 `json:"last_accrued_at,omitempty"`
}

type PurchaseFilter struct {
	utils.PaginationParams
	ContentID string
	BuyerID   string
}

func NewSettlementService(db *gorm.DB, config *config.Config, gateway CheckoutGateway, accessService *AccessService, notificationService *NotificationService) *SettlementService {
	return &SettlementService{
		db:                  db,
		config:              config,
		gateway:             gateway,
		accessService:       accessService,
		notificationService: notificationService,
	}
}

// SettlePurchase is idempotent per (contentID, sessionID). Concurrent calls
// for the same key in this process share one execution; the unique index on
// purchase_records covers other processes.
func (s *SettlementService) SettlePurchase(ctx context.Context, contentID, sessionID, buyer string) (*SettlementResult, error) {
	if contentID == "" || sessionID == "" {
		return nil, validationError("content_id and session_id are required")
	}
	if buyer == "" {
		return nil, validationError("buyer identity is required")
	}

	// The flight outlives any single caller, so it runs detached from the
	// caller's cancellation under its own deadline. Each caller still stops
	// waiting when its own context ends.
	key := contentID + "|" + sessionID + "|" + buyer
	ch := s.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout())
		defer cancel()
		return s.settle(flightCtx, contentID, sessionID, buyer)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(*SettlementResult)
		if res.Shared {
			// Only one caller performed the insert; the others observe it.
			copied := *result
			return &copied, nil
		}
		return result, nil
	}
}

func (s *SettlementService) settle(ctx context.Context, contentID, sessionID, buyer string) (*SettlementResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"content_id": contentID,
		"session_id": sessionID,
		"buyer":      buyer,
	})
	log.WithField("status", "requested").Info("Settlement requested")

	existing, err := s.findPurchase(ctx, s.db.WithContext(ctx), contentID, sessionID)
	if err != nil {
		return nil, s.fail(log, metrics.OutcomeInternalFailure, err)
	}
	if existing != nil {
		return s.replay(log, existing, buyer)
	}

	status, err := s.verifySession(ctx, sessionID)
	if err != nil {
		outcome := metrics.OutcomeGatewayError
		if errors.Is(err, ErrPaymentNotCompleted) {
			outcome = metrics.OutcomeNotCompleted
		}
		return nil, s.fail(log, outcome, err)
	}
	if status.BuyerIdentity != "" && status.BuyerIdentity != buyer {
		return nil, s.fail(log, metrics.OutcomeIdentity,
			fmt.Errorf("%w: session %s belongs to another buyer", ErrIdentityMismatch, sessionID))
	}
	if status.ContentID != contentID {
		return nil, s.fail(log, metrics.OutcomeIdentity,
			fmt.Errorf("%w: session %s was opened for content %q, not %q", ErrIdentityMismatch, sessionID, status.ContentID, contentID))
	}
	log.WithFields(logrus.Fields{
		"status":       "gateway_verified",
		"amount_total": status.AmountTotal,
		"currency":     status.Currency,
	}).Info("Checkout session verified")

	var purchaseID uuid.UUID
	replayed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agreement models.LicensingAgreement
		err := tx.Where("content_id = ? AND status = ?", contentID, models.AgreementStatusApproved).
			First(&agreement).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %q", ErrNoLicense, contentID)
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		var content models.Content
		err = tx.Where("id = ?", contentID).First(&content).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("content", "content", contentID)
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		if !strings.EqualFold(status.Currency, content.Currency) || status.AmountTotal < content.Price {
			return fmt.Errorf("%w: session %s paid %d %s, content %q costs %d %s", ErrPaymentNotCompleted,
				sessionID, status.AmountTotal, status.Currency, contentID, content.Price, content.Currency)
		}

		fee := royalty.PlatformFee(content.Price, s.config.Payment.PlatformFeeBps)
		shares, err := royalty.ComputeDistribution(content.Price, fee, agreement.Splits())
		if err != nil {
			return fmt.Errorf("failed to compute distribution: %w", err)
		}

		purchase := &models.PurchaseRecord{
			ContentID:   contentID,
			SessionID:   sessionID,
			BuyerID:     buyer,
			SalePrice:   content.Price,
			PlatformFee: fee,
			Currency:    content.Currency,
			PurchasedAt: utils.MonotonicNanos(),
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).Create(purchase)
		if result.Error != nil {
			return fmt.Errorf("failed to record purchase: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			winner, err := s.findPurchase(ctx, tx, contentID, sessionID)
			if err != nil {
				return err
			}
			if winner == nil {
				return fmt.Errorf("purchase for session %s vanished after conflict", sessionID)
			}
			if winner.BuyerID != buyer {
				return fmt.Errorf("%w: session %s was settled for another buyer", ErrIdentityMismatch, sessionID)
			}
			purchaseID = winner.ID
			replayed = true
			return nil
		}
		log.WithFields(logrus.Fields{
			"status":      "recorded",
			"purchase_id": purchase.ID,
		}).Info("Purchase recorded")

		lines := make([]models.RoyaltyDistribution, 0, len(shares))
		for i, share := range shares {
			lines = append(lines, models.RoyaltyDistribution{
				PurchaseID:  purchase.ID,
				ContentID:   contentID,
				Identity:    share.Identity,
				Position:    i,
				BasisPoints: share.BasisPoints,
				Amount:      share.Amount,
				Status:      models.DistributionStatusAccrued,
			})
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return fmt.Errorf("failed to record distribution: %w", err)
			}
		}

		purchaseID = purchase.ID
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoLicense):
			log.WithError(err).WithField("alert", true).Error("Completed payment for content without an approved licensing agreement")
			s.notificationService.RaiseSettlementAlert(ctx, contentID, sessionID, buyer, err)
			return nil, s.fail(log, metrics.OutcomeNoLicense, err)
		case errors.Is(err, ErrIdentityMismatch):
			return nil, s.fail(log, metrics.OutcomeIdentity, err)
		case errors.Is(err, ErrPaymentNotCompleted):
			return nil, s.fail(log, metrics.OutcomeNotCompleted, err)
		default:
			return nil, s.fail(log, metrics.OutcomeInternalFailure, err)
		}
	}

	settled, err := s.loadSettlement(ctx, purchaseID)
	if err != nil {
		return nil, s.fail(log, metrics.OutcomeInternalFailure, err)
	}

	if replayed {
		settled.Replayed = true
		metrics.SettlementOutcome(metrics.OutcomeReplayed)
		log.WithField("status", "replayed").Info("Settlement lost the insert race, returning recorded purchase")
		return settled, nil
	}

	metrics.SettlementOutcome(metrics.OutcomeSettled)
	log.WithFields(logrus.Fields{
		"status":       "distributed",
		"sale_price":   settled.Purchase.SalePrice,
		"platform_fee": settled.Purchase.PlatformFee,
		"shares":       len(settled.Distribution),
	}).Info("Settlement completed")
	return settled, nil
}

func (s *SettlementService) gatewayTimeout() time.Duration {
	if s.config.Payment.GatewayTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.config.Payment.GatewayTimeout) * time.Second
}

// flightTimeout bounds one settlement: the gateway lookup plus the ledger
// transaction.
func (s *SettlementService) flightTimeout() time.Duration {
	return 3 * s.gatewayTimeout()
}

func (s *SettlementService) verifySession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	status, err := s.gateway.GetSessionStatus(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrGateway) || errors.Is(err, ErrGatewayNotConfigured) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if status.State != SessionCompleted {
		reason := status.FailureReason
		if reason == "" {
			reason = string(status.State)
		}
		return nil, fmt.Errorf("%w: session %s is %s: %s", ErrPaymentNotCompleted, sessionID, status.State, reason)
	}
	return status, nil
}

func (s *SettlementService) replay(log *logrus.Entry, existing *models.PurchaseRecord, buyer string) (*SettlementResult, error) {
	if existing.BuyerID != buyer {
		return nil, s.fail(log, metrics.OutcomeIdentity,
			fmt.Errorf("%w: session %s was settled for another buyer", ErrIdentityMismatch, existing.SessionID))
	}

	metrics.SettlementOutcome(metrics.OutcomeReplayed)
	log.WithFields(logrus.Fields{
		"status":      "replayed",
		"purchase_id": existing.ID,
	}).Info("Settlement already recorded")

	return &SettlementResult{
		Purchase:     existing,
		Distribution: existing.Distribution,
		Replayed:     true,
	}, nil
}

func (s *SettlementService) fail(log *logrus.Entry, outcome string, err error) error {
	metrics.SettlementOutcome(outcome)
	log.WithError(err).WithFields(logrus.Fields{
		"status":  "failed",
		"outcome": outcome,
	}).Warn("Settlement failed")
	return err
}

func (s *SettlementService) findPurchase(ctx context.Context, db *gorm.DB, contentID, sessionID string) (*models.PurchaseRecord, error) {
	var purchase models.PurchaseRecord
	err := db.Preload("Distribution", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("content_id = ? AND session_id = ?", contentID, sessionID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &purchase, nil
}

func (s *SettlementService) loadSettlement(ctx context.Context, purchaseID uuid.UUID) (*SettlementResult, error) {
	var purchase models.PurchaseRecord
	err := s.db.WithContext(ctx).Preload("Distribution", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("id = ?", purchaseID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("purchase", "purchase", purchaseID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &SettlementResult{Purchase: &purchase, Distribution: purchase.Distribution}, nil
}

// GetPurchasesFor lists every purchase made by identity, newest first.
func (s *SettlementService) GetPurchasesFor(ctx context.Context, identity string, params utils.PaginationParams) ([]models.PurchaseRecord, int64, error) {
	return s.ListPurchases(ctx, PurchaseFilter{PaginationParams: params, BuyerID: identity})
}

func (s *SettlementService) HasAccess(ctx context.Context, identity, contentID string) (bool, error) {
	if identity == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PurchaseRecord{}).
		Where("buyer_id = ? AND content_id = ?", identity, contentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}

func (s *SettlementService) ListPurchases(ctx context.Context, filter PurchaseFilter) ([]models.PurchaseRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PurchaseRecord{})
	if filter.BuyerID != "" {
		query = query.Where("buyer_id = ?", filter.BuyerID)
	}
	if filter.ContentID != "" {
		query = query.Where("content_id = ?", filter.ContentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	params := filter.PaginationParams
	if params.Sort == "" || params.Sort == "created_at" {
		params.Sort = "purchased_at"
	}
	allowedSortFields := []string{"purchased_at", "sale_price", "created_at"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var purchases []models.PurchaseRecord
	if err := query.Find(&purchases).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchases: %w", err)
	}

	return purchases, total, nil
}

func (s *SettlementService) GetDistribution(ctx context.Context, purchaseID uuid.UUID) (*SettlementResult, error) {
	return s.loadSettlement(ctx, purchaseID)
}

// PreviewDistribution estimates shares from the current split, pending or
// approved. salePrice <= 0 uses the content's listed price.
func (s *SettlementService) PreviewDistribution(ctx context.Context, caller, contentID string, salePrice int64) (*DistributionPreview, error) {
	var agreement models.LicensingAgreement
	err := s.db.WithContext(ctx).Where("content_id = ?", contentID).First(&agreement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("licensing", "licensing agreement for content", contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if agreement.Status == models.AgreementStatusRejected {
		return nil, notFound("licensing", "active licensing agreement for content", contentID)
	}
	if agreement.Status == models.AgreementStatusPending &&
		caller != agreement.OwnerID && !s.accessService.IsAdmin(ctx, caller) {
		return nil, forbidden("pending agreement for %q is not visible to %s", contentID, caller)
	}

	var content models.Content
	err = s.db.WithContext(ctx).Where("id = ?", contentID).First(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("content", "content", contentID)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	price := salePrice
	if price <= 0 {
		price = content.Price
	}
	fee := royalty.PlatformFee(price, s.config.Payment.PlatformFeeBps)
	shares, err := royalty.ComputeDistribution(price, fee, agreement.Splits())
	if err != nil {
		return nil, splitError(err)
	}

	return &DistributionPreview{
		ContentID:     contentID,
		Status:        agreement.Status,
		SalePrice:     price,
		PlatformFee:   fee,
		Distributable: price - fee,
		Currency:      content.Currency,
		Shares:        shares,
	}, nil
}

// GetEarnings totals the ledger lines accrued to identity.
func (s *SettlementService) GetEarnings(ctx context.Context, identity string) (*EarningsSummary, error) {
	summary := &EarningsSummary{Identity: identity}
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.RoyaltyDistribution{}).
		Where("identity = ? AND status = ?", identity, models.DistributionStatusAccrued).
		Select("COALESCE(SUM(amount), 0)").Scan(&summary.TotalAccrued).Error; err != nil {
		return nil, fmt.Errorf("failed to sum accrued earnings: %w", err)
	}
	if err := db.Model(&models.RoyaltyDistribution{}).
		Where("identity = ? AND status = ?", identity, models.DistributionStatusPaid).
		Select("COALESCE(SUM(amount), 0)").Scan(&summary.TotalPaid).Error; err != nil {
		return nil, fmt.Errorf("failed to sum paid earnings: %w", err)
	}
	if err := db.Model(&models.RoyaltyDistribution{}).
		Where("identity = ?", identity).
		Distinct("purchase_id").Count(&summary.PurchaseCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}
	if err := db.Model(&models.RoyaltyDistribution{}).
		Where("identity = ?", identity).
		Distinct("content_id").Count(&summary.ContentCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}

	if summary.PurchaseCount > 0 {
		var last int64
		if err := db.Model(&models.PurchaseRecord{}).
			Where("id IN (?)", db.Model(&models.RoyaltyDistribution{}).Select("purchase_id").Where("identity = ?", identity)).
			Select("COALESCE(MAX(purchased_at), 0)").Scan(&last).Error; err != nil {
			return nil, fmt.Errorf("failed to read last purchase: %w", err)
		}
		summary.LastAccruedAt = &last
	}

	return summary, nil
}
