// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/utils"
)

const (
	settingsCategoryPayments = "payments"
	settingsKeyStripe        = "stripe"
)

// PaymentService opens hosted checkout sessions. It keeps no local state per
// session; settlement reads the outcome back from the gateway.
type PaymentService struct {
	db            *gorm.DB
	config        *config.Config
	gateway       CheckoutGateway
	contents      ContentStore
	accessService *AccessService
}

type CreateCheckoutRequest struct {
	Items      []ShoppingItem `json:"items" validate:"required,min=1,dive"`
	SuccessURL string         `json:"success_url" validate:"required,url"`
	CancelURL  string         `json:"cancel_url" validate:"required,url"`
}

type ContentCheckoutRequest struct {
	ContentID  string `json:"content_id" validate:"required,content_id"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`
}

type GatewaySettingsRequest struct {
	SecretKey        string   `json:"secret_key" validate:"required,startswith=sk_"`
	AllowedCountries []string `json:"allowed_countries" validate:"omitempty,dive,len=2"`
}

// GatewaySettings never carries the secret key.
type GatewaySettings struct {
	Configured       bool       `json:"configured"`
	KeyFingerprint   string     `json:"key_fingerprint,omitempty"`
	PublishableKey   string     `json:"publishable_key,omitempty"`
	AllowedCountries []string   `json:"allowed_countries"`
	Currency         string     `json:"currency"`
	UpdatedBy        string     `json:"updated_by,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

func NewPaymentService(db *gorm.DB, config *config.Config, gateway CheckoutGateway, contents ContentStore, accessService *AccessService) *PaymentService {
	return &PaymentService{
		db:            db,
		config:        config,
		gateway:       gateway,
		contents:      contents,
		accessService: accessService,
	}
}

// LoadGatewaySettings applies a key stored by an admin over the environment
// configuration.
func (s *PaymentService) LoadGatewaySettings(ctx context.Context) error {
	setting, err := s.storedSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	key, err := s.openStoredKey(setting)
	if err != nil {
		logrus.WithError(err).Warn("Stored Stripe key cannot be opened, keeping environment configuration")
		return nil
	}
	if key == "" {
		return nil
	}
	s.gateway.Configure(key, jsonStrings(setting.Value["allowed_countries"]))
	logrus.WithField("updated_by", setting.UpdatedBy).Info("Stripe configuration loaded from settings")
	return nil
}

// CreateCheckoutSession passes shopping items to the gateway unchanged.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, buyer string, req *CreateCheckoutRequest) (*SessionReference, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%v", err)
	}
	return s.createSession(ctx, &CheckoutRequest{
		Buyer:      buyer,
		Items:      req.Items,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
}

// CreateContentCheckout prices a checkout from a listed content record and
// tags the session with its id, so settlement can cross-check it.
func (s *PaymentService) CreateContentCheckout(ctx context.Context, buyer string, req *ContentCheckoutRequest) (*SessionReference, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%v", err)
	}

	content, err := s.contents.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}

	var approved int64
	err = s.db.WithContext(ctx).Model(&models.LicensingAgreement{}).
		Where("content_id = ? AND status = ?", content.ID, models.AgreementStatusApproved).
		Count(&approved).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if approved == 0 {
		return nil, notFound("content", "listed content", content.ID)
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.frontendURL("/payment-success", content.ID)
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.frontendURL("/payment-cancelled", content.ID)
	}

	currency := content.Currency
	if currency == "" {
		currency = s.config.Payment.Currency
	}

	return s.createSession(ctx, &CheckoutRequest{
		Buyer: buyer,
		Items: []ShoppingItem{{
			ProductName:        content.Title,
			ProductDescription: content.Description,
			Currency:           currency,
			Quantity:           1,
			PriceInCents:       content.Price,
		}},
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   map[string]string{"content_id": content.ID},
	})
}

func (s *PaymentService) ConfigureGateway(ctx context.Context, admin string, req *GatewaySettingsRequest) (*GatewaySettings, error) {
	if !s.accessService.IsAdmin(ctx, admin) {
		return nil, forbidden("only admins can configure the payment gateway")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError("%v", err)
	}

	sealed, err := utils.SealSecret(s.settingsKey(), req.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal gateway key: %w", err)
	}

	countries := make([]interface{}, 0, len(req.AllowedCountries))
	for _, c := range req.AllowedCountries {
		countries = append(countries, strings.ToUpper(c))
	}

	setting := &models.AdminSettings{
		Category: settingsCategoryPayments,
		Key:      settingsKeyStripe,
		Value: models.JSONB{
			"secret_key_sealed": sealed,
			"allowed_countries": countries,
		},
		DataType:    "json",
		Description: "Stripe checkout configuration",
		UpdatedBy:   admin,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save gateway settings: %w", err)
	}

	s.gateway.Configure(req.SecretKey, req.AllowedCountries)

	logrus.WithFields(logrus.Fields{
		"admin":       admin,
		"countries":   req.AllowedCountries,
		"fingerprint": utils.Fingerprint(req.SecretKey),
	}).Info("Stripe configuration updated")

	return s.GetGatewaySettings(ctx)
}

func (s *PaymentService) IsGatewayConfigured() bool {
	return s.gateway.IsConfigured()
}

func (s *PaymentService) GetGatewaySettings(ctx context.Context) (*GatewaySettings, error) {
	settings := &GatewaySettings{
		Configured:       s.gateway.IsConfigured(),
		KeyFingerprint:   utils.Fingerprint(s.config.Payment.StripeSecretKey),
		PublishableKey:   s.config.Payment.StripePublishableKey,
		AllowedCountries: s.config.Payment.AllowedCountries,
		Currency:         s.config.Payment.Currency,
	}

	stored, err := s.storedSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	key, err := s.openStoredKey(stored)
	if err != nil {
		logrus.WithError(err).Warn("Stored Stripe key cannot be opened")
	}
	settings.KeyFingerprint = utils.Fingerprint(key)
	settings.AllowedCountries = jsonStrings(stored.Value["allowed_countries"])
	settings.UpdatedBy = stored.UpdatedBy
	updatedAt := stored.UpdatedAt
	settings.UpdatedAt = &updatedAt
	return settings, nil
}

func (s *PaymentService) createSession(ctx context.Context, req *CheckoutRequest) (*SessionReference, error) {
	if !s.gateway.IsConfigured() {
		return nil, ErrGatewayNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	ref, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("buyer", req.Buyer).Warn("Checkout session creation failed")
		if errors.Is(err, ErrGateway) || errors.Is(err, ErrGatewayNotConfigured) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	logrus.WithFields(logrus.Fields{
		"buyer":      req.Buyer,
		"session_id": ref.ID,
		"items":      len(req.Items),
	}).Info("Checkout session created")

	return ref, nil
}

func (s *PaymentService) gatewayTimeout() time.Duration {
	if s.config.Payment.GatewayTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.config.Payment.GatewayTimeout) * time.Second
}

// The session id placeholder is substituted by Stripe on redirect and must
// stay unescaped.
func (s *PaymentService) frontendURL(path, contentID string) string {
	return fmt.Sprintf("%s%s?session_id={CHECKOUT_SESSION_ID}&content_id=%s",
		strings.TrimRight(s.config.Frontend.BaseURL, "/"), path, url.QueryEscape(contentID))
}

func (s *PaymentService) storedSettings(ctx context.Context) (*models.AdminSettings, error) {
	var setting models.AdminSettings
	err := s.db.WithContext(ctx).
		Where(&models.AdminSettings{Category: settingsCategoryPayments, Key: settingsKeyStripe}).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("setting", "setting", settingsCategoryPayments+"/"+settingsKeyStripe)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &setting, nil
}

func (s *PaymentService) settingsKey() string {
	if s.config.Payment.SettingsKey != "" {
		return s.config.Payment.SettingsKey
	}
	return s.config.JWT.SecretKey
}

// The stored key is sealed at rest and opened only to configure the gateway.
func (s *PaymentService) openStoredKey(setting *models.AdminSettings) (string, error) {
	sealed, _ := setting.Value["secret_key_sealed"].(string)
	if sealed == "" {
		return "", nil
	}
	return utils.OpenSecret(s.settingsKey(), sealed)
}

func jsonStrings(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
