// internal/router/router.go
package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/handlers"
	"github.com/javajoker/creative-settlement/internal/metrics"
	"github.com/javajoker/creative-settlement/internal/middleware"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

// Services is the wired service graph behind the HTTP surface.
type Services struct {
	Notification *services.NotificationService
	Storage      *services.StorageService
	Access       *services.AccessService
	Content      *services.ContentService
	Licensing    *services.LicensingService
	Payment      *services.PaymentService
	Settlement   *services.SettlementService
	Admin        *services.AdminService
}

func NewServices(db *gorm.DB, cfg *config.Config, gateway services.CheckoutGateway) (*Services, error) {
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	notificationService := services.NewNotificationService(db)
	accessService := services.NewAccessService(db, notificationService, cfg.Access.RequireUserApproval)
	settlementService := services.NewSettlementService(db, cfg, gateway, accessService, notificationService)
	contentService := services.NewContentService(db, storageService, accessService, settlementService)

	return &Services{
		Notification: notificationService,
		Storage:      storageService,
		Access:       accessService,
		Content:      contentService,
		Licensing:    services.NewLicensingService(db, contentService, accessService, notificationService),
		Payment:      services.NewPaymentService(db, cfg, gateway, contentService, accessService),
		Settlement:   settlementService,
		Admin:        services.NewAdminService(db, notificationService),
	}, nil
}

type Options struct {
	RateLimit bool
	AuditLog  bool
}

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	gateway := services.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.AllowedCountries)

	svc, err := NewServices(db, cfg, gateway)
	if err != nil {
		return nil, err
	}
	if err := svc.Payment.LoadGatewaySettings(context.Background()); err != nil {
		logrus.WithError(err).Warn("Failed to load stored payment gateway settings")
	}

	return Setup(db, cfg, svc, Options{RateLimit: true, AuditLog: true}), nil
}

func Setup(db *gorm.DB, cfg *config.Config, svc *Services, opts Options) *gin.Engine {
	// Initialize handlers
	accessHandler := handlers.NewAccessHandler(svc.Access)
	contentHandler := handlers.NewContentHandler(svc.Content, svc.Storage)
	licensingHandler := handlers.NewLicensingHandler(svc.Licensing, svc.Settlement)
	paymentHandler := handlers.NewPaymentHandler(svc.Payment, svc.Settlement)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Licensing, svc.Settlement, svc.Access, svc.Payment, svc.Notification)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.I18nMiddleware())
	if cfg.Metrics.Enabled {
		r.Use(metrics.Middleware())
	}
	if opts.RateLimit {
		r.Use(middleware.GeneralRateLimit())
	}
	if opts.AuditLog {
		r.Use(middleware.AuditLogMiddleware(db))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"version":            "1.0.0",
			"gateway_configured": svc.Payment.IsGatewayConfigured(),
		})
	})

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, metrics.Handler())
	}

	limit := func(h gin.HandlerFunc) gin.HandlerFunc {
		if opts.RateLimit {
			return h
		}
		return func(c *gin.Context) { c.Next() }
	}
	auth := middleware.AuthRequired()
	approved := middleware.ApprovalRequired(svc.Access)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Access control routes
		access := v1.Group("/access")
		access.Use(auth)
		{
			access.POST("/initialize", accessHandler.Initialize)
			access.POST("/request", accessHandler.RequestApproval)
			access.GET("/me", accessHandler.GetMyAccess)
		}

		// Marketplace (public)
		v1.GET("/marketplace", contentHandler.ListMarketplace)

		// Content routes
		content := v1.Group("/content")
		{
			content.GET("/:id", middleware.OptionalAuth(), contentHandler.GetContent)

			// Authenticated routes
			protected := content.Group("")
			protected.Use(auth)
			{
				protected.GET("/mine", contentHandler.ListMyContent)
				protected.GET("/:id/download", contentHandler.GetDownload)
				protected.POST("", approved, contentHandler.CreateContent)
				protected.PUT("/:id", contentHandler.UpdateContent)
				protected.POST("/upload", limit(middleware.UploadRateLimit()), approved, contentHandler.UploadBlob)
			}
		}

		// Licensing routes
		licensing := v1.Group("/licensing")
		{
			licensing.GET("/:contentId", middleware.OptionalAuth(), licensingHandler.GetAgreement)
			licensing.GET("/:contentId/summary", licensingHandler.GetRoyaltySummary)
			licensing.GET("/:contentId/royalty-preview", middleware.OptionalAuth(), licensingHandler.PreviewDistribution)

			protected := licensing.Group("")
			protected.Use(auth)
			{
				protected.POST("", licensingHandler.SubmitAgreement)
				protected.PUT("/:contentId", licensingHandler.UpdateAgreement)
			}
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(auth)
		{
			payments.POST("/checkout", limit(middleware.CheckoutRateLimit()), approved, paymentHandler.CreateCheckout)
		}

		// Purchase routes; settlement never consults the approval gate.
		purchases := v1.Group("/purchases")
		purchases.Use(auth)
		{
			purchases.POST("/settle", limit(middleware.SettlementRateLimit()), paymentHandler.SettlePurchase)
			purchases.GET("/me", paymentHandler.GetMyPurchases)
			purchases.GET("/access/:contentId", paymentHandler.HasAccess)
		}

		v1.GET("/earnings/me", auth, paymentHandler.GetMyEarnings)

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(auth, middleware.AdminRequired(svc.Access))
		{
			admin.GET("/dashboard", adminHandler.GetDashboard)
			admin.GET("/analytics", adminHandler.GetAnalytics)
			admin.GET("/settings", adminHandler.GetSettings)
			admin.GET("/audit-logs", adminHandler.ListAuditLogs)

			// Licensing review
			adminLicensing := admin.Group("/licensing")
			{
				adminLicensing.GET("/pending", adminHandler.ListPendingAgreements)
				adminLicensing.GET("/approved", adminHandler.ListApprovedAgreements)
				adminLicensing.GET("/:contentId", adminHandler.GetAgreement)
				adminLicensing.PUT("/:contentId/approve", adminHandler.ApproveAgreement)
				adminLicensing.PUT("/:contentId/reject", adminHandler.RejectAgreement)
				adminLicensing.PUT("/:contentId/override", adminHandler.OverrideAgreement)
			}

			// Purchases
			adminPurchases := admin.Group("/purchases")
			{
				adminPurchases.GET("", adminHandler.ListPurchases)
				adminPurchases.GET("/:id/distribution", adminHandler.GetDistribution)
			}

			// Access registry
			admin.GET("/approvals", adminHandler.ListApprovals)
			admin.PUT("/approvals/:identity", adminHandler.SetApproval)
			admin.PUT("/roles/:identity", adminHandler.AssignRole)

			// Payment gateway
			admin.GET("/payments/stripe", adminHandler.GetStripeSettings)
			admin.PUT("/payments/stripe", adminHandler.ConfigureStripe)

			// Notifications
			admin.GET("/notifications", adminHandler.ListNotifications)
			admin.PUT("/notifications/:id/read", adminHandler.MarkNotificationRead)
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", "./uploads")
	}

	return r
}
