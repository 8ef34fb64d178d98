// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error

	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	}

	// Connect to database
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	DB, err = gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool; SQLite serializes writers anyway.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", cfg.Driver).Info("Database connection established successfully")
	return DB, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// Models lists every table the engine owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Content{},
		&models.LicensingAgreement{},
		&models.PurchaseRecord{},
		&models.RoyaltyDistribution{},
		&models.UserApproval{},
		&models.UserRole{},
		&models.AdminSettings{},
		&models.AuditLog{},
		&models.AdminNotification{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Content indexes
		"CREATE INDEX IF NOT EXISTS idx_contents_category ON contents(category)",
		"CREATE INDEX IF NOT EXISTS idx_contents_created_at ON contents(created_at DESC)",

		// Licensing indexes
		"CREATE INDEX IF NOT EXISTS idx_licensing_agreements_status_submitted ON licensing_agreements(status, submitted_at)",

		// Purchase indexes
		"CREATE INDEX IF NOT EXISTS idx_purchase_records_buyer_content ON purchase_records(buyer_id, content_id)",
		"CREATE INDEX IF NOT EXISTS idx_royalty_distributions_identity_status ON royalty_distributions(identity, status)",

		// Admin indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_identity_action ON audit_logs(identity, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_admin_notifications_status ON admin_notifications(status, priority)",
		"CREATE INDEX IF NOT EXISTS idx_admin_notifications_type ON admin_notifications(type, created_at DESC)",
	}

	if db.Dialector.Name() == "postgres" {
		// Full-text search index
		indexes = append(indexes,
			"CREATE INDEX IF NOT EXISTS idx_contents_search ON contents USING GIN(to_tsvector('english', title || ' ' || description))")
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}

	return nil
}

// SeedInitialData installs default settings. The first admin is never
// seeded; it is claimed through access initialization.
func SeedInitialData(db *gorm.DB, cfg *config.Config) error {
	logrus.Info("Seeding initial data...")

	defaultSettings := []models.AdminSettings{
		{
			Category:    "general",
			Key:         "platform_name",
			Value:       models.JSONB{"value": "Creative Marketplace"},
			DataType:    "string",
			Description: "Platform name displayed to users",
		},
		{
			Category:    "payments",
			Key:         "platform_fee_bps",
			Value:       models.JSONB{"value": cfg.Payment.PlatformFeeBps},
			DataType:    "integer",
			Description: "Platform fee in basis points withheld before royalty distribution",
		},
		{
			Category:    "access",
			Key:         "require_user_approval",
			Value:       models.JSONB{"value": cfg.Access.RequireUserApproval},
			DataType:    "boolean",
			Description: "Require approval before uploading content or opening checkout",
		},
	}

	for _, setting := range defaultSettings {
		var count int64
		db.Model(&models.AdminSettings{}).
			Where(&models.AdminSettings{Category: setting.Category, Key: setting.Key}).
			Count(&count)

		if count == 0 {
			setting.UpdatedBy = "system"
			if err := db.Create(&setting).Error; err != nil {
				logrus.WithError(err).Warnf("Failed to create setting %s.%s", setting.Category, setting.Key)
			}
		}
	}

	logrus.Info("Initial data seeding completed")
	return nil
}
