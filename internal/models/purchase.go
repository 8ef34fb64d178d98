// internal/models/purchase.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseRecord is the permanent access grant. (content_id, session_id) is
// unique, which makes settlement idempotent across processes.
type PurchaseRecord struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ContentID   string    `json:"content_id" gorm:"size:128;not null;uniqueIndex:idx_purchase_content_session,priority:1"`
	SessionID   string    `json:"session_id" gorm:"size:255;not null;uniqueIndex:idx_purchase_content_session,priority:2"`
	BuyerID     string    `json:"buyer_id" gorm:"size:128;not null;index"`
	SalePrice   int64     `json:"sale_price" gorm:"not null"`
	PlatformFee int64     `json:"platform_fee" gorm:"not null"`
	Currency    string    `json:"currency" gorm:"size:3;not null"`
	PurchasedAt int64     `json:"purchased_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	Distribution []RoyaltyDistribution `json:"distribution,omitempty" gorm:"foreignKey:PurchaseID"`
}

func (p *PurchaseRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// RoyaltyDistribution is one accrued ledger line of a settled purchase.
type RoyaltyDistribution struct {
	ID          uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	PurchaseID  uuid.UUID          `json:"purchase_id" gorm:"type:uuid;not null;index"`
	ContentID   string             `json:"content_id" gorm:"size:128;not null;index"`
	Identity    string             `json:"identity" gorm:"size:128;not null;index"`
	Position    int                `json:"position" gorm:"not null"`
	BasisPoints int64              `json:"basis_points" gorm:"not null"`
	Amount      int64              `json:"amount" gorm:"not null"`
	Status      DistributionStatus `json:"status" gorm:"type:varchar(20);not null;default:'accrued';index"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (d *RoyaltyDistribution) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
