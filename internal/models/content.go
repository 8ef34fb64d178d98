// internal/models/content.go
package models

import (
	"time"
)

// Content is the marketplace's record of an uploaded work. It is listed only
// while its licensing agreement is approved.
type Content struct {
	ID          string    `json:"id" gorm:"primaryKey;size:128"`
	OwnerID     string    `json:"owner_id" gorm:"size:128;not null;index"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Price       int64     `json:"price" gorm:"not null;default:0"`
	Currency    string    `json:"currency" gorm:"size:3;not null;default:'usd'"`
	Category    string    `json:"category" gorm:"size:50;index"`
	Tags        TagList   `json:"tags"`
	BlobKey     string    `json:"blob_key,omitempty" gorm:"size:512"`
	CreatedAt   int64     `json:"created_at" gorm:"autoCreateTime:nano;index"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Agreement *LicensingAgreement `json:"agreement,omitempty" gorm:"foreignKey:ContentID;references:ID"`
}
