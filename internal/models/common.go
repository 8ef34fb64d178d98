// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, j)
}

// TagList is a text[] column on PostgreSQL and an encoded text column elsewhere.
type TagList []string

func (TagList) GormDataType() string {
	return "text"
}

func (TagList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return pq.StringArray(t).Value()
}

func (t *TagList) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*t = TagList(arr)
	return nil
}

// SQLite hands JSON columns back as strings, PostgreSQL as bytes.
func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// Enums
type AgreementStatus string

const (
	AgreementStatusPending  AgreementStatus = "pending"
	AgreementStatusApproved AgreementStatus = "approved"
	AgreementStatusRejected AgreementStatus = "rejected"
)

func (s AgreementStatus) Valid() bool {
	switch s {
	case AgreementStatusPending, AgreementStatusApproved, AgreementStatusRejected:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

type UserRoleType string

const (
	RoleAdmin UserRoleType = "admin"
	RoleUser  UserRoleType = "user"
	RoleGuest UserRoleType = "guest"
)

func (r UserRoleType) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

type DistributionStatus string

const (
	DistributionStatusAccrued DistributionStatus = "accrued"
	DistributionStatusPaid    DistributionStatus = "paid"
)

type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityMedium   NotificationPriority = "medium"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)
