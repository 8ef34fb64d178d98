// internal/models/admin.go
package models

import (
	"time"
)

type AdminSettings struct {
	BaseModel
	Category    string `json:"category" gorm:"size:50;not null;uniqueIndex:idx_admin_settings_category_key"`
	Key         string `json:"key" gorm:"size:100;not null;uniqueIndex:idx_admin_settings_category_key"`
	Value       JSONB  `json:"value" gorm:"type:jsonb;not null"`
	DataType    string `json:"data_type" gorm:"size:20;not null"`
	Description string `json:"description" gorm:"type:text"`
	UpdatedBy   string `json:"updated_by" gorm:"size:128;not null"`
}

type AuditLog struct {
	BaseModel
	Identity     string `json:"identity,omitempty" gorm:"size:128;index"`
	Action       string `json:"action" gorm:"size:100;not null;index"`
	ResourceType string `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   string `json:"resource_id,omitempty" gorm:"size:255;index"`
	OldValues    JSONB  `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB  `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int    `json:"status_code"`
	IPAddress    string `json:"ip_address" gorm:"size:45"`
	UserAgent    string `json:"user_agent" gorm:"type:text"`
}

type AdminNotification struct {
	BaseModel
	Type                string               `json:"type" gorm:"type:varchar(50);not null;index"`
	Title               string               `json:"title" gorm:"size:255;not null"`
	Message             string               `json:"message" gorm:"type:text;not null"`
	Recipient           string               `json:"recipient,omitempty" gorm:"size:128;index"`
	Priority            NotificationPriority `json:"priority" gorm:"type:varchar(20);default:'medium';index"`
	Status              string               `json:"status" gorm:"type:varchar(20);default:'unread';index"`
	RelatedResourceType string               `json:"related_resource_type,omitempty" gorm:"size:50"`
	RelatedResourceID   string               `json:"related_resource_id,omitempty" gorm:"size:255"`
	ReadAt              *time.Time           `json:"read_at"`
}
