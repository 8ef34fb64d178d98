// internal/models/access.go
package models

import (
	"time"
)

type UserApproval struct {
	Identity    string         `json:"identity" gorm:"primaryKey;size:128"`
	Status      ApprovalStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	RequestedAt *time.Time     `json:"requested_at"`
	DecidedBy   string         `json:"decided_by,omitempty" gorm:"size:128"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type UserRole struct {
	Identity   string       `json:"identity" gorm:"primaryKey;size:128"`
	Role       UserRoleType `json:"role" gorm:"type:varchar(20);not null;default:'user';index"`
	AssignedBy string       `json:"assigned_by,omitempty" gorm:"size:128"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
