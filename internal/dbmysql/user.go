package dbmysql

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors the account service's view of an account: enough to resolve
// contacts and tiers, nothing more. Authentication lives elsewhere.
type User struct {
	UserID      string         `gorm:"primaryKey;column:user_id;size:64" json:"user_id"`
	DisplayName string         `gorm:"column:display_name;size:100;not null" json:"display_name"`
	Role        string         `gorm:"column:role;type:enum('buyer','provider');not null;index" json:"role"`
	Tier        string         `gorm:"column:tier;type:enum('free','plus','pro');default:'free'" json:"tier"`
	Status      string         `gorm:"column:status;type:enum('active','banned','deleted');default:'active'" json:"status"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
