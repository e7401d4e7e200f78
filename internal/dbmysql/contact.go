package dbmysql

import (
	"time"

	"gorm.io/gorm"
)

// Contact is an established relationship between two accounts (a prior
// enquiry, order or network connection). It gates who the caller may start a
// new conversation with.
type Contact struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string         `gorm:"column:user_id;size:64;not null;index:idx_user_contact,unique" json:"user_id"`
	ContactUserID string         `gorm:"column:contact_user_id;size:64;not null;index:idx_user_contact,unique" json:"contact_user_id"`
	Source        string         `gorm:"column:source;type:enum('enquiry','order','network');default:'network'" json:"source"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	ContactUser *User `gorm:"-" json:"contact_user,omitempty"`
}
