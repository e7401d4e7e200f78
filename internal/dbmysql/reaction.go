package dbmysql

import "time"

// Reaction is one user's emoji on one message. The unique index gives the
// at-most-one-per-user invariant; writes upsert so last write wins.
type Reaction struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"column:message_id;size:64;not null;index:idx_msg_user,unique" json:"message_id"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index:idx_msg_user,unique" json:"user_id"`
	Emoji     string    `gorm:"column:emoji;size:16;not null" json:"emoji"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// ReadReceipt records that a recipient has read up to and including a message.
type ReadReceipt struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"column:message_id;size:64;not null;index:idx_receipt,unique" json:"message_id"`
	UserID    string    `gorm:"column:user_id;size:64;not null;index:idx_receipt,unique" json:"user_id"`
	ReadAt    time.Time `gorm:"column:read_at" json:"read_at"`
}
