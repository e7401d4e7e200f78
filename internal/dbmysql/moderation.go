package dbmysql

import "time"

// ModerationFlag is the audit trail left by the spam filter: one row per
// blocked or suspicious message, with the signals that fired.
type ModerationFlag struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID string    `gorm:"column:message_id;size:64;index" json:"message_id"`
	SenderID  string    `gorm:"column:sender_id;size:64;not null;index" json:"sender_id"`
	Score     int       `gorm:"column:score;not null" json:"score"`
	Signals   string    `gorm:"column:signals;size:255" json:"signals"`
	Outcome   string    `gorm:"column:outcome;type:enum('blocked','flagged');not null" json:"outcome"`
	Content   string    `gorm:"column:content;type:text" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
