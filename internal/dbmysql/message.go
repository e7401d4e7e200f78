package dbmysql

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TombstoneContent replaces the content of a soft-deleted message. The row
// itself stays so sequence numbers never shift.
const TombstoneContent = "[message deleted]"

// Attachment is a reference to an uploaded file; storage itself is external.
type Attachment struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Name     string `json:"name,omitempty"`
}

// AttachmentList stores attachments as a JSON column.
type AttachmentList []Attachment

func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into AttachmentList", value)
	}
	return json.Unmarshal(raw, a)
}

type Message struct {
	ID             string `gorm:"primaryKey;size:64" json:"id"`
	ConversationID string `gorm:"index:idx_conv_seq,unique;size:64;not null" json:"conversation_id"`
	// Seq is the ordinal within the conversation, dense and gapless.
	Seq      int64  `gorm:"index:idx_conv_seq,unique;not null" json:"seq"`
	SenderID string `gorm:"index;size:64;not null" json:"sender_id"`

	Content     string         `gorm:"type:text" json:"content"`
	Attachments AttachmentList `gorm:"type:json" json:"attachments,omitempty"`

	SentAt       time.Time `gorm:"index" json:"sent_at"`
	EditDeadline time.Time `json:"edit_deadline"`

	// Edit audit trail: first edit snapshots the original content.
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	OriginalContent string     `gorm:"type:text" json:"-"`

	Deleted bool `gorm:"default:false" json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reactions    []Reaction    `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
	ReadReceipts []ReadReceipt `gorm:"foreignKey:MessageID" json:"read_receipts,omitempty"`
}

// Editable reports whether the edit window is still open at t.
func (m *Message) Editable(t time.Time) bool {
	return t.Before(m.EditDeadline)
}
