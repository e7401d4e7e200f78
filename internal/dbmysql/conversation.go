package dbmysql

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the canonical container of messages. IDs are opaque and
// stable across protocol generations: migrated rows keep their legacy ids.
type Conversation struct {
	ID     string `gorm:"primaryKey;size:64" json:"id"`
	Type   string `gorm:"size:20;not null;index" json:"type"`
	Status string `gorm:"size:20;default:'open'" json:"status"`

	// DirectKey dedups direct conversations: sorted participant pair,
	// empty for every other type.
	DirectKey string `gorm:"size:130;index:idx_direct_key,unique" json:"-"`

	// LastSeq is the per-conversation message ordinal. Bumped with a row
	// lock inside the insert transaction, never by the caller.
	LastSeq int64 `gorm:"not null;default:0" json:"last_seq"`

	// Optional marketplace context link
	ContextKind  string `gorm:"size:20" json:"context_kind,omitempty"`
	ContextID    string `gorm:"size:64" json:"context_id,omitempty"`
	ContextTitle string `gorm:"size:255" json:"context_title,omitempty"`

	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// ConversationParticipant holds one user's membership and per-conversation
// settings. Position preserves insertion order for display.
type ConversationParticipant struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string `gorm:"size:64;not null;index:idx_conv_user,unique" json:"conversation_id"`
	UserID         string `gorm:"size:64;not null;index:idx_conv_user,unique;index" json:"user_id"`
	Position       int    `gorm:"not null" json:"-"`

	IsPinned    bool `gorm:"default:false" json:"is_pinned"`
	IsMuted     bool `gorm:"default:false" json:"is_muted"`
	IsArchived  bool `gorm:"default:false" json:"is_archived"`
	IsAdmin     bool `gorm:"default:false" json:"is_admin"`
	UnreadCount int  `gorm:"not null;default:0" json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectKeyFor builds the dedup key for a direct conversation. Order of the
// input does not matter; a self-conversation collapses to a single id.
func DirectKeyFor(participantIDs []string) string {
	ids := make([]string, 0, len(participantIDs))
	seen := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}
