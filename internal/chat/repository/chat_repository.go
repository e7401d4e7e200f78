package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
)

// ConversationFilters narrows a conversation listing.
type ConversationFilters struct {
	Unread   bool
	Pinned   bool
	Archived bool // when false, archived conversations are excluded
	Type     string
}

// ParticipantSettings carries the per-conversation toggles a user may change.
type ParticipantSettings struct {
	IsPinned   *bool
	IsMuted    *bool
	IsArchived *bool
}

// ChatRepository is the persistence contract of the canonical store. The
// migration engine writes only through the UpsertIfAbsent methods.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *dbmysql.Conversation, participantIDs []string, adminID string) error
	GetConversation(ctx context.Context, id string) (*dbmysql.Conversation, error)
	FindDirectByKey(ctx context.Context, key string) (*dbmysql.Conversation, error)
	ListConversations(ctx context.Context, userID string, f ConversationFilters, cursor string, limit int) ([]*dbmysql.Conversation, string, error)
	Participant(ctx context.Context, conversationID, userID string) (*dbmysql.ConversationParticipant, error)
	UpdateParticipantSettings(ctx context.Context, conversationID, userID string, s ParticipantSettings) error

	InsertMessage(ctx context.Context, msg *dbmysql.Message) error
	GetMessage(ctx context.Context, id string) (*dbmysql.Message, error)
	ListMessages(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*dbmysql.Message, error)
	UpdateMessageContent(ctx context.Context, id, newContent, originalContent string, editedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, id string) error
	UpsertReaction(ctx context.Context, r *dbmysql.Reaction) error
	MarkRead(ctx context.Context, conversationID, userID string, upto *dbmysql.Message) (int, error)
	TotalUnread(ctx context.Context, userID string) (int64, error)
	Search(ctx context.Context, userID, query string, limit int) ([]*dbmysql.Message, error)

	RecordModeration(ctx context.Context, flag *dbmysql.ModerationFlag) error
	Contacts(ctx context.Context, userID string) ([]*dbmysql.User, error)

	UpsertConversationIfAbsent(ctx context.Context, conv *dbmysql.Conversation, participantIDs []string) (bool, error)
	UpsertMessageIfAbsent(ctx context.Context, msg *dbmysql.Message) (bool, error)

	// Realtime fan-out lookups
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	CounterpartIDs(ctx context.Context, userID string) ([]string, error)
}

type chatRepo struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{db: db}
}

func (r *chatRepo) CreateConversation(ctx context.Context, conv *dbmysql.Conversation, participantIDs []string, adminID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for i, uid := range participantIDs {
			p := dbmysql.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         uid,
				Position:       i,
				IsAdmin:        uid == adminID,
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *chatRepo) GetConversation(ctx context.Context, id string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepo) FindDirectByKey(ctx context.Context, key string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).
		First(&conv, "type = ? AND direct_key = ?", common.ConversationDirect.String(), key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *chatRepo) ListConversations(ctx context.Context, userID string, f ConversationFilters, cursor string, limit int) ([]*dbmysql.Conversation, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Model(&dbmysql.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID)

	if f.Archived {
		q = q.Where("cp.is_archived = ?", true)
	} else {
		q = q.Where("cp.is_archived = ?", false)
	}
	if f.Unread {
		q = q.Where("cp.unread_count > 0")
	}
	if f.Pinned {
		q = q.Where("cp.is_pinned = ?", true)
	}
	if f.Type != "" {
		q = q.Where("conversations.type = ?", f.Type)
	}

	if cursor != "" {
		at, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		q = q.Where("(conversations.last_activity_at < ?) OR (conversations.last_activity_at = ? AND conversations.id < ?)", at, at, id)
	}

	var convs []*dbmysql.Conversation
	err := q.Order("conversations.last_activity_at DESC, conversations.id DESC").
		Limit(limit + 1).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Find(&convs).Error
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(convs) > limit {
		convs = convs[:limit]
		last := convs[len(convs)-1]
		next = EncodeCursor(last.LastActivityAt, last.ID)
	}
	return convs, next, nil
}

func (r *chatRepo) Participant(ctx context.Context, conversationID, userID string) (*dbmysql.ConversationParticipant, error) {
	var p dbmysql.ConversationParticipant
	err := r.db.WithContext(ctx).
		First(&p, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotAParticipant
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *chatRepo) UpdateParticipantSettings(ctx context.Context, conversationID, userID string, s ParticipantSettings) error {
	updates := map[string]interface{}{}
	if s.IsPinned != nil {
		updates["is_pinned"] = *s.IsPinned
	}
	if s.IsMuted != nil {
		updates["is_muted"] = *s.IsMuted
	}
	if s.IsArchived != nil {
		updates["is_archived"] = *s.IsArchived
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&dbmysql.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrNotAParticipant
	}
	return nil
}

// InsertMessage assigns the next per-conversation ordinal under a row lock on
// the conversation, so concurrent appends can never share a sequence number.
// Default isolation is not relied on.
func (r *chatRepo) InsertMessage(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv dbmysql.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, "id = ?", msg.ConversationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrConversationNotFound
		}
		if err != nil {
			return err
		}

		msg.Seq = conv.LastSeq + 1
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if err := tx.Model(&dbmysql.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"last_seq":         msg.Seq,
				"last_activity_at": msg.SentAt,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&dbmysql.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", conv.ID, msg.SenderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	})
}

func (r *chatRepo) GetMessage(ctx context.Context, id string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("ReadReceipts").
		First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatRepo) ListMessages(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*dbmysql.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	var messages []*dbmysql.Message
	err := q.Order("seq DESC").Limit(limit).
		Preload("Reactions").
		Preload("ReadReceipts").
		Find(&messages).Error
	return messages, err
}

func (r *chatRepo) UpdateMessageContent(ctx context.Context, id, newContent, originalContent string, editedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":          newContent,
			"original_content": originalContent,
			"edited_at":        editedAt,
		}).Error
}

// SoftDeleteMessage replaces content with the tombstone but keeps the row, so
// ordinals never shift.
func (r *chatRepo) SoftDeleteMessage(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deleted":          true,
			"content":          dbmysql.TombstoneContent,
			"original_content": "",
			"attachments":      nil,
		}).Error
}

func (r *chatRepo) UpsertReaction(ctx context.Context, reaction *dbmysql.Reaction) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(reaction).Error
}

func (r *chatRepo) MarkRead(ctx context.Context, conversationID, userID string, upto *dbmysql.Message) (int, error) {
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt := dbmysql.ReadReceipt{
			MessageID: upto.ID,
			UserID:    userID,
			ReadAt:    time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"read_at"}),
		}).Create(&receipt).Error; err != nil {
			return err
		}

		if err := tx.Model(&dbmysql.Message{}).
			Where("conversation_id = ? AND seq > ?", conversationID, upto.Seq).
			Count(&remaining).Error; err != nil {
			return err
		}

		return tx.Model(&dbmysql.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			UpdateColumn("unread_count", remaining).Error
	})
	return int(remaining), err
}

func (r *chatRepo) TotalUnread(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&dbmysql.ConversationParticipant{}).
		Where("user_id = ? AND is_archived = ?", userID, false).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}

func (r *chatRepo) Search(ctx context.Context, userID, query string, limit int) ([]*dbmysql.Message, error) {
	if limit <= 0 {
		limit = 25
	}
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id").
		Where("cp.user_id = ?", userID).
		Where("messages.deleted = ?", false).
		Where("messages.content LIKE ?", "%"+query+"%").
		Order("messages.sent_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *chatRepo) RecordModeration(ctx context.Context, flag *dbmysql.ModerationFlag) error {
	return r.db.WithContext(ctx).Create(flag).Error
}

// Contacts returns accounts the caller may start a conversation with:
// explicit contact rows, resolved to active accounts.
func (r *chatRepo) Contacts(ctx context.Context, userID string) ([]*dbmysql.User, error) {
	var users []*dbmysql.User
	err := r.db.WithContext(ctx).Model(&dbmysql.User{}).
		Joins("JOIN contacts c ON c.contact_user_id = users.user_id").
		Where("c.user_id = ? AND c.deleted_at IS NULL", userID).
		Where("users.status = ?", "active").
		Order("users.display_name ASC").
		Find(&users).Error
	return users, err
}

// UpsertConversationIfAbsent inserts the conversation and its participant
// rows only when no conversation with the same id exists. Existing canonical
// data is never overwritten; this is the migration engine's write contract.
func (r *chatRepo) UpsertConversationIfAbsent(ctx context.Context, conv *dbmysql.Conversation, participantIDs []string) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(conv)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		for i, uid := range participantIDs {
			p := dbmysql.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         uid,
				Position:       i,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return inserted, err
}

func (r *chatRepo) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&dbmysql.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("position ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CounterpartIDs lists users who share at least one conversation with the
// given user; used for presence fan-out.
func (r *chatRepo) CounterpartIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&dbmysql.ConversationParticipant{}).
		Distinct("conversation_participants.user_id").
		Joins("JOIN conversation_participants mine ON mine.conversation_id = conversation_participants.conversation_id").
		Where("mine.user_id = ? AND conversation_participants.user_id <> ?", userID, userID).
		Pluck("conversation_participants.user_id", &ids).Error
	return ids, err
}

func (r *chatRepo) UpsertMessageIfAbsent(ctx context.Context, msg *dbmysql.Message) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
