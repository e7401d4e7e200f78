package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/common"
	"marketchat/internal/dbmysql"
	"marketchat/internal/metrics"
	"marketchat/internal/policy"
	"marketchat/internal/realtime"
)

// EditWindow is how long a sender may amend a message after sending it.
const EditWindow = 15 * time.Minute

// ContextLink ties a conversation to a marketplace object.
type ContextLink struct {
	Kind  common.ContextKind
	ID    string
	Title string
}

// EventPublisher is what the service needs from the delivery bus.
// *realtime.Bus satisfies it; tests substitute a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, ev realtime.Event)
	TypingStart(ctx context.Context, conversationID, userID string)
	TypingStop(ctx context.Context, conversationID, userID string)
}

// PolicyGate screens outgoing messages before they commit.
type PolicyGate interface {
	CheckSend(senderID string, tier common.Tier, content string) (policy.SpamResult, error)
}

// ChatService defines the canonical store operations exposed to every
// protocol generation.
type ChatService interface {
	CreateConversation(ctx context.Context, creatorID string, ctype common.ConversationType, participantIDs []string, link *ContextLink) (*dbmysql.Conversation, error)
	GetConversation(ctx context.Context, conversationID, callerID string) (*dbmysql.Conversation, error)
	ListConversations(ctx context.Context, userID string, f repository.ConversationFilters, cursor string, limit int) ([]*dbmysql.Conversation, string, error)
	UpdateSettings(ctx context.Context, conversationID, userID string, s repository.ParticipantSettings) error

	SendMessage(ctx context.Context, conversationID, senderID string, tier common.Tier, content string, attachments []dbmysql.Attachment) (*dbmysql.Message, error)
	ListMessages(ctx context.Context, conversationID, callerID string, beforeSeq int64, limit int) ([]*dbmysql.Message, error)
	EditMessage(ctx context.Context, messageID, editorID, newContent string) (*dbmysql.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	AddReaction(ctx context.Context, messageID, userID, emoji string) error
	MarkRead(ctx context.Context, conversationID, userID, uptoMessageID string) (int, error)

	TotalUnread(ctx context.Context, userID string) (int64, error)
	Search(ctx context.Context, userID, query string, limit int) ([]*dbmysql.Message, error)
	Contacts(ctx context.Context, userID string) ([]*dbmysql.User, error)
	Typing(ctx context.Context, conversationID, userID string, start bool) error
}

type chatService struct {
	repo repository.ChatRepository
	gate PolicyGate
	bus  EventPublisher
	log  *zap.Logger
}

// Constructor used in process wiring
func NewChatService(r repository.ChatRepository, gate PolicyGate, bus EventPublisher, log *zap.Logger) ChatService {
	return &chatService{repo: r, gate: gate, bus: bus, log: log}
}

func (s *chatService) CreateConversation(ctx context.Context, creatorID string, ctype common.ConversationType, participantIDs []string, link *ContextLink) (*dbmysql.Conversation, error) {
	if !ctype.IsValid() {
		return nil, errors.New("invalid conversation type")
	}

	// Normalize: creator first, empties dropped, duplicates collapsed.
	ids := make([]string, 0, len(participantIDs)+1)
	seen := make(map[string]bool, len(participantIDs)+1)
	for _, id := range append([]string{creatorID}, participantIDs...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, common.ErrInvalidParticipants
	}

	conv := &dbmysql.Conversation{
		ID:             uuid.NewString(),
		Type:           ctype.String(),
		Status:         "open",
		LastActivityAt: time.Now().UTC(),
	}
	if link != nil {
		if !link.Kind.IsValid() {
			return nil, errors.New("invalid context kind")
		}
		conv.ContextKind = link.Kind.String()
		conv.ContextID = link.ID
		conv.ContextTitle = link.Title
	}

	// Direct conversations are deduplicated; other types are not.
	if ctype == common.ConversationDirect {
		conv.DirectKey = dbmysql.DirectKeyFor(ids)
		if existing, err := s.repo.FindDirectByKey(ctx, conv.DirectKey); err == nil {
			return existing, &common.DuplicateDirectError{ExistingID: existing.ID}
		} else if !errors.Is(err, common.ErrConversationNotFound) {
			return nil, err
		}
	}

	if err := s.repo.CreateConversation(ctx, conv, ids, creatorID); err != nil {
		// Lost a race with a concurrent direct create: surface the winner.
		if conv.DirectKey != "" {
			if existing, ferr := s.repo.FindDirectByKey(ctx, conv.DirectKey); ferr == nil {
				return existing, &common.DuplicateDirectError{ExistingID: existing.ID}
			}
		}
		return nil, err
	}
	return s.repo.GetConversation(ctx, conv.ID)
}

func (s *chatService) GetConversation(ctx context.Context, conversationID, callerID string) (*dbmysql.Conversation, error) {
	if _, err := s.repo.Participant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	return s.repo.GetConversation(ctx, conversationID)
}

func (s *chatService) ListConversations(ctx context.Context, userID string, f repository.ConversationFilters, cursor string, limit int) ([]*dbmysql.Conversation, string, error) {
	return s.repo.ListConversations(ctx, userID, f, cursor, limit)
}

func (s *chatService) UpdateSettings(ctx context.Context, conversationID, userID string, settings repository.ParticipantSettings) error {
	return s.repo.UpdateParticipantSettings(ctx, conversationID, userID, settings)
}

// SendMessage is the single write path for new messages: membership check,
// then the policy gate, then the serialized append, then fan-out.
func (s *chatService) SendMessage(ctx context.Context, conversationID, senderID string, tier common.Tier, content string, attachments []dbmysql.Attachment) (*dbmysql.Message, error) {
	if content == "" && len(attachments) == 0 {
		return nil, errors.New("message content cannot be empty")
	}

	if _, err := s.repo.Participant(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	spamRes, err := s.gate.CheckSend(senderID, tier, content)
	if err != nil {
		if errors.Is(err, common.ErrSpamRejected) {
			s.recordModeration(ctx, "", senderID, spamRes, "blocked", content)
		}
		return nil, err
	}

	now := time.Now().UTC()
	msg := &dbmysql.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    attachments,
		SentAt:         now,
		EditDeadline:   now.Add(EditWindow),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesStored.Inc()

	if spamRes.Outcome == policy.OutcomeFlagged {
		s.recordModeration(ctx, msg.ID, senderID, spamRes, "flagged", content)
	}

	s.bus.Publish(ctx, realtime.Event{
		Kind:           realtime.EventNewMessage,
		ConversationID: conversationID,
		UserID:         senderID,
		Payload:        msg,
	})
	return msg, nil
}

func (s *chatService) recordModeration(ctx context.Context, messageID, senderID string, res policy.SpamResult, outcome, content string) {
	flag := &dbmysql.ModerationFlag{
		MessageID: messageID,
		SenderID:  senderID,
		Score:     res.Score,
		Signals:   joinSignals(res.Signals),
		Outcome:   outcome,
		Content:   content,
	}
	if err := s.repo.RecordModeration(ctx, flag); err != nil {
		s.log.Warn("moderation audit write failed", zap.Error(err))
	}
}

func (s *chatService) ListMessages(ctx context.Context, conversationID, callerID string, beforeSeq int64, limit int) ([]*dbmysql.Message, error) {
	if _, err := s.repo.Participant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID, beforeSeq, limit)
}

func (s *chatService) EditMessage(ctx context.Context, messageID, editorID, newContent string) (*dbmysql.Message, error) {
	if newContent == "" {
		return nil, errors.New("message content cannot be empty")
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Participant(ctx, msg.ConversationID, editorID); err != nil {
		// Same shape as a missing message, so non-participants learn nothing.
		return nil, common.ErrMessageNotFound
	}
	if msg.SenderID != editorID {
		return nil, common.ErrNotSender
	}
	if msg.Deleted {
		return nil, common.ErrMessageNotFound
	}
	now := time.Now().UTC()
	if !msg.Editable(now) {
		return nil, common.ErrEditWindowExpired
	}

	original := msg.OriginalContent
	if msg.EditedAt == nil {
		original = msg.Content
	}
	if err := s.repo.UpdateMessageContent(ctx, messageID, newContent, original, now); err != nil {
		return nil, err
	}

	msg.Content = newContent
	msg.OriginalContent = original
	msg.EditedAt = &now

	s.bus.Publish(ctx, realtime.Event{
		Kind:           realtime.EventMessageEdited,
		ConversationID: msg.ConversationID,
		UserID:         editorID,
		Payload:        msg,
	})
	return msg, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	participant, err := s.repo.Participant(ctx, msg.ConversationID, requesterID)
	if err != nil {
		return common.ErrMessageNotFound
	}
	if msg.SenderID != requesterID && !participant.IsAdmin {
		return common.ErrNotSender
	}
	if err := s.repo.SoftDeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.bus.Publish(ctx, realtime.Event{
		Kind:           realtime.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		UserID:         requesterID,
		Payload:        map[string]string{"message_id": messageID},
	})
	return nil
}

func (s *chatService) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	if emoji == "" {
		return errors.New("emoji cannot be empty")
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.repo.Participant(ctx, msg.ConversationID, userID); err != nil {
		return common.ErrMessageNotFound
	}
	if msg.Deleted {
		return common.ErrMessageNotFound
	}

	reaction := &dbmysql.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if err := s.repo.UpsertReaction(ctx, reaction); err != nil {
		return err
	}

	s.bus.Publish(ctx, realtime.Event{
		Kind:           realtime.EventReactionAdded,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Payload:        reaction,
	})
	return nil
}

// MarkRead writes a read receipt for the given message and resets the
// caller's unread counter to the number of messages after it.
func (s *chatService) MarkRead(ctx context.Context, conversationID, userID, uptoMessageID string) (int, error) {
	if _, err := s.repo.Participant(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	upto, err := s.repo.GetMessage(ctx, uptoMessageID)
	if err != nil {
		return 0, err
	}
	if upto.ConversationID != conversationID {
		return 0, common.ErrMessageNotFound
	}

	remaining, err := s.repo.MarkRead(ctx, conversationID, userID, upto)
	if err != nil {
		return 0, err
	}

	s.bus.Publish(ctx, realtime.Event{
		Kind:           realtime.EventReadReceipt,
		ConversationID: conversationID,
		UserID:         userID,
		Payload: map[string]interface{}{
			"message_id": uptoMessageID,
			"seq":        upto.Seq,
		},
	})
	return remaining, nil
}

func (s *chatService) TotalUnread(ctx context.Context, userID string) (int64, error) {
	return s.repo.TotalUnread(ctx, userID)
}

func (s *chatService) Search(ctx context.Context, userID, query string, limit int) ([]*dbmysql.Message, error) {
	if query == "" {
		return nil, errors.New("query cannot be empty")
	}
	return s.repo.Search(ctx, userID, query, limit)
}

func (s *chatService) Contacts(ctx context.Context, userID string) ([]*dbmysql.User, error) {
	return s.repo.Contacts(ctx, userID)
}

// Typing validates membership then hands the ephemeral indicator to the bus;
// nothing is persisted.
func (s *chatService) Typing(ctx context.Context, conversationID, userID string, start bool) error {
	if _, err := s.repo.Participant(ctx, conversationID, userID); err != nil {
		return err
	}
	if start {
		s.bus.TypingStart(ctx, conversationID, userID)
	} else {
		s.bus.TypingStop(ctx, conversationID, userID)
	}
	return nil
}

func joinSignals(signals []string) string {
	out := ""
	for i, sig := range signals {
		if i > 0 {
			out += ","
		}
		out += sig
	}
	if len(out) > 255 {
		out = out[:255]
	}
	return out
}
