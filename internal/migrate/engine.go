// Package migrate lifts legacy v1/v2 thread records into the canonical
// store. It is one-way, idempotent, and safe to run alongside live traffic:
// every write goes through the store's insert-if-absent contract, so records
// that already exist are never touched.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/common"
	"marketchat/internal/dbmongo"
	"marketchat/internal/dbmysql"
	"marketchat/internal/metrics"
	"marketchat/internal/resolver"
)

// editWindow mirrors the store's edit window; migrated messages are long past
// it either way.
const editWindow = 15 * time.Minute

// Source is where legacy records come from. *dbmongo.LegacySource in
// production, a fixture in tests.
type Source interface {
	Threads(ctx context.Context) ([]dbmongo.LegacyThread, error)
	MessagesFor(ctx context.Context, threadID string) ([]dbmongo.LegacyMessage, error)
}

// Summary is the migration report. The engine never raises: per-record
// failures land here and the run continues.
type Summary struct {
	Threads         int `json:"threads"`
	Migrated        int `json:"migrated"`
	AlreadyPresent  int `json:"already_present"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
	Messages        int `json:"messages"`
	MessagesPresent int `json:"messages_present"`
}

type Engine struct {
	src  Source
	repo repository.ChatRepository
	log  *zap.Logger
}

func NewEngine(src Source, repo repository.ChatRepository, log *zap.Logger) *Engine {
	return &Engine{src: src, repo: repo, log: log}
}

// MigrateAll enumerates every legacy thread and upserts it with its messages.
// An empty or missing source collection is zero records, not an error.
func (e *Engine) MigrateAll(ctx context.Context) Summary {
	var sum Summary

	threads, err := e.src.Threads(ctx)
	if err != nil {
		// Source unavailable: report an empty run rather than fail startup.
		e.log.Warn("legacy source unavailable, nothing migrated", zap.Error(err))
		return sum
	}

	for _, thread := range threads {
		sum.Threads++
		e.migrateThread(ctx, thread, &sum)
	}

	e.log.Info("migration complete",
		zap.Int("threads", sum.Threads),
		zap.Int("migrated", sum.Migrated),
		zap.Int("already_present", sum.AlreadyPresent),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("messages", sum.Messages),
		zap.Int("messages_present", sum.MessagesPresent))
	return sum
}

func (e *Engine) migrateThread(ctx context.Context, thread dbmongo.LegacyThread, sum *Summary) {
	if thread.ThreadID == "" {
		sum.Skipped++
		metrics.MigratedRecords.WithLabelValues("skipped").Inc()
		return
	}

	participants, err := resolver.Resolve(resolver.RawThread{
		InitiatorID: thread.CustomerID,
		ResponderID: thread.RecipientID,
		BusinessID:  thread.SupplierID,
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidParticipants) {
			sum.Skipped++
			metrics.MigratedRecords.WithLabelValues("skipped").Inc()
			e.log.Warn("thread has no resolvable participants, skipped",
				zap.String("thread_id", thread.ThreadID))
			return
		}
		sum.Failed++
		metrics.MigratedRecords.WithLabelValues("failed").Inc()
		return
	}

	messages, err := e.src.MessagesFor(ctx, thread.ThreadID)
	if err != nil {
		sum.Failed++
		metrics.MigratedRecords.WithLabelValues("failed").Inc()
		e.log.Warn("legacy messages unreadable, thread not migrated",
			zap.String("thread_id", thread.ThreadID), zap.Error(err))
		return
	}

	conv := canonicalConversation(thread, participants, len(messages))
	inserted, err := e.repo.UpsertConversationIfAbsent(ctx, conv, participants)
	if err != nil {
		sum.Failed++
		metrics.MigratedRecords.WithLabelValues("failed").Inc()
		e.log.Warn("conversation upsert failed",
			zap.String("thread_id", thread.ThreadID), zap.Error(err))
		return
	}
	if inserted {
		sum.Migrated++
		metrics.MigratedRecords.WithLabelValues("migrated").Inc()
	} else {
		sum.AlreadyPresent++
		metrics.MigratedRecords.WithLabelValues("present").Inc()
	}

	for i, legacy := range messages {
		msg := canonicalMessage(thread.ThreadID, legacy, i)
		msgInserted, err := e.repo.UpsertMessageIfAbsent(ctx, msg)
		if err != nil {
			sum.Failed++
			metrics.MigratedRecords.WithLabelValues("failed").Inc()
			continue
		}
		if msgInserted {
			sum.Messages++
		} else {
			sum.MessagesPresent++
		}
	}
}

// canonicalConversation maps legacy thread fields onto the canonical model,
// preserving the legacy identifier so reruns find the existing row.
func canonicalConversation(thread dbmongo.LegacyThread, participants []string, messageCount int) *dbmysql.Conversation {
	ctype := common.ConversationType(thread.Type)
	if !ctype.IsValid() {
		ctype = common.ConversationEnquiry
	}

	lastActivity := thread.UpdatedAt
	if lastActivity.IsZero() {
		lastActivity = thread.CreatedAt
	}
	if lastActivity.IsZero() {
		lastActivity = time.Now().UTC()
	}

	conv := &dbmysql.Conversation{
		ID:             thread.ThreadID,
		Type:           ctype.String(),
		Status:         "open",
		LastSeq:        int64(messageCount),
		LastActivityAt: lastActivity,
		CreatedAt:      thread.CreatedAt,
	}
	if ctype == common.ConversationDirect {
		conv.DirectKey = dbmysql.DirectKeyFor(participants)
	}
	if thread.PackageID != "" {
		conv.ContextKind = common.ContextPackage.String()
		conv.ContextID = thread.PackageID
		conv.ContextTitle = thread.PackageName
	}
	return conv
}

// canonicalMessage fills safe defaults where the legacy record is silent:
// empty read-receipt set, sent status, ordinal from source order. Messages
// without their own id get a deterministic one derived from the thread, so
// reruns stay idempotent.
func canonicalMessage(threadID string, legacy dbmongo.LegacyMessage, index int) *dbmysql.Message {
	id := legacy.MessageID
	if id == "" {
		id = fmt.Sprintf("%s-msg-%04d", threadID, index+1)
	}

	sentAt := legacy.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	msg := &dbmysql.Message{
		ID:             id,
		ConversationID: threadID,
		Seq:            int64(index + 1),
		SenderID:       legacy.SenderID,
		Content:        legacy.Body,
		SentAt:         sentAt,
		EditDeadline:   sentAt.Add(editWindow),
	}
	if legacy.FileURL != "" {
		msg.Attachments = dbmysql.AttachmentList{{
			FileID:   legacy.FileURL,
			MimeType: legacy.FileType,
			Size:     legacy.FileSize,
		}}
	}
	return msg
}
