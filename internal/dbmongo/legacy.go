package dbmongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/config"
)

// LegacyThread is the v1/v2 wire shape of a thread as stored by the old
// system. SupplierID references a business record, not a user account.
type LegacyThread struct {
	ThreadID    string    `bson:"threadId,omitempty"`
	CustomerID  string    `bson:"customerId,omitempty"`
	RecipientID string    `bson:"recipientId,omitempty"`
	SupplierID  string    `bson:"supplierId,omitempty"`
	Type        string    `bson:"type,omitempty"`
	Subject     string    `bson:"subject,omitempty"`
	PackageID   string    `bson:"packageId,omitempty"`
	PackageName string    `bson:"packageName,omitempty"`
	CreatedAt   time.Time `bson:"createdAt,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty"`
}

// LegacyMessage is the old per-thread message record.
type LegacyMessage struct {
	MessageID string    `bson:"messageId,omitempty"`
	ThreadID  string    `bson:"threadId"`
	SenderID  string    `bson:"senderId,omitempty"`
	Body      string    `bson:"body,omitempty"`
	FileURL   string    `bson:"fileUrl,omitempty"`
	FileType  string    `bson:"fileType,omitempty"`
	FileSize  int64     `bson:"fileSize,omitempty"`
	SentAt    time.Time `bson:"sentAt,omitempty"`
}

// LegacySource streams the old collections for the migration engine.
type LegacySource struct {
	threads  *mongo.Collection
	messages *mongo.Collection
}

func NewLegacySource(mc *MongoClient, cfg *config.Config) *LegacySource {
	return &LegacySource{
		threads:  mc.Database.Collection(cfg.Mongo.ThreadCollection),
		messages: mc.Database.Collection(cfg.Mongo.MessageCollection),
	}
}

// Threads returns every legacy thread record. A missing or empty collection
// yields an empty slice, not an error.
func (s *LegacySource) Threads(ctx context.Context) ([]LegacyThread, error) {
	cur, err := s.threads.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []LegacyThread
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MessagesFor returns the legacy messages of one thread in send order.
func (s *LegacySource) MessagesFor(ctx context.Context, threadID string) ([]LegacyMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sentAt", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"threadId": threadID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []LegacyMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
