package archive

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"edihub/internal/outbox"
)

const defaultCollection = "archived_documents"

// MongoStore keeps one immutable copy of each rendered document for audit
// and legal retention. The stored receiver is the true delivery identity,
// which under delegation differs from the original addressee; provenance
// queries depend on that.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &MongoStore{collection: db.Collection(collection)}
}

// EnsureIndexes creates the retention-query indexes. Safe to call on every
// startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetName("idx_archived_documents_message_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "receiver.actor_number", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_archived_documents_receiver_created"),
		},
		{
			Keys:    bson.D{{Key: "event_ids", Value: 1}},
			Options: options.Index().SetName("idx_archived_documents_event_ids"),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create archive indexes: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) Store(ctx context.Context, meta outbox.ArchiveMetadata, content []byte) (string, error) {
	doc := bson.M{
		"message_id":      meta.MessageID,
		"event_ids":       meta.EventIDs,
		"document_type":   string(meta.DocumentType),
		"business_reason": string(meta.BusinessReason),
		"sender": bson.M{
			"actor_number": meta.Sender.ActorNumber,
			"actor_role":   string(meta.Sender.ActorRole),
		},
		"receiver": bson.M{
			"actor_number": meta.Receiver.ActorNumber,
			"actor_role":   string(meta.Receiver.ActorRole),
		},
		"created_at": meta.CreatedAt,
		"content":    primitive.Binary{Data: content},
	}
	if meta.RelatedToMessageID != nil {
		doc["related_to_message_id"] = *meta.RelatedToMessageID
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		// A re-peek racing a slow commit archives the same bundle twice; the
		// first copy wins and serves as the reference.
		if mongo.IsDuplicateKeyError(err) {
			return s.findExistingRef(ctx, meta.MessageID)
		}
		return "", fmt.Errorf("failed to archive document %s: %w", meta.MessageID, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("archive insert for %s returned unexpected id type", meta.MessageID)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) findExistingRef(ctx context.Context, messageID string) (string, error) {
	var existing struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.collection.FindOne(ctx, bson.M{"message_id": messageID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve existing archive entry for %s: %w", messageID, err)
	}
	return existing.ID.Hex(), nil
}
