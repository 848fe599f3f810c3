package repository

import (
	"context"
	"fmt"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	countersCollection = "counters"
	messageSequence    = "message_id"
)

type mongoMessage struct {
	ID         uint64    `bson:"_id"`
	SenderID   uint64    `bson:"sender_id"`
	ReceiverID uint64    `bson:"receiver_id"`
	Text       string    `bson:"text,omitempty"`
	Image      string    `bson:"image,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (m mongoMessage) toModel() model.Message {
	return model.Message{
		ID:         uint(m.ID),
		SenderID:   uint(m.SenderID),
		ReceiverID: uint(m.ReceiverID),
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  m.CreatedAt,
	}
}

// MongoMessageRepository stores messages in MongoDB with numeric ids drawn from a counters document,
// so records match the relational store's shape.
type MongoMessageRepository struct {
	messages *mongo.Collection
	counters *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the conversation index used by History.
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

func (r *MongoMessageRepository) nextID(ctx context.Context) (uint64, error) {
	var counter struct {
		Seq uint64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSequence},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (r *MongoMessageRepository) Persist(ctx context.Context, senderID, receiverID uint, payload model.Payload) (*model.Message, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return nil, &apperr.StoreError{Op: "persist", Err: fmt.Errorf("allocate id: %w", err)}
	}

	doc := mongoMessage{
		ID:         id,
		SenderID:   uint64(senderID),
		ReceiverID: uint64(receiverID),
		Text:       payload.Text,
		Image:      payload.Image,
		// mongo keeps millisecond precision
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return nil, &apperr.StoreError{Op: "persist", Err: err}
	}

	message := doc.toModel()
	return &message, nil
}

func (r *MongoMessageRepository) History(ctx context.Context, userA, userB uint, limit, offset int) ([]model.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": uint64(userA), "receiver_id": uint64(userB)},
		bson.M{"sender_id": uint64(userB), "receiver_id": uint64(userA)},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, &apperr.StoreError{Op: "history", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &apperr.StoreError{Op: "history", Err: err}
	}

	messages := make([]model.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.toModel())
	}
	return messages, nil
}
