package chat

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/ride-pooling/internal/models"
)

// MongoChatStore keeps one chat document per room with an embedded
// messages array, appended with $push so concurrent senders serialize
// at the document.
type MongoChatStore struct {
	chats *mongo.Collection
}

func NewMongoChatStore(db *mongo.Database) *MongoChatStore {
	return &MongoChatStore{chats: db.Collection("chats")}
}

func (s *MongoChatStore) Append(ctx context.Context, roomID string, msg models.Message) error {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return err
	}
	_, err = s.chats.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$push": bson.M{"messages": msg}},
		options.Update().SetUpsert(true))
	return err
}

func (s *MongoChatStore) History(ctx context.Context, roomID string) ([]models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(roomID)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Messages []models.Message `bson:"messages"`
	}
	err = s.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}
