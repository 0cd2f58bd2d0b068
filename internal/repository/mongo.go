package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/conversation-service/config"
	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/models"
)

// NewMongoClient connects and pings with a bounded timeout.
func NewMongoClient(cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

type MongoRepository struct {
	convCol   *mongo.Collection
	msgCol    *mongo.Collection
	legacyCol *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	r := &MongoRepository{
		convCol:   db.Collection("conversations"),
		msgCol:    db.Collection("messages"),
		legacyCol: db.Collection("legacy_threads"),
	}
	// index for per-conversation timeline scans and read-state updates
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_role", Value: 1}}},
	}
	_, _ = r.msgCol.Indexes().CreateMany(context.Background(), idx)
	_, _ = r.legacyCol.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}},
	})
	return r
}

func (r *MongoRepository) UpsertConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	update := bson.M{
		"$set": bson.M{
			"student_id": c.StudentID,
			"coach_id":   c.CoachID,
			"admin_id":   c.AdminID,
		},
		"$setOnInsert": bson.M{
			"created_at": c.CreatedAt,
			"updated_at": c.UpdatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.Conversation
	if err := r.convCol.FindOneAndUpdate(ctx, bson.M{"_id": c.ID}, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.convCol.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoRepository) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res, err := r.convCol.UpdateByID(ctx, id, bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.convCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ListConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"student_id": userID},
		bson.M{"coach_id": userID},
		bson.M{"admin_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.convCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := r.msgCol.InsertOne(ctx, m)
	return err
}

func (r *MongoRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.msgCol.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoRepository) UpdateMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res, err := r.msgCol.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"content":   content,
		"edited_at": editedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.msgCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.msgCol.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) DeleteMessagesByConversation(ctx context.Context, conversationID string) error {
	_, err := r.msgCol.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

func (r *MongoRepository) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m models.Message
	if err := r.msgCol.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoRepository) MaxCreatedAt(ctx context.Context, conversationID string) (time.Time, error) {
	m, err := r.LastMessage(ctx, conversationID)
	if err != nil || m == nil {
		return time.Time{}, err
	}
	return m.CreatedAt, nil
}

func (r *MongoRepository) MarkReadUpTo(ctx context.Context, conversationID string, role models.Role, cutoff, at time.Time) (int64, error) {
	filter := bson.M{
		"conversation_id":        conversationID,
		"sender_role":            bson.M{"$ne": role},
		"created_at":             bson.M{"$lte": cutoff},
		"read_by." + string(role): bson.M{"$ne": true},
	}
	update := bson.M{"$set": bson.M{
		"read_by." + string(role): true,
		"read_at." + string(role): at,
	}}
	res, err := r.msgCol.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) UnreadCount(ctx context.Context, conversationID string, role models.Role) (int64, error) {
	filter := bson.M{
		"conversation_id":        conversationID,
		"sender_role":            bson.M{"$ne": role},
		"read_by." + string(role): bson.M{"$ne": true},
	}
	return r.msgCol.CountDocuments(ctx, filter)
}

func (r *MongoRepository) LegacyRecords(ctx context.Context, conversationID string) ([]models.LegacyRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.legacyCol.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.LegacyRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
