package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationRepository implements NotificationRepository for MongoDB
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoNotificationRepository
func NewMongoNotificationRepository(db *mongo.Database) *MongoNotificationRepository {
	return &MongoNotificationRepository{collection: db.Collection("notifications")}
}

// EnsureIndexes creates the recipient/recency index used by ListRecent
func (r *MongoNotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	})
	return errors.Wrap(err, "create notifications index")
}

// Append inserts a new notification document
func (r *MongoNotificationRepository) Append(ctx context.Context, n *domain.Notification) (string, error) {
	doc := models.NewNotificationDocument(n)
	doc.ID = primitive.NewObjectID()
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return "", errors.Wrap(err, "insert notification")
	}
	return doc.ID.Hex(), nil
}

// ListRecent returns the newest notifications of a recipient. ObjectIDs grow
// with insertion, so _id breaks createdAt ties.
func (r *MongoNotificationRepository) ListRecent(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{"userId": recipientID}, findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "find notifications")
	}
	defer cursor.Close(ctx)

	var docs []models.NotificationDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode notifications")
	}

	notifications := make([]domain.Notification, 0, len(docs))
	for i := range docs {
		n, err := docs[i].ToDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "decode notification %s", docs[i].ID.Hex())
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkRead sets isRead on one notification. Re-marking is not an error.
func (r *MongoNotificationRepository) MarkRead(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotificationNotFound
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead sets isRead on every unread notification of a recipient
func (r *MongoNotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"userId": recipientID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return res.ModifiedCount, nil
}

// OwnerOf returns the recipient of a notification
func (r *MongoNotificationRepository) OwnerOf(ctx context.Context, id string) (string, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", ErrNotificationNotFound
	}
	var doc models.NotificationDocument
	findOptions := options.FindOne().SetProjection(bson.M{"userId": 1})
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}, findOptions).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", ErrNotificationNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "load notification owner")
	}
	return doc.UserID, nil
}
