package repository

import (
	"context"
	"coursecontrol/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type NotificationRepo interface {
	Create(ctx context.Context, n *model.Notification) error
	ListForAudience(ctx context.Context, role model.Role, userID string, limit int) ([]model.Notification, error)
}

type notificationRepo struct {
	collection *mongo.Collection
}

func NewNotificationRepo(db *mongo.Database) NotificationRepo {
	return &notificationRepo{collection: db.Collection("notifications")}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	_, err := r.collection.InsertOne(ctx, n)
	return err
}

func (r *notificationRepo) ListForAudience(ctx context.Context, role model.Role, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"audienceRole": role},
		bson.M{"audienceUserId": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAtMs", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []model.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
