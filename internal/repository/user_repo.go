package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepo interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	NamesByIDs(ctx context.Context, userIDs []string) (map[string]string, error)
	RoleOf(ctx context.Context, userID string) (model.Role, error)
}

type userRepo struct {
	collection *mongo.Collection
}

func NewUserRepo(db *mongo.Database) UserRepo {
	return &userRepo{collection: db.Collection("users")}
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) NamesByIDs(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	cur, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u.Name
	}
	return out, nil
}

func (r *userRepo) RoleOf(ctx context.Context, userID string) (model.Role, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", mongo.ErrNoDocuments
	}
	return u.Role, nil
}
