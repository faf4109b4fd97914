package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// InviteRepo stores single-use codes. Group and swap invites use separate
// collections but share the same shape.
type InviteRepo interface {
	CreateBatch(ctx context.Context, invites []model.Invite) error
	GetByCode(ctx context.Context, code string) (*model.Invite, error)
	// MarkUsed redeems the code for userID; returns false when the code was
	// already used (redeem-exactly-once races resolve here).
	MarkUsed(ctx context.Context, code, userID string, nowMs int64) (bool, error)
	DeleteByTarget(ctx context.Context, targetID string) error
	// PurgeExpired removes unused invites whose expiry passed before nowMs.
	PurgeExpired(ctx context.Context, nowMs int64) (int, error)
}

type inviteRepo struct {
	collection *mongo.Collection
}

// NewGroupInviteRepo returns the invite store for groups.
func NewGroupInviteRepo(db *mongo.Database) InviteRepo {
	return &inviteRepo{collection: db.Collection("group_invites")}
}

// NewSwapInviteRepo returns the invite store for swaps.
func NewSwapInviteRepo(db *mongo.Database) InviteRepo {
	return &inviteRepo{collection: db.Collection("swap_invites")}
}

func (r *inviteRepo) CreateBatch(ctx context.Context, invites []model.Invite) error {
	if len(invites) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(invites))
	for _, inv := range invites {
		docs = append(docs, inv)
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *inviteRepo) GetByCode(ctx context.Context, code string) (*model.Invite, error) {
	var inv model.Invite
	err := r.collection.FindOne(ctx, bson.M{"_id": code}).Decode(&inv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *inviteRepo) MarkUsed(ctx context.Context, code, userID string, nowMs int64) (bool, error) {
	filter := bson.M{"_id": code, "usedByUserId": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"usedByUserId": userID, "usedAtMs": nowMs}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *inviteRepo) DeleteByTarget(ctx context.Context, targetID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"targetId": targetID})
	return err
}

func (r *inviteRepo) PurgeExpired(ctx context.Context, nowMs int64) (int, error) {
	filter := bson.M{
		"expiresAtMs":  bson.M{"$gt": 0, "$lt": nowMs},
		"usedByUserId": bson.M{"$exists": false},
	}
	res, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
