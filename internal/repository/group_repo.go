package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GroupRepo owns groups and their membership. Groups live in the shared store,
// not in any single actor, because membership must be visible to multiple
// student actors at once.
type GroupRepo interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, groupID string) (*model.Group, error)
	SetLocked(ctx context.Context, groupID string, locked bool) error
	Delete(ctx context.Context, groupID string) error

	AddMember(ctx context.Context, m model.GroupMember) error
	RemoveMember(ctx context.Context, groupID, studentUserID string) error
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	ListByMember(ctx context.Context, studentUserID string) ([]model.Group, error)
}

type groupRepo struct {
	groups  *mongo.Collection
	members *mongo.Collection
}

func NewGroupRepo(db *mongo.Database) GroupRepo {
	return &groupRepo{
		groups:  db.Collection("groups"),
		members: db.Collection("group_members"),
	}
}

func (r *groupRepo) Create(ctx context.Context, g *model.Group) error {
	_, err := r.groups.InsertOne(ctx, g)
	return err
}

func (r *groupRepo) GetByID(ctx context.Context, groupID string) (*model.Group, error) {
	var g model.Group
	err := r.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *groupRepo) SetLocked(ctx context.Context, groupID string, locked bool) error {
	_, err := r.groups.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$set": bson.M{"isLocked": locked}})
	return err
}

func (r *groupRepo) Delete(ctx context.Context, groupID string) error {
	if _, err := r.members.DeleteMany(ctx, bson.M{"groupId": groupID}); err != nil {
		return err
	}
	_, err := r.groups.DeleteOne(ctx, bson.M{"_id": groupID})
	return err
}

func (r *groupRepo) AddMember(ctx context.Context, m model.GroupMember) error {
	filter := bson.M{"groupId": m.GroupID, "studentUserId": m.StudentUserID}
	update := bson.M{"$setOnInsert": bson.M{"joinedAtMs": m.JoinedAtMs}}
	_, err := r.members.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *groupRepo) RemoveMember(ctx context.Context, groupID, studentUserID string) error {
	_, err := r.members.DeleteOne(ctx, bson.M{"groupId": groupID, "studentUserId": studentUserID})
	return err
}

func (r *groupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joinedAtMs", Value: 1}})
	cur, err := r.members.Find(ctx, bson.M{"groupId": groupID}, opts)
	if err != nil {
		return nil, err
	}
	var rows []model.GroupMember
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.StudentUserID)
	}
	return ids, nil
}

func (r *groupRepo) ListByMember(ctx context.Context, studentUserID string) ([]model.Group, error) {
	cur, err := r.members.Find(ctx, bson.M{"studentUserId": studentUserID})
	if err != nil {
		return nil, err
	}
	var rows []model.GroupMember
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.GroupID)
	}
	gcur, err := r.groups.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var out []model.Group
	if err := gcur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
