package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SubjectRepo reads the subject catalog.
type SubjectRepo interface {
	GetByID(ctx context.Context, subjectID int) (*model.Subject, error)
	GetByIDs(ctx context.Context, subjectIDs []int) ([]model.Subject, error)
	ListPublished(ctx context.Context) ([]model.Subject, error)
	SetPublished(ctx context.Context, subjectID int, published bool) error
}

type subjectRepo struct {
	collection *mongo.Collection
}

func NewSubjectRepo(db *mongo.Database) SubjectRepo {
	return &subjectRepo{collection: db.Collection("subjects")}
}

func (r *subjectRepo) GetByID(ctx context.Context, subjectID int) (*model.Subject, error) {
	var sub model.Subject
	err := r.collection.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subjectRepo) GetByIDs(ctx context.Context, subjectIDs []int) ([]model.Subject, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	cur, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": subjectIDs}})
	if err != nil {
		return nil, err
	}
	var out []model.Subject
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subjectRepo) SetPublished(ctx context.Context, subjectID int, published bool) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": subjectID},
		bson.M{"$set": bson.M{"published": published}})
	return err
}

func (r *subjectRepo) ListPublished(ctx context.Context) ([]model.Subject, error) {
	cur, err := r.collection.Find(ctx, bson.M{"published": true})
	if err != nil {
		return nil, err
	}
	var out []model.Subject
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
