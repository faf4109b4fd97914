package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SectionRepo reads the section catalog.
type SectionRepo interface {
	GetByID(ctx context.Context, sectionID int) (*model.Section, error)
	GetByIDs(ctx context.Context, sectionIDs []int) ([]model.Section, error)
	ListBySubject(ctx context.Context, subjectID int) ([]model.Section, error)
	ListByFaculty(ctx context.Context, facultyUserID string) ([]model.Section, error)
	ListPublished(ctx context.Context) ([]model.Section, error)
	SetPublished(ctx context.Context, sectionID int, published bool) error
}

type sectionRepo struct {
	collection *mongo.Collection
}

func NewSectionRepo(db *mongo.Database) SectionRepo {
	return &sectionRepo{collection: db.Collection("sections")}
}

func (r *sectionRepo) GetByID(ctx context.Context, sectionID int) (*model.Section, error) {
	var sec model.Section
	err := r.collection.FindOne(ctx, bson.M{"_id": sectionID}).Decode(&sec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &sec, nil
}

func (r *sectionRepo) GetByIDs(ctx context.Context, sectionIDs []int) ([]model.Section, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	cur, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": sectionIDs}})
	if err != nil {
		return nil, err
	}
	var out []model.Section
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sectionRepo) SetPublished(ctx context.Context, sectionID int, published bool) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": sectionID},
		bson.M{"$set": bson.M{"published": published}})
	return err
}

func (r *sectionRepo) ListBySubject(ctx context.Context, subjectID int) ([]model.Section, error) {
	cur, err := r.collection.Find(ctx, bson.M{"subjectId": subjectID})
	if err != nil {
		return nil, err
	}
	var out []model.Section
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sectionRepo) ListByFaculty(ctx context.Context, facultyUserID string) ([]model.Section, error) {
	cur, err := r.collection.Find(ctx, bson.M{"facultyUserId": facultyUserID})
	if err != nil {
		return nil, err
	}
	var out []model.Section
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sectionRepo) ListPublished(ctx context.Context) ([]model.Section, error) {
	cur, err := r.collection.Find(ctx, bson.M{"published": true})
	if err != nil {
		return nil, err
	}
	var out []model.Section
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
