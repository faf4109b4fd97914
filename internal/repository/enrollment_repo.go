package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnrollmentRepo answers which subjects a student may act on.
type EnrollmentRepo interface {
	SubjectIDsFor(ctx context.Context, studentUserID string) ([]int, error)
}

type enrollmentRepo struct {
	collection *mongo.Collection
}

func NewEnrollmentRepo(db *mongo.Database) EnrollmentRepo {
	return &enrollmentRepo{collection: db.Collection("enrollments")}
}

func (r *enrollmentRepo) SubjectIDsFor(ctx context.Context, studentUserID string) ([]int, error) {
	cur, err := r.collection.Find(ctx, bson.M{"studentUserId": studentUserID})
	if err != nil {
		return nil, err
	}
	var rows []model.Enrollment
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SubjectID)
	}
	return ids, nil
}
