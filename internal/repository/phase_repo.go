package repository

import (
	"context"
	"coursecontrol/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PhaseRepo stores the phase schedule. The newest row wins; setting a new
// schedule inserts rather than updates, keeping the history.
type PhaseRepo interface {
	Latest(ctx context.Context) (*model.PhaseSchedule, error)
	Insert(ctx context.Context, s *model.PhaseSchedule) error
}

type phaseRepo struct {
	collection *mongo.Collection
}

func NewPhaseRepo(db *mongo.Database) PhaseRepo {
	return &phaseRepo{collection: db.Collection("phase_schedules")}
}

func (r *phaseRepo) Insert(ctx context.Context, s *model.PhaseSchedule) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.collection.InsertOne(ctx, s)
	return err
}

func (r *phaseRepo) Latest(ctx context.Context) (*model.PhaseSchedule, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAtMs", Value: -1}})
	var s model.PhaseSchedule
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
