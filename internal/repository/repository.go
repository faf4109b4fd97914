package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the uniqueness and lookup indexes the store relies on.
// Safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		"selections": {
			{
				Keys:    bson.D{{Key: "studentUserId", Value: 1}, {Key: "subjectId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "sectionId", Value: 1}}},
		},
		"enrollments": {
			{
				Keys:    bson.D{{Key: "studentUserId", Value: 1}, {Key: "subjectId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"sections": {
			{Keys: bson.D{{Key: "subjectId", Value: 1}}},
			{Keys: bson.D{{Key: "published", Value: 1}}},
		},
		"group_members": {
			{
				Keys:    bson.D{{Key: "groupId", Value: 1}, {Key: "studentUserId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"swap_participants": {
			{
				Keys:    bson.D{{Key: "swapId", Value: 1}, {Key: "userId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"action_queue": {
			{Keys: bson.D{{Key: "studentUserId", Value: 1}, {Key: "createdAtMs", Value: 1}}},
			{Keys: bson.D{{Key: "studentUserId", Value: 1}, {Key: "status", Value: 1}}},
		},
		"phase_schedules": {
			{Keys: bson.D{{Key: "createdAtMs", Value: -1}}},
		},
		"notifications": {
			{Keys: bson.D{{Key: "createdAtMs", Value: -1}}},
			{Keys: bson.D{{Key: "audienceRole", Value: 1}}},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
