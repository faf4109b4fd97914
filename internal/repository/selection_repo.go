package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SelectionRepo holds the authoritative (studentId, subjectId) -> sectionId
// rows. Writes are upsert-on-conflict to keep the uniqueness invariant.
type SelectionRepo interface {
	Upsert(ctx context.Context, sel model.Selection) error
	UpsertMany(ctx context.Context, sels []model.Selection) error
	Delete(ctx context.Context, studentUserID string, subjectID int) error
	ListByStudent(ctx context.Context, studentUserID string) ([]model.Selection, error)
	ListBySection(ctx context.Context, sectionID int) ([]model.Selection, error)
	CountBySection(ctx context.Context, sectionID int) (int, error)
}

type selectionRepo struct {
	collection *mongo.Collection
}

func NewSelectionRepo(db *mongo.Database) SelectionRepo {
	return &selectionRepo{collection: db.Collection("selections")}
}

func (r *selectionRepo) Upsert(ctx context.Context, sel model.Selection) error {
	filter := bson.M{"studentUserId": sel.StudentUserID, "subjectId": sel.SubjectID}
	update := bson.M{"$set": bson.M{
		"sectionId":    sel.SectionID,
		"selectedAtMs": sel.SelectedAtMs,
	}}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *selectionRepo) UpsertMany(ctx context.Context, sels []model.Selection) error {
	if len(sels) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(sels))
	for _, sel := range sels {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"studentUserId": sel.StudentUserID, "subjectId": sel.SubjectID}).
			SetUpdate(bson.M{"$set": bson.M{
				"sectionId":    sel.SectionID,
				"selectedAtMs": sel.SelectedAtMs,
			}}).
			SetUpsert(true))
	}
	_, err := r.collection.BulkWrite(ctx, models)
	return err
}

func (r *selectionRepo) Delete(ctx context.Context, studentUserID string, subjectID int) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"studentUserId": studentUserID, "subjectId": subjectID})
	return err
}

func (r *selectionRepo) ListByStudent(ctx context.Context, studentUserID string) ([]model.Selection, error) {
	cur, err := r.collection.Find(ctx, bson.M{"studentUserId": studentUserID})
	if err != nil {
		return nil, err
	}
	var out []model.Selection
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *selectionRepo) ListBySection(ctx context.Context, sectionID int) ([]model.Selection, error) {
	cur, err := r.collection.Find(ctx, bson.M{"sectionId": sectionID})
	if err != nil {
		return nil, err
	}
	var out []model.Selection
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *selectionRepo) CountBySection(ctx context.Context, sectionID int) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"sectionId": sectionID})
	return int(n), err
}
