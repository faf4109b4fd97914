package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SwapRepo owns swaps and their participants.
type SwapRepo interface {
	Create(ctx context.Context, s *model.Swap) error
	GetByID(ctx context.Context, swapID string) (*model.Swap, error)
	SetStatus(ctx context.Context, swapID string, status model.SwapStatus, executedAtMs int64) error

	UpsertParticipant(ctx context.Context, p model.SwapParticipant) error
	Participants(ctx context.Context, swapID string) ([]model.SwapParticipant, error)
	ListByUser(ctx context.Context, userID string) ([]model.Swap, error)
}

type swapRepo struct {
	swaps        *mongo.Collection
	participants *mongo.Collection
}

func NewSwapRepo(db *mongo.Database) SwapRepo {
	return &swapRepo{
		swaps:        db.Collection("swaps"),
		participants: db.Collection("swap_participants"),
	}
}

func (r *swapRepo) Create(ctx context.Context, s *model.Swap) error {
	_, err := r.swaps.InsertOne(ctx, s)
	return err
}

func (r *swapRepo) GetByID(ctx context.Context, swapID string) (*model.Swap, error) {
	var s model.Swap
	err := r.swaps.FindOne(ctx, bson.M{"_id": swapID}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *swapRepo) SetStatus(ctx context.Context, swapID string, status model.SwapStatus, executedAtMs int64) error {
	set := bson.M{"status": status}
	if executedAtMs != 0 {
		set["executedAtMs"] = executedAtMs
	}
	_, err := r.swaps.UpdateOne(ctx, bson.M{"_id": swapID}, bson.M{"$set": set})
	return err
}

func (r *swapRepo) UpsertParticipant(ctx context.Context, p model.SwapParticipant) error {
	filter := bson.M{"swapId": p.SwapID, "userId": p.UserID}
	update := bson.M{"$set": bson.M{
		"giveSectionId": p.GiveSectionID,
		"wantSectionId": p.WantSectionID,
		"createdAtMs":   p.CreatedAtMs,
	}}
	_, err := r.participants.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *swapRepo) Participants(ctx context.Context, swapID string) ([]model.SwapParticipant, error) {
	cur, err := r.participants.Find(ctx, bson.M{"swapId": swapID})
	if err != nil {
		return nil, err
	}
	var out []model.SwapParticipant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *swapRepo) ListByUser(ctx context.Context, userID string) ([]model.Swap, error) {
	pcur, err := r.participants.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	var parts []model.SwapParticipant
	if err := pcur.All(ctx, &parts); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.SwapID)
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"leaderUserId": userID},
		bson.M{"_id": bson.M{"$in": ids}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAtMs", Value: -1}})
	cur, err := r.swaps.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []model.Swap
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
