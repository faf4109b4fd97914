package repository

import (
	"context"
	"coursecontrol/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// QueueRepo is the durable per-student action log. Items are append-only:
// status transitions update the row, nothing is ever deleted.
type QueueRepo interface {
	Insert(ctx context.Context, item model.QueueItem) error
	Get(ctx context.Context, studentUserID, id string) (*model.QueueItem, error)
	// SetRunning marks the item running with startedAtMs.
	SetRunning(ctx context.Context, studentUserID, id string, startedAtMs int64) error
	// SetTerminal records the terminal status (ok/error/cancelled) exactly once.
	SetTerminal(ctx context.Context, studentUserID, id string, status model.QueueStatus, finishedAtMs int64, qerr *model.QueueItemError) error
	// NextQueued returns the oldest still-queued item, or nil.
	NextQueued(ctx context.Context, studentUserID string) (*model.QueueItem, error)
	// CancelQueued flips a queued item to cancelled; false if it is not queued.
	CancelQueued(ctx context.Context, studentUserID, id string, nowMs int64) (bool, error)
	ListQueued(ctx context.Context, studentUserID string) ([]model.QueueItem, error)
	// Tail returns the most recent n items in chronological order.
	Tail(ctx context.Context, studentUserID string, n int) ([]model.QueueItem, error)
}

type queueRepo struct {
	collection *mongo.Collection
}

func NewQueueRepo(db *mongo.Database) QueueRepo {
	return &queueRepo{collection: db.Collection("action_queue")}
}

func (r *queueRepo) Insert(ctx context.Context, item model.QueueItem) error {
	_, err := r.collection.InsertOne(ctx, item)
	return err
}

func (r *queueRepo) Get(ctx context.Context, studentUserID, id string) (*model.QueueItem, error) {
	var item model.QueueItem
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "studentUserId": studentUserID}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *queueRepo) SetRunning(ctx context.Context, studentUserID, id string, startedAtMs int64) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "studentUserId": studentUserID, "status": model.QueueQueued},
		bson.M{"$set": bson.M{"status": model.QueueRunning, "startedAtMs": startedAtMs}})
	return err
}

func (r *queueRepo) SetTerminal(ctx context.Context, studentUserID, id string, status model.QueueStatus, finishedAtMs int64, qerr *model.QueueItemError) error {
	set := bson.M{"status": status, "finishedAtMs": finishedAtMs}
	if qerr != nil {
		set["error"] = qerr
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "studentUserId": studentUserID},
		bson.M{"$set": set})
	return err
}

func (r *queueRepo) NextQueued(ctx context.Context, studentUserID string) (*model.QueueItem, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAtMs", Value: 1}})
	var item model.QueueItem
	err := r.collection.FindOne(ctx,
		bson.M{"studentUserId": studentUserID, "status": model.QueueQueued}, opts).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *queueRepo) CancelQueued(ctx context.Context, studentUserID, id string, nowMs int64) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "studentUserId": studentUserID, "status": model.QueueQueued},
		bson.M{"$set": bson.M{"status": model.QueueCancelled, "finishedAtMs": nowMs}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *queueRepo) ListQueued(ctx context.Context, studentUserID string) ([]model.QueueItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAtMs", Value: 1}})
	cur, err := r.collection.Find(ctx,
		bson.M{"studentUserId": studentUserID, "status": model.QueueQueued}, opts)
	if err != nil {
		return nil, err
	}
	var out []model.QueueItem
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *queueRepo) Tail(ctx context.Context, studentUserID string, n int) ([]model.QueueItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAtMs", Value: -1}}).SetLimit(int64(n))
	cur, err := r.collection.Find(ctx, bson.M{"studentUserId": studentUserID}, opts)
	if err != nil {
		return nil, err
	}
	var out []model.QueueItem
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
