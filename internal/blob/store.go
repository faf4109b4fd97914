package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the blob side of persistence: the aggregated state document and
// per-section reconciliation snapshots.
type Store interface {
	// PutState replaces state.json and returns its hex sha256 fingerprint.
	PutState(ctx context.Context, data []byte) (string, error)
	// GetState returns the current state.json, or (nil, "", nil) when the
	// aggregator has never published.
	GetState(ctx context.Context) ([]byte, string, error)
	// PutSectionSnapshot stores a snapshot under
	// section-snapshots/<sectionID>/<takenAtMs>.json.
	PutSectionSnapshot(ctx context.Context, sectionID int, takenAtMs int64, data []byte) error
	GetSectionSnapshot(ctx context.Context, sectionID int, takenAtMs int64) ([]byte, error)
}

const stateFilename = "state.json"

type gridfsStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(db *mongo.Database) (Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("blobs"))
	if err != nil {
		return nil, err
	}
	return &gridfsStore{bucket: bucket}, nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *gridfsStore) put(ctx context.Context, name string, data []byte, meta bson.M) error {
	// GridFS keeps every revision of a filename; drop older revisions so a
	// name behaves like a single mutable object.
	if err := s.deleteAll(ctx, name); err != nil {
		return err
	}
	opts := options.GridFSUpload()
	if meta != nil {
		opts.SetMetadata(meta)
	}
	stream, err := s.bucket.OpenUploadStream(name, opts)
	if err != nil {
		return err
	}
	if _, err := stream.Write(data); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

func (s *gridfsStore) get(ctx context.Context, name string) ([]byte, error) {
	var buf bytes.Buffer
	_, err := s.bucket.DownloadToStreamByName(name, &buf)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *gridfsStore) deleteAll(ctx context.Context, name string) error {
	cur, err := s.bucket.Find(bson.M{"filename": name})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var file struct {
			ID interface{} `bson:"_id"`
		}
		if err := cur.Decode(&file); err != nil {
			return err
		}
		if err := s.bucket.Delete(file.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return cur.Err()
}

func (s *gridfsStore) PutState(ctx context.Context, data []byte) (string, error) {
	fp := fingerprint(data)
	if err := s.put(ctx, stateFilename, data, bson.M{"sha256": fp}); err != nil {
		return "", err
	}
	return fp, nil
}

func (s *gridfsStore) GetState(ctx context.Context) ([]byte, string, error) {
	data, err := s.get(ctx, stateFilename)
	if err != nil || data == nil {
		return nil, "", err
	}
	return data, fingerprint(data), nil
}

func snapshotName(sectionID int, takenAtMs int64) string {
	return fmt.Sprintf("section-snapshots/%d/%d.json", sectionID, takenAtMs)
}

func (s *gridfsStore) PutSectionSnapshot(ctx context.Context, sectionID int, takenAtMs int64, data []byte) error {
	return s.put(ctx, snapshotName(sectionID, takenAtMs), data, bson.M{"sectionId": sectionID})
}

func (s *gridfsStore) GetSectionSnapshot(ctx context.Context, sectionID int, takenAtMs int64) ([]byte, error) {
	return s.get(ctx, snapshotName(sectionID, takenAtMs))
}
