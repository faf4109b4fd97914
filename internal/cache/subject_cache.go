package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SectionSeats is one section's entry in a subject's materialized payload.
type SectionSeats struct {
	SectionID   int   `json:"sectionId"`
	SeatsLeft   int   `json:"seatsLeft"`
	MaxSeats    int   `json:"maxSeats"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// SubjectPayload is the read-optimized snapshot a subject actor materializes.
type SubjectPayload struct {
	SubjectID   int                     `json:"subjectId"`
	UpdatedAtMs int64                   `json:"updatedAtMs"`
	Sections    map[string]SectionSeats `json:"sections"`
}

// SubjectCache handles the durable key-value entries under subject:<id>.
// Write-heavy from subject actors, read-heavy from the aggregator and
// seat-status pushes.
type SubjectCache interface {
	Set(ctx context.Context, subjectID int, payload *SubjectPayload) error
	Get(ctx context.Context, subjectID int) (*SubjectPayload, error)
}

type subjectCache struct {
	client *redis.Client
}

func NewSubjectCache(client *redis.Client) SubjectCache {
	return &subjectCache{client: client}
}

func (c *subjectCache) key(subjectID int) string {
	return fmt.Sprintf("subject:%d", subjectID)
}

func (c *subjectCache) Set(ctx context.Context, subjectID int, payload *SubjectPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(subjectID), data, 0).Err()
}

func (c *subjectCache) Get(ctx context.Context, subjectID int) (*SubjectPayload, error) {
	data, err := c.client.Get(ctx, c.key(subjectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var payload SubjectPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
