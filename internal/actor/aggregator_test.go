package actor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecontrol/internal/model"
)

func TestAggregatorBuildPublishesState(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.addSection(11, 1, 20, 0)
	env.enroll("alice", 1)
	ctx := context.Background()

	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "alice", model.ActionTake, TakePayload{SubjectID: 1, SectionID: 10}).Status)
	require.NoError(t, env.sys.Subject(1).Materialize(ctx))

	agg := env.sys.Aggregator()
	require.NoError(t, agg.BuildNow(ctx))

	data, fp, err := agg.State(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.NotEmpty(t, fp)

	var state AggregateState
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Subjects, 1)
	subj := state.Subjects[0]
	assert.Equal(t, 1, subj.SubjectID)
	require.Len(t, subj.Sections, 2)
	// sections sorted by id
	assert.Equal(t, 10, subj.Sections[0].SectionID)
	assert.Equal(t, 29, subj.Sections[0].SeatsLeft)
	assert.Equal(t, 11, subj.Sections[1].SectionID)
	assert.Equal(t, 20, subj.Sections[1].SeatsLeft)
}

func TestAggregatorZeroSeatsWithoutCacheEntry(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	ctx := context.Background()

	agg := env.sys.Aggregator()
	require.NoError(t, agg.BuildNow(ctx))

	data, _, err := agg.State(ctx)
	require.NoError(t, err)

	var state AggregateState
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Subjects, 1)
	require.Len(t, state.Subjects[0].Sections, 1)
	// never advertise seats the cache has not confirmed
	assert.Equal(t, 0, state.Subjects[0].Sections[0].SeatsLeft)
	assert.Equal(t, 30, state.Subjects[0].Sections[0].MaxSeats)
}

func TestAggregatorSkipsUnpublishedSubjects(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.subjects.rows[2] = model.Subject{ID: 2, Code: "X", Name: "Hidden", Published: false}
	ctx := context.Background()

	agg := env.sys.Aggregator()
	require.NoError(t, agg.BuildNow(ctx))

	data, _, err := agg.State(ctx)
	require.NoError(t, err)

	var state AggregateState
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Subjects, 1)
	assert.Equal(t, 1, state.Subjects[0].SubjectID)
}

func TestAggregatorBuildLog(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	ctx := context.Background()

	agg := env.sys.Aggregator()
	require.NoError(t, agg.BuildNow(ctx))

	env.blob.mu.Lock()
	env.blob.putErr = assert.AnError
	env.blob.mu.Unlock()
	require.Error(t, agg.BuildNow(ctx))

	log, err := agg.Log(ctx)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.True(t, log[0].OK)
	assert.NotEmpty(t, log[0].Fingerprint)
	assert.Equal(t, 1, log[0].Subjects)
	assert.Equal(t, 1, log[0].CacheMisses)
	assert.Zero(t, log[0].CacheHits)
	assert.False(t, log[1].OK)
	assert.NotEmpty(t, log[1].Error)
}
