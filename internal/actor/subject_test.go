package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecontrol/internal/model"
)

func TestSubjectMaterializeBootstrapsFromRows(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.addSection(11, 1, 20, 0)
	ctx := context.Background()

	// two durable rows in section 10
	require.NoError(t, env.selections.Upsert(ctx, model.Selection{StudentUserID: "alice", SubjectID: 1, SectionID: 10}))
	require.NoError(t, env.selections.Upsert(ctx, model.Selection{StudentUserID: "bob", SubjectID: 1, SectionID: 10}))

	require.NoError(t, env.sys.Subject(1).Materialize(ctx))

	payload, err := env.seatCache.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, 1, payload.SubjectID)
	require.Len(t, payload.Sections, 2)
	assert.Equal(t, 28, payload.Sections["10"].SeatsLeft)
	assert.Equal(t, 30, payload.Sections["10"].MaxSeats)
	assert.Equal(t, 20, payload.Sections["11"].SeatsLeft)
}

func TestSubjectStatusTracksUpdates(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	ctx := context.Background()

	subj := env.sys.Subject(1)
	subj.NoteSeats(10, 29, 30)
	subj.NoteSeats(10, 28, 30)

	st, err := subj.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SubjectID)
	require.Len(t, st.Updates, 2)
	assert.Equal(t, 29, st.Updates[0].SeatsLeft)
	assert.Equal(t, 28, st.Updates[1].SeatsLeft)
	require.Len(t, st.Sections, 1)
	assert.Equal(t, 28, st.Sections[0].SeatsLeft)
}

func TestSubjectDropsInvalidSeatUpdates(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	ctx := context.Background()

	subj := env.sys.Subject(1)
	subj.NoteSeats(0, 5, 30)   // bad section id
	subj.NoteSeats(10, -1, 30) // negative seats
	subj.NoteSeats(10, 31, 30) // above capacity
	subj.NoteSeats(10, 12, 30)

	st, err := subj.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Updates, 1)
	assert.Equal(t, 12, st.Updates[0].SeatsLeft)
}

func TestSubjectMaterializesAfterSeatChange(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	ctx := context.Background()

	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "alice", model.ActionTake, TakePayload{SubjectID: 1, SectionID: 10}).Status)

	// the coalesced write lands within the materialize delay
	require.Eventually(t, func() bool {
		payload, _ := env.seatCache.Get(ctx, 1)
		return payload != nil && payload.Sections["10"].SeatsLeft == 29
	}, 3*time.Second, 20*time.Millisecond)
}
