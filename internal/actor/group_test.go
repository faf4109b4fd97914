package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecontrol/internal/model"
)

// createGroup runs a group_create for the leader and returns the new group ID.
func createGroup(t *testing.T, env *testEnv, leader string, subjectID int) string {
	t.Helper()
	item := enqueueAndWait(t, env, leader, model.ActionGroupCreate, GroupCreatePayload{SubjectID: subjectID})
	require.Equal(t, model.QueueOK, item.Status)

	env.groups.mu.Lock()
	defer env.groups.mu.Unlock()
	for id := range env.groups.groups {
		return id
	}
	t.Fatal("no group created")
	return ""
}

// inviteCodes runs a group_invite and returns the minted codes.
func inviteCodes(t *testing.T, env *testEnv, leader, groupID string, count int, ttlMs int64) []string {
	t.Helper()
	item := enqueueAndWait(t, env, leader, model.ActionGroupInvite, GroupInvitePayload{GroupID: groupID, Count: count, TTLMs: ttlMs})
	require.Equal(t, model.QueueOK, item.Status)

	env.groupInvites.mu.Lock()
	defer env.groupInvites.mu.Unlock()
	var codes []string
	for code, inv := range env.groupInvites.rows {
		if inv.TargetID == groupID && !inv.Used() {
			codes = append(codes, code)
		}
	}
	require.NotEmpty(t, codes)
	return codes
}

func TestGroupCreateRequiresEnrollment(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupCreate, GroupCreatePayload{SubjectID: 1})
	require.Equal(t, model.QueueError, item.Status)
	assert.Equal(t, "NOT_ENROLLED", item.Error.Code)
}

func TestGroupInviteAndJoin(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)

	join := enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]})
	require.Equal(t, model.QueueOK, join.Status)

	members, err := env.groups.MemberIDs(context.Background(), groupID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)
}

func TestGroupInviteCodeSingleUse(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)
	env.enroll("carol", 1)

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)

	first := enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]})
	require.Equal(t, model.QueueOK, first.Status)

	second := enqueueAndWait(t, env, "carol", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]})
	require.Equal(t, model.QueueError, second.Status)
	assert.Equal(t, "INVITE_USED", second.Error.Code)
}

func TestGroupJoinExpiredInvite(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)

	groupID := createGroup(t, env, "alice", 1)
	require.NoError(t, env.groupInvites.CreateBatch(context.Background(), []model.Invite{{
		Code:        "EXPIRED999",
		TargetID:    groupID,
		CreatedAtMs: 1,
		ExpiresAtMs: 2, // long past
	}}))

	join := enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: "EXPIRED999"})
	require.Equal(t, model.QueueError, join.Status)
	assert.Equal(t, "INVITE_EXPIRED", join.Error.Code)
}

func TestGroupJoinUnknownCode(t *testing.T) {
	env := newTestEnv()
	env.enroll("bob", 1)

	join := enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: "NOPE"})
	require.Equal(t, model.QueueError, join.Status)
	assert.Equal(t, "INVITE_INVALID", join.Error.Code)
}

func TestGroupJoinLockedGroup(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)
	require.NoError(t, env.groups.SetLocked(context.Background(), groupID, true))

	join := enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]})
	require.Equal(t, model.QueueError, join.Status)
	assert.Equal(t, "GROUP_LOCKED", join.Error.Code)
}

func TestGroupInviteRequiresLeader(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)

	groupID := createGroup(t, env, "alice", 1)

	item := enqueueAndWait(t, env, "bob", model.ActionGroupInvite, GroupInvitePayload{GroupID: groupID, Count: 1})
	require.Equal(t, model.QueueError, item.Status)
	assert.Equal(t, "NOT_GROUP_LEADER", item.Error.Code)
}

func TestGroupLeaderCannotLeave(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)

	groupID := createGroup(t, env, "alice", 1)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupLeave, GroupLeavePayload{GroupID: groupID})
	require.Equal(t, model.QueueError, item.Status)
	assert.Equal(t, "LEADER_CANNOT_LEAVE", item.Error.Code)
}

func TestGroupMemberLeaves(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]}).Status)

	leave := enqueueAndWait(t, env, "bob", model.ActionGroupLeave, GroupLeavePayload{GroupID: groupID})
	require.Equal(t, model.QueueOK, leave.Status)

	members, _ := env.groups.MemberIDs(context.Background(), groupID)
	assert.Equal(t, []string{"alice"}, members)
}

func TestGroupDisbandRemovesInvites(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)

	groupID := createGroup(t, env, "alice", 1)
	inviteCodes(t, env, "alice", groupID, 3, 0)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupDisband, GroupDisbandPayload{GroupID: groupID})
	require.Equal(t, model.QueueOK, item.Status)

	g, err := env.groups.GetByID(context.Background(), groupID)
	require.NoError(t, err)
	assert.Nil(t, g)

	env.groupInvites.mu.Lock()
	defer env.groupInvites.mu.Unlock()
	assert.Empty(t, env.groupInvites.rows)
}

func TestGroupTakeAppliesToAllMembers(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)
	ctx := context.Background()

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]}).Status)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupTake, GroupTakePayload{GroupID: groupID, SectionID: 10})
	require.Equal(t, model.QueueOK, item.Status)

	for _, id := range []string{"alice", "bob"} {
		sels, err := env.selections.ListByStudent(ctx, id)
		require.NoError(t, err)
		require.Len(t, sels, 1, id)
		assert.Equal(t, 10, sels[0].SectionID, id)
	}

	// every participant, the leader included, got a finished queue record
	// for the applied take
	for _, id := range []string{"alice", "bob"} {
		tail, err := env.queue.Tail(ctx, id, 10)
		require.NoError(t, err)
		var found bool
		for _, qi := range tail {
			if qi.Action == model.ActionTake && qi.Status == model.QueueOK {
				found = true
			}
		}
		assert.True(t, found, "%s should carry an applied take record", id)
	}

	g, _ := env.groups.GetByID(ctx, groupID)
	require.NotNil(t, g)
	assert.False(t, g.IsLocked)
}

func TestGroupTakePartialFailureUnlocks(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0b0001)
	env.addSection(20, 2, 30, 0b0001) // clashes with section 10
	env.enroll("alice", 1)
	env.enroll("bob", 1, 2)
	ctx := context.Background()

	// bob already sits in a clashing timeslot
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "bob", model.ActionTake, TakePayload{SubjectID: 2, SectionID: 20}).Status)

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]}).Status)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupTake, GroupTakePayload{GroupID: groupID, SectionID: 10})
	require.Equal(t, model.QueueError, item.Status)
	assert.Equal(t, "GROUP_PARTIAL", item.Error.Code)

	// successful members keep their seats, failed ones are untouched
	aliceSels, _ := env.selections.ListByStudent(ctx, "alice")
	require.Len(t, aliceSels, 1)
	bobSels, _ := env.selections.ListByStudent(ctx, "bob")
	require.Len(t, bobSels, 1)
	assert.Equal(t, 20, bobSels[0].SectionID)

	// lock never sticks
	require.Eventually(t, func() bool {
		g, _ := env.groups.GetByID(ctx, groupID)
		return g != nil && !g.IsLocked
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGroupTakePhaseGated(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.enroll("alice", 1)

	groupID := createGroup(t, env, "alice", 1)
	env.oracle.set(model.PhaseSwap)

	item := enqueueAndWait(t, env, "alice", model.ActionGroupTake, GroupTakePayload{GroupID: groupID, SectionID: 10})
	require.Equal(t, model.QueueError, item.Status)
	assert.Equal(t, "PHASE_NOT_SELECTION", item.Error.Code)
}

func TestGroupChangeMovesEveryone(t *testing.T) {
	env := newTestEnv()
	env.addSection(10, 1, 30, 0)
	env.addSection(11, 1, 30, 0)
	env.enroll("alice", 1)
	env.enroll("bob", 1)
	ctx := context.Background()

	groupID := createGroup(t, env, "alice", 1)
	codes := inviteCodes(t, env, "alice", groupID, 1, 0)
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "bob", model.ActionGroupJoin, GroupJoinPayload{Code: codes[0]}).Status)

	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "alice", model.ActionGroupTake, GroupTakePayload{GroupID: groupID, SectionID: 10}).Status)
	require.Equal(t, model.QueueOK,
		enqueueAndWait(t, env, "alice", model.ActionGroupChange, GroupChangePayload{GroupID: groupID, NewSectionID: 11}).Status)

	for _, id := range []string{"alice", "bob"} {
		sels, _ := env.selections.ListByStudent(ctx, id)
		require.Len(t, sels, 1, id)
		assert.Equal(t, 11, sels[0].SectionID, id)
	}
}

func TestInviteCodeAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newInviteCode()
		require.NoError(t, err)
		require.Len(t, code, inviteCodeLen)
		for _, r := range code {
			assert.Contains(t, inviteAlphabet, string(r))
		}
	}
}
