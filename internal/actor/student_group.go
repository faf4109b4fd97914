package actor

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

type GroupCreatePayload struct {
	SubjectID int `json:"subjectId"`
}

type GroupInvitePayload struct {
	GroupID string `json:"groupId"`
	Count   int    `json:"count"`
	TTLMs   int64  `json:"ttlMs"`
}

type GroupJoinPayload struct {
	Code string `json:"code"`
}

type GroupLeavePayload struct {
	GroupID string `json:"groupId"`
}

type GroupDisbandPayload struct {
	GroupID string `json:"groupId"`
}

type GroupTakePayload struct {
	GroupID   string `json:"groupId"`
	SectionID int    `json:"sectionId"`
}

type GroupDropPayload struct {
	GroupID string `json:"groupId"`
}

type GroupChangePayload struct {
	GroupID      string `json:"groupId"`
	NewSectionID int    `json:"newSectionId"`
}

// Invite codes are unambiguous on paper: no I, O, 0 or 1.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const inviteCodeLen = 10

// inviteExpiryFloorMs keeps a positive expiry from being uselessly short.
const inviteExpiryFloorMs = 10_000

const maxInviteBatch = 50

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(inviteCodeLen)
	for _, c := range buf {
		b.WriteByte(inviteAlphabet[int(c)%len(inviteAlphabet)])
	}
	return b.String(), nil
}

func (a *StudentActor) executeGroup(ctx context.Context, item *model.QueueItem) error {
	switch item.Action {
	case model.ActionGroupCreate:
		var p GroupCreatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_create payload", 400)
		}
		return a.groupCreate(ctx, p)
	case model.ActionGroupInvite:
		var p GroupInvitePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_invite payload", 400)
		}
		return a.groupInvite(ctx, p)
	case model.ActionGroupJoin:
		var p GroupJoinPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_join payload", 400)
		}
		return a.groupJoin(ctx, p)
	case model.ActionGroupLeave:
		var p GroupLeavePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_leave payload", 400)
		}
		return a.groupLeave(ctx, p)
	case model.ActionGroupDisband:
		var p GroupDisbandPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_disband payload", 400)
		}
		return a.groupDisband(ctx, p)
	case model.ActionGroupTake:
		var p GroupTakePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_take payload", 400)
		}
		return a.groupTake(ctx, p)
	case model.ActionGroupDrop:
		var p GroupDropPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_drop payload", 400)
		}
		return a.groupDrop(ctx, p)
	case model.ActionGroupChange:
		var p GroupChangePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed group_change payload", 400)
		}
		return a.groupChange(ctx, p)
	}
	return apperr.Newf("BAD_REQUEST", 400, "unknown group action %q", item.Action)
}

func (a *StudentActor) groupCreate(ctx context.Context, p GroupCreatePayload) error {
	if err := a.requireEnrolled(ctx, p.SubjectID); err != nil {
		return err
	}
	now := a.sys.deps.nowMs()
	g := &model.Group{
		ID:           uuid.NewString(),
		SubjectID:    p.SubjectID,
		LeaderUserID: a.userID,
		CreatedAtMs:  now,
	}
	if err := a.sys.deps.Groups.Create(ctx, g); err != nil {
		return err
	}
	if err := a.sys.deps.Groups.AddMember(ctx, model.GroupMember{
		GroupID:       g.ID,
		StudentUserID: a.userID,
		JoinedAtMs:    now,
	}); err != nil {
		return err
	}
	a.sys.deps.Hub.SendToUser(a.userID, map[string]interface{}{
		"type":  "group_created",
		"group": g,
	})
	return nil
}

// loadOwnGroup fetches the group and enforces leadership.
func (a *StudentActor) loadOwnGroup(ctx context.Context, groupID string) (*model.Group, error) {
	g, err := a.sys.deps.Groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperr.New("GROUP_NOT_FOUND", "group not found", 404)
	}
	if g.LeaderUserID != a.userID {
		return nil, apperr.New("NOT_GROUP_LEADER", "only the leader may do this", 403)
	}
	return g, nil
}

func (a *StudentActor) groupInvite(ctx context.Context, p GroupInvitePayload) error {
	g, err := a.loadOwnGroup(ctx, p.GroupID)
	if err != nil {
		return err
	}
	count := p.Count
	if count <= 0 {
		count = 1
	}
	if count > maxInviteBatch {
		return apperr.New("BAD_REQUEST", "count must be 1..50", 400)
	}
	now := a.sys.deps.nowMs()
	var expiresAt int64
	if p.TTLMs > 0 {
		ttl := p.TTLMs
		if ttl < inviteExpiryFloorMs {
			ttl = inviteExpiryFloorMs
		}
		expiresAt = now + ttl
	}
	invites := make([]model.Invite, 0, count)
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, cerr := newInviteCode()
		if cerr != nil {
			return cerr
		}
		codes = append(codes, code)
		invites = append(invites, model.Invite{
			Code:        code,
			TargetID:    g.ID,
			CreatedAtMs: now,
			ExpiresAtMs: expiresAt,
		})
	}
	if err := a.sys.deps.GroupInvites.CreateBatch(ctx, invites); err != nil {
		return err
	}
	a.sys.deps.Hub.SendToUser(a.userID, map[string]interface{}{
		"type":    "group_invites",
		"groupId": g.ID,
		"codes":   codes,
	})
	return nil
}

func (a *StudentActor) groupJoin(ctx context.Context, p GroupJoinPayload) error {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	inv, err := a.sys.deps.GroupInvites.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	now := a.sys.deps.nowMs()
	if inv == nil {
		return apperr.New("INVITE_INVALID", "invite code not recognized", 404)
	}
	if inv.Expired(now) {
		return apperr.New("INVITE_EXPIRED", "invite code expired", 410)
	}
	if inv.Used() {
		return apperr.New("INVITE_USED", "invite code already redeemed", 409)
	}
	g, err := a.sys.deps.Groups.GetByID(ctx, inv.TargetID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.New("INVITE_INVALID", "invite code not recognized", 404)
	}
	if g.IsLocked {
		return apperr.New("GROUP_LOCKED", "group is applying an action, retry shortly", 409)
	}
	if err := a.requireEnrolled(ctx, g.SubjectID); err != nil {
		return err
	}
	ok, err := a.sys.deps.GroupInvites.MarkUsed(ctx, code, a.userID, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New("INVITE_USED", "invite code already redeemed", 409)
	}
	return a.sys.deps.Groups.AddMember(ctx, model.GroupMember{
		GroupID:       g.ID,
		StudentUserID: a.userID,
		JoinedAtMs:    now,
	})
}

func (a *StudentActor) groupLeave(ctx context.Context, p GroupLeavePayload) error {
	g, err := a.sys.deps.Groups.GetByID(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if g == nil {
		return apperr.New("GROUP_NOT_FOUND", "group not found", 404)
	}
	if g.LeaderUserID == a.userID {
		return apperr.New("LEADER_CANNOT_LEAVE", "the leader disbands instead of leaving", 409)
	}
	if g.IsLocked {
		return apperr.New("GROUP_LOCKED", "group is applying an action, retry shortly", 409)
	}
	return a.sys.deps.Groups.RemoveMember(ctx, g.ID, a.userID)
}

func (a *StudentActor) groupDisband(ctx context.Context, p GroupDisbandPayload) error {
	g, err := a.loadOwnGroup(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if g.IsLocked {
		return apperr.New("GROUP_LOCKED", "group is applying an action, retry shortly", 409)
	}
	if err := a.sys.deps.GroupInvites.DeleteByTarget(ctx, g.ID); err != nil {
		return err
	}
	return a.sys.deps.Groups.Delete(ctx, g.ID)
}

// fanOut locks the group, applies fn to every member in join order and
// always unlocks, even when the caller's context is already gone. Failed
// members do not stop the remaining ones: a half-placed group is easier to
// finish by hand than an interleaving of partial rollbacks.
func (a *StudentActor) fanOut(ctx context.Context, g *model.Group, fn func(ctx context.Context, member *StudentActor) error, self func(ctx context.Context) error) error {
	if g.IsLocked {
		return apperr.New("GROUP_LOCKED", "group is already applying an action", 409)
	}
	if err := a.sys.deps.Groups.SetLocked(ctx, g.ID, true); err != nil {
		return err
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.sys.deps.Groups.SetLocked(uctx, g.ID, false); err != nil {
			a.sys.deps.Log.Printf("student %s: unlock of group %s failed: %v", a.userID, g.ID, err)
		}
	}()

	memberIDs, err := a.sys.deps.Groups.MemberIDs(ctx, g.ID)
	if err != nil {
		return err
	}
	var failed []string
	for _, id := range memberIDs {
		var aerr error
		if id == a.userID {
			// running through our own mailbox would deadlock: this
			// code already holds it
			aerr = self(ctx)
		} else {
			mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			aerr = fn(mctx, a.sys.Student(id))
			cancel()
		}
		if aerr != nil {
			ae := apperr.From(aerr)
			failed = append(failed, fmt.Sprintf("%s(%s)", id, ae.Code))
		}
	}
	if len(failed) > 0 {
		return apperr.Newf("GROUP_PARTIAL", 409, "action failed for: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (a *StudentActor) groupTake(ctx context.Context, p GroupTakePayload) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	g, err := a.loadOwnGroup(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if _, err := a.loadSection(ctx, g.SubjectID, p.SectionID); err != nil {
		return err
	}
	return a.fanOut(ctx, g,
		func(ctx context.Context, member *StudentActor) error {
			return member.ApplyTake(ctx, g.SubjectID, p.SectionID)
		},
		func(ctx context.Context) error {
			return a.applyInline(ctx, model.ActionTake, mustJSON(TakePayload{SubjectID: g.SubjectID, SectionID: p.SectionID}), func(ctx context.Context) error {
				return a.takeCore(ctx, g.SubjectID, p.SectionID)
			})
		})
}

func (a *StudentActor) groupDrop(ctx context.Context, p GroupDropPayload) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	g, err := a.loadOwnGroup(ctx, p.GroupID)
	if err != nil {
		return err
	}
	return a.fanOut(ctx, g,
		func(ctx context.Context, member *StudentActor) error {
			return member.ApplyDrop(ctx, g.SubjectID)
		},
		func(ctx context.Context) error {
			return a.applyInline(ctx, model.ActionDrop, mustJSON(DropPayload{SubjectID: g.SubjectID}), func(ctx context.Context) error {
				return a.dropCore(ctx, g.SubjectID)
			})
		})
}

func (a *StudentActor) groupChange(ctx context.Context, p GroupChangePayload) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	g, err := a.loadOwnGroup(ctx, p.GroupID)
	if err != nil {
		return err
	}
	if _, err := a.loadSection(ctx, g.SubjectID, p.NewSectionID); err != nil {
		return err
	}
	return a.fanOut(ctx, g,
		func(ctx context.Context, member *StudentActor) error {
			return member.ApplyChange(ctx, g.SubjectID, p.NewSectionID)
		},
		func(ctx context.Context) error {
			return a.applyInline(ctx, model.ActionChange, mustJSON(ChangePayload{SubjectID: g.SubjectID, NewSectionID: p.NewSectionID}), func(ctx context.Context) error {
				return a.changeCore(ctx, g.SubjectID, p.NewSectionID)
			})
		})
}
