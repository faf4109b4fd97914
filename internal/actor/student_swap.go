package actor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

type SwapCreatePayload struct {
	GiveSectionID int `json:"giveSectionId"`
	WantSectionID int `json:"wantSectionId"`
}

type SwapInvitePayload struct {
	SwapID string `json:"swapId"`
	Count  int    `json:"count"`
	TTLMs  int64  `json:"ttlMs"`
}

type SwapJoinPayload struct {
	Code          string `json:"code"`
	GiveSectionID int    `json:"giveSectionId"`
	WantSectionID int    `json:"wantSectionId"`
}

type SwapExecPayload struct {
	SwapID string `json:"swapId"`
}

const minSwapParticipants = 2

func (a *StudentActor) executeSwap(ctx context.Context, item *model.QueueItem) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SWAP", string(model.PhaseSwap)); err != nil {
		return err
	}
	switch item.Action {
	case model.ActionSwapCreate:
		var p SwapCreatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed swap_create payload", 400)
		}
		return a.swapCreate(ctx, p)
	case model.ActionSwapInvite:
		var p SwapInvitePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed swap_invite payload", 400)
		}
		return a.swapInvite(ctx, p)
	case model.ActionSwapJoin:
		var p SwapJoinPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed swap_join payload", 400)
		}
		return a.swapJoin(ctx, p)
	case model.ActionSwapExec:
		var p SwapExecPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed swap_exec payload", 400)
		}
		return a.swapExec(ctx, p)
	}
	return apperr.Newf("BAD_REQUEST", 400, "unknown swap action %q", item.Action)
}

// validateLeg checks one participant's give/want pair: both sections exist
// in the same subject and the participant currently holds the give section.
func (a *StudentActor) validateLeg(ctx context.Context, userID string, giveSectionID, wantSectionID int) (subjectID int, err error) {
	give, err := a.sys.deps.Sections.GetByID(ctx, giveSectionID)
	if err != nil {
		return 0, err
	}
	if give == nil {
		return 0, apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", giveSectionID)
	}
	want, err := a.sys.deps.Sections.GetByID(ctx, wantSectionID)
	if err != nil {
		return 0, err
	}
	if want == nil || !want.Published {
		return 0, apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", wantSectionID)
	}
	if give.SubjectID != want.SubjectID {
		return 0, apperr.New("BAD_REQUEST", "give and want must be sections of one subject", 400)
	}
	if giveSectionID == wantSectionID {
		return 0, apperr.New("BAD_REQUEST", "give and want are the same section", 400)
	}
	sels, err := a.sys.deps.Selections.ListByStudent(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, sel := range sels {
		if sel.SubjectID == give.SubjectID {
			if sel.SectionID != giveSectionID {
				return 0, apperr.Newf("NOT_HOLDING_SECTION", 409, "not currently in section %d", giveSectionID)
			}
			return give.SubjectID, nil
		}
	}
	return 0, apperr.Newf("NOT_HOLDING_SECTION", 409, "not currently in section %d", giveSectionID)
}

func (a *StudentActor) swapCreate(ctx context.Context, p SwapCreatePayload) error {
	if _, err := a.validateLeg(ctx, a.userID, p.GiveSectionID, p.WantSectionID); err != nil {
		return err
	}
	now := a.sys.deps.nowMs()
	sw := &model.Swap{
		ID:           uuid.NewString(),
		LeaderUserID: a.userID,
		Status:       model.SwapOpen,
		CreatedAtMs:  now,
	}
	if err := a.sys.deps.Swaps.Create(ctx, sw); err != nil {
		return err
	}
	if err := a.sys.deps.Swaps.UpsertParticipant(ctx, model.SwapParticipant{
		SwapID:        sw.ID,
		UserID:        a.userID,
		GiveSectionID: p.GiveSectionID,
		WantSectionID: p.WantSectionID,
		CreatedAtMs:   now,
	}); err != nil {
		return err
	}
	a.sys.deps.Hub.SendToUser(a.userID, map[string]interface{}{
		"type": "swap_created",
		"swap": sw,
	})
	return nil
}

func (a *StudentActor) loadOwnSwap(ctx context.Context, swapID string) (*model.Swap, error) {
	sw, err := a.sys.deps.Swaps.GetByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if sw == nil {
		return nil, apperr.New("SWAP_NOT_FOUND", "swap not found", 404)
	}
	if sw.LeaderUserID != a.userID {
		return nil, apperr.New("NOT_SWAP_LEADER", "only the leader may do this", 403)
	}
	return sw, nil
}

func (a *StudentActor) swapInvite(ctx context.Context, p SwapInvitePayload) error {
	sw, err := a.loadOwnSwap(ctx, p.SwapID)
	if err != nil {
		return err
	}
	if sw.Status != model.SwapOpen {
		return apperr.New("SWAP_NOT_OPEN", "swap no longer accepts participants", 409)
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
			TargetID:    sw.ID,
			CreatedAtMs: now,
			ExpiresAtMs: expiresAt,
		})
	}
	if err := a.sys.deps.SwapInvites.CreateBatch(ctx, invites); err != nil {
		return err
	}
	a.sys.deps.Hub.SendToUser(a.userID, map[string]interface{}{
		"type":   "swap_invites",
		"swapId": sw.ID,
		"codes":  codes,
	})
	return nil
}

func (a *StudentActor) swapJoin(ctx context.Context, p SwapJoinPayload) error {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	inv, err := a.sys.deps.SwapInvites.GetByCode(ctx, code)
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
	sw, err := a.sys.deps.Swaps.GetByID(ctx, inv.TargetID)
	if err != nil {
		return err
	}
	if sw == nil {
		return apperr.New("INVITE_INVALID", "invite code not recognized", 404)
	}
	if sw.Status != model.SwapOpen {
		return apperr.New("SWAP_NOT_OPEN", "swap no longer accepts participants", 409)
	}
	if _, err := a.validateLeg(ctx, a.userID, p.GiveSectionID, p.WantSectionID); err != nil {
		return err
	}
	ok, err := a.sys.deps.SwapInvites.MarkUsed(ctx, code, a.userID, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New("INVITE_USED", "invite code already redeemed", 409)
	}
	return a.sys.deps.Swaps.UpsertParticipant(ctx, model.SwapParticipant{
		SwapID:        sw.ID,
		UserID:        a.userID,
		GiveSectionID: p.GiveSectionID,
		WantSectionID: p.WantSectionID,
		CreatedAtMs:   now,
	})
}

// swapExec moves every participant to their wanted section in one
// transaction. Capacity is checked conservatively: a wanted section must
// have free seats for all of its takers without counting the seats the swap
// itself releases, so execution can never rely on its own side effects.
//
// A failure after locking leaves the swap locked and notifies the admins;
// the participants' selections are untouched in that case.
func (a *StudentActor) swapExec(ctx context.Context, p SwapExecPayload) error {
	sw, err := a.loadOwnSwap(ctx, p.SwapID)
	if err != nil {
		return err
	}
	if sw.Status == model.SwapExecuted {
		return nil
	}
	if sw.Status != model.SwapOpen {
		// locked means an earlier execution failed mid-way; admins untangle
		// it, the leader cannot simply re-run it
		return apperr.Newf("SWAP_NOT_OPEN", 409, "swap is %s", sw.Status)
	}
	parts, err := a.sys.deps.Swaps.Participants(ctx, sw.ID)
	if err != nil {
		return err
	}
	if len(parts) < minSwapParticipants {
		return apperr.Newf("SWAP_TOO_SMALL", 409, "need at least %d participants", minSwapParticipants)
	}

	if err := a.sys.deps.Swaps.SetStatus(ctx, sw.ID, model.SwapLocked, 0); err != nil {
		return err
	}

	// Checks and writes share one transaction: a failed check aborts the
	// whole thing and no participant moves.
	now := a.sys.deps.nowMs()
	txErr := a.sys.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		subjects := make(map[string]int, len(parts))
		for _, pt := range parts {
			subjID, verr := a.validateLeg(ctx, pt.UserID, pt.GiveSectionID, pt.WantSectionID)
			if verr != nil {
				ae := apperr.From(verr)
				return apperr.New("SWAP_FAILED", "participant "+pt.UserID+": "+ae.Message, 409)
			}
			subjects[pt.UserID] = subjID
		}

		// each participant's wanted slot must still fit around their
		// other subjects
		for _, pt := range parts {
			want, gerr := a.sys.deps.Sections.GetByID(ctx, pt.WantSectionID)
			if gerr != nil {
				return gerr
			}
			mask, merr := a.sys.conflictMaskFor(ctx, pt.UserID, subjects[pt.UserID])
			if merr != nil {
				return merr
			}
			if mask.Conflicts(want.TimeslotMask) {
				return apperr.New("SWAP_FAILED", "participant "+pt.UserID+" would end up with clashing timeslots", 409)
			}
		}

		wanters := make(map[int]int)
		for _, pt := range parts {
			wanters[pt.WantSectionID]++
		}
		for sectionID, takers := range wanters {
			sec, gerr := a.sys.deps.Sections.GetByID(ctx, sectionID)
			if gerr != nil {
				return gerr
			}
			occupied, cerr := a.sys.deps.Selections.CountBySection(ctx, sectionID)
			if cerr != nil {
				return cerr
			}
			if sec.MaxSeats-occupied < takers {
				return apperr.New("SWAP_FAILED", "not enough free seats in a wanted section", 409)
			}
		}

		newSels := make([]model.Selection, 0, len(parts))
		for _, pt := range parts {
			newSels = append(newSels, model.Selection{
				StudentUserID: pt.UserID,
				SubjectID:     subjects[pt.UserID],
				SectionID:     pt.WantSectionID,
				SelectedAtMs:  now,
			})
		}
		if uerr := a.sys.deps.Selections.UpsertMany(ctx, newSels); uerr != nil {
			return uerr
		}
		return a.sys.deps.Swaps.SetStatus(ctx, sw.ID, model.SwapExecuted, now)
	})
	if txErr != nil {
		a.sys.deps.Log.Printf("student %s: swap %s execution failed, swap stays locked: %v", a.userID, sw.ID, txErr)
		ae := apperr.From(txErr)
		if ae.Code != "SWAP_FAILED" {
			ae = apperr.New("SWAP_FAILED", "swap could not be applied, nothing was changed", 500)
		}
		a.notifyAdminsSwapFailure(sw.ID, ae.Message)
		return ae
	}

	// membership moved under the section actors; let them re-adopt the rows
	touched := make(map[int]bool)
	for _, pt := range parts {
		touched[pt.GiveSectionID] = true
		touched[pt.WantSectionID] = true
	}
	for sectionID := range touched {
		sec := a.sys.Section(sectionID)
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if rerr := sec.Resync(rctx); rerr != nil {
				a.sys.deps.Log.Printf("swap %s: resync of section failed: %v", sw.ID, rerr)
			}
		}()
	}

	for _, pt := range parts {
		a.sys.deps.Hub.SendToUser(pt.UserID, map[string]interface{}{
			"type":   "swap_executed",
			"swapId": sw.ID,
		})
	}
	return nil
}

func (a *StudentActor) notifyAdminsSwapFailure(swapID, reason string) {
	nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := &model.Notification{
		CreatedByUserID: "system",
		AudienceRole:    model.RoleAdmin,
		Title:           "Swap execution failed",
		Body:            "swap " + swapID + " is locked and needs attention: " + reason,
		CreatedAtMs:     a.sys.deps.nowMs(),
	}
	if err := a.sys.deps.Notifications.Create(nctx, n); err != nil {
		a.sys.deps.Log.Printf("swap %s: admin notification failed: %v", swapID, err)
	}
}
