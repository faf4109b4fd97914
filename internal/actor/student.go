package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

// StudentActor serializes everything one student does. Mutating actions go
// through the durable queue and drain strictly one at a time; reads and
// cancels are immediate but still run on the same proc, so they interleave
// between queue items, never inside one.
type StudentActor struct {
	sys    *System
	userID string
	proc   *proc

	enrolled   []int
	enrolledAt time.Time
}

const enrollmentTTL = 60 * time.Second

func newStudentActor(sys *System, userID string) *StudentActor {
	return &StudentActor{sys: sys, userID: userID, proc: newProc("student")}
}

// Payloads carried by queue items. The zero value of an omitted field is
// caught by the per-action validation, not here.
type TakePayload struct {
	SubjectID int `json:"subjectId"`
	SectionID int `json:"sectionId"`
}

type DropPayload struct {
	SubjectID int `json:"subjectId"`
}

type ChangePayload struct {
	SubjectID    int `json:"subjectId"`
	NewSectionID int `json:"newSectionId"`
}

func queueable(action model.ActionName) bool {
	switch action {
	case model.ActionTake, model.ActionDrop, model.ActionChange,
		model.ActionGroupCreate, model.ActionGroupInvite, model.ActionGroupJoin,
		model.ActionGroupLeave, model.ActionGroupDisband,
		model.ActionGroupTake, model.ActionGroupDrop, model.ActionGroupChange,
		model.ActionSwapCreate, model.ActionSwapInvite, model.ActionSwapJoin,
		model.ActionSwapExec:
		return true
	}
	return false
}

// Enqueue appends an action to the student's durable queue and kicks the
// drain. The returned item is still queued; its outcome arrives later as a
// queue_update push. The client supplies the item id so it can correlate the
// pushes with its request; a missing id gets minted here.
func (a *StudentActor) Enqueue(ctx context.Context, clientID string, action model.ActionName, payload json.RawMessage) (*model.QueueItem, error) {
	if !queueable(action) {
		return nil, apperr.Newf("BAD_REQUEST", 400, "action %q cannot be queued", action)
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}
	var (
		item model.QueueItem
		err  error
	)
	cerr := a.proc.Call(ctx, func() {
		item = model.QueueItem{
			ID:            clientID,
			StudentUserID: a.userID,
			Action:        action,
			Status:        model.QueueQueued,
			CreatedAtMs:   a.sys.deps.nowMs(),
			Payload:       payload,
		}
		if err = a.sys.deps.Queue.Insert(ctx, item); err != nil {
			return
		}
		a.pushQueueUpdate(&item)
		a.proc.Post(a.drainStep)
	})
	if cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// drainStep runs at most one queued item, then re-posts itself if more are
// waiting. Cancels and reads posted meanwhile get their turn between items.
func (a *StudentActor) drainStep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	item, err := a.sys.deps.Queue.NextQueued(ctx, a.userID)
	if err != nil {
		a.sys.deps.Log.Printf("student %s: queue read failed: %v", a.userID, err)
		a.proc.Schedule("drain-retry", 2*time.Second, a.drainStep)
		return
	}
	if item == nil {
		return
	}

	now := a.sys.deps.nowMs()
	if err := a.sys.deps.Queue.SetRunning(ctx, a.userID, item.ID, now); err != nil {
		a.sys.deps.Log.Printf("student %s: mark running failed: %v", a.userID, err)
		a.proc.Schedule("drain-retry", 2*time.Second, a.drainStep)
		return
	}
	item.Status = model.QueueRunning
	item.StartedAtMs = now
	a.pushQueueUpdate(item)

	execErr := a.execute(ctx, item)

	finished := a.sys.deps.nowMs()
	if execErr != nil {
		ae := apperr.From(execErr)
		item.Status = model.QueueError
		item.Error = &model.QueueItemError{Code: ae.Code, Message: ae.Message}
	} else {
		item.Status = model.QueueOK
	}
	item.FinishedAtMs = finished
	if err := a.sys.deps.Queue.SetTerminal(ctx, a.userID, item.ID, item.Status, finished, item.Error); err != nil {
		a.sys.deps.Log.Printf("student %s: record outcome of %s failed: %v", a.userID, item.ID, err)
	}
	a.pushQueueUpdate(item)

	more, err := a.sys.deps.Queue.NextQueued(ctx, a.userID)
	if err == nil && more != nil {
		a.proc.Post(a.drainStep)
	}
}

func (a *StudentActor) execute(ctx context.Context, item *model.QueueItem) error {
	switch item.Action {
	case model.ActionTake:
		var p TakePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed take payload", 400)
		}
		return a.takeCore(ctx, p.SubjectID, p.SectionID)
	case model.ActionDrop:
		var p DropPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed drop payload", 400)
		}
		return a.dropCore(ctx, p.SubjectID)
	case model.ActionChange:
		var p ChangePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return apperr.New("BAD_REQUEST", "malformed change payload", 400)
		}
		return a.changeCore(ctx, p.SubjectID, p.NewSectionID)
	case model.ActionGroupCreate, model.ActionGroupInvite, model.ActionGroupJoin,
		model.ActionGroupLeave, model.ActionGroupDisband,
		model.ActionGroupTake, model.ActionGroupDrop, model.ActionGroupChange:
		return a.executeGroup(ctx, item)
	case model.ActionSwapCreate, model.ActionSwapInvite, model.ActionSwapJoin,
		model.ActionSwapExec:
		return a.executeSwap(ctx, item)
	}
	return apperr.Newf("BAD_REQUEST", 400, "unknown action %q", item.Action)
}

// enrolledSubjects caches the enrollment set briefly; enrollments change
// rarely and every action checks them.
func (a *StudentActor) enrolledSubjects(ctx context.Context) ([]int, error) {
	if a.enrolled != nil && a.sys.deps.Now().Sub(a.enrolledAt) < enrollmentTTL {
		return a.enrolled, nil
	}
	ids, err := a.sys.deps.Enrollments.SubjectIDsFor(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int{}
	}
	a.enrolled = ids
	a.enrolledAt = a.sys.deps.Now()
	return ids, nil
}

func (a *StudentActor) requireEnrolled(ctx context.Context, subjectID int) error {
	ids, err := a.enrolledSubjects(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == subjectID {
			return nil
		}
	}
	return apperr.Newf("NOT_ENROLLED", 403, "not enrolled in subject %d", subjectID)
}

// conflictMask unions the timeslot masks of every currently selected section,
// excluding the subject being changed so that moving within a subject never
// conflicts with itself.
func (a *StudentActor) conflictMask(ctx context.Context, excludeSubjectID int) (model.TimeslotMask, error) {
	return a.sys.conflictMaskFor(ctx, a.userID, excludeSubjectID)
}

func (s *System) conflictMaskFor(ctx context.Context, userID string, excludeSubjectID int) (model.TimeslotMask, error) {
	sels, err := s.deps.Selections.ListByStudent(ctx, userID)
	if err != nil {
		return 0, err
	}
	ids := make([]int, 0, len(sels))
	for _, sel := range sels {
		if sel.SubjectID == excludeSubjectID {
			continue
		}
		ids = append(ids, sel.SectionID)
	}
	secs, err := s.deps.Sections.GetByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	var mask model.TimeslotMask
	for _, sec := range secs {
		mask |= sec.TimeslotMask
	}
	return mask, nil
}

// loadSection validates that the section exists, is published and belongs to
// the subject the action names.
func (a *StudentActor) loadSection(ctx context.Context, subjectID, sectionID int) (*model.Section, error) {
	sec, err := a.sys.deps.Sections.GetByID(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if sec == nil || !sec.Published {
		return nil, apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", sectionID)
	}
	if sec.SubjectID != subjectID {
		return nil, apperr.Newf("BAD_REQUEST", 400, "section %d does not belong to subject %d", sectionID, subjectID)
	}
	return sec, nil
}

func (a *StudentActor) takeCore(ctx context.Context, subjectID, sectionID int) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	if err := a.requireEnrolled(ctx, subjectID); err != nil {
		return err
	}
	sec, err := a.loadSection(ctx, subjectID, sectionID)
	if err != nil {
		return err
	}

	sels, err := a.sys.deps.Selections.ListByStudent(ctx, a.userID)
	if err != nil {
		return err
	}
	for _, sel := range sels {
		if sel.SubjectID == subjectID {
			if sel.SectionID == sectionID {
				return nil // retried take of the held section
			}
			return apperr.Newf("ALREADY_SELECTED", 409, "already holding section %d for subject %d, change instead", sel.SectionID, subjectID)
		}
	}

	mask, err := a.conflictMask(ctx, subjectID)
	if err != nil {
		return err
	}
	if mask.Conflicts(sec.TimeslotMask) {
		return apperr.New("CONFLICT", "section overlaps an existing selection", 409)
	}

	// The section actor admits and mirrors the selection row itself; a row
	// write failure there never bounces back to the student.
	return a.sys.Section(sectionID).Take(ctx, a.userID)
}

func (a *StudentActor) dropCore(ctx context.Context, subjectID int) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	sels, err := a.sys.deps.Selections.ListByStudent(ctx, a.userID)
	if err != nil {
		return err
	}
	var held *model.Selection
	for i := range sels {
		if sels[i].SubjectID == subjectID {
			held = &sels[i]
			break
		}
	}
	if held == nil {
		return nil // nothing to drop, retried drops succeed
	}
	return a.sys.Section(held.SectionID).Drop(ctx, a.userID)
}

func (a *StudentActor) changeCore(ctx context.Context, subjectID, newSectionID int) error {
	if err := a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
		return err
	}
	if err := a.requireEnrolled(ctx, subjectID); err != nil {
		return err
	}
	sec, err := a.loadSection(ctx, subjectID, newSectionID)
	if err != nil {
		return err
	}

	sels, err := a.sys.deps.Selections.ListByStudent(ctx, a.userID)
	if err != nil {
		return err
	}
	var held *model.Selection
	for i := range sels {
		if sels[i].SubjectID == subjectID {
			held = &sels[i]
			break
		}
	}
	if held == nil {
		return apperr.Newf("NOT_SELECTED", 409, "no current section for subject %d, take instead", subjectID)
	}
	if held.SectionID == newSectionID {
		return nil
	}

	mask, err := a.conflictMask(ctx, subjectID)
	if err != nil {
		return err
	}
	if mask.Conflicts(sec.TimeslotMask) {
		return apperr.New("CONFLICT", "section overlaps an existing selection", 409)
	}

	// Take the new seat before releasing the old one, so a full section
	// can never strand the student with nothing.
	if err := a.sys.Section(newSectionID).ChangeFrom(ctx, a.userID, held.SectionID); err != nil {
		return err
	}
	if err := a.sys.Section(held.SectionID).Drop(ctx, a.userID); err != nil {
		if terr := a.sys.Section(newSectionID).Drop(ctx, a.userID); terr != nil {
			a.sys.deps.Log.Printf("student %s: rollback of section %d failed: %v", a.userID, newSectionID, terr)
			a.notifyAdminsChangeGap(held.SectionID, newSectionID, err)
		}
		return apperr.New("CHANGE_DROP_FAILED", "could not release the current section", 500)
	}
	return nil
}

// notifyAdminsChangeGap reports a change whose rollback also failed, leaving
// the student possibly holding seats in two sections of one subject until
// reconcile catches up.
func (a *StudentActor) notifyAdminsChangeGap(oldSectionID, newSectionID int, cause error) {
	nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := &model.Notification{
		CreatedByUserID: "system",
		AudienceRole:    model.RoleAdmin,
		Title:           fmt.Sprintf("Section change stuck (student %s)", a.userID),
		Body:            fmt.Sprintf("student %s may hold seats in both section %d and section %d: %v", a.userID, oldSectionID, newSectionID, cause),
		CreatedAtMs:     a.sys.deps.nowMs(),
	}
	if err := a.sys.deps.Notifications.Create(nctx, n); err != nil {
		a.sys.deps.Log.Printf("student %s: admin notification failed: %v", a.userID, err)
	}
}

// Cancel flips a queued item to cancelled. Running and finished items cannot
// be cancelled.
func (a *StudentActor) Cancel(ctx context.Context, itemID string) (bool, error) {
	var (
		ok  bool
		err error
	)
	cerr := a.proc.Call(ctx, func() {
		ok, err = a.sys.deps.Queue.CancelQueued(ctx, a.userID, itemID, a.sys.deps.nowMs())
		if err == nil && ok {
			if item, gerr := a.sys.deps.Queue.Get(ctx, a.userID, itemID); gerr == nil && item != nil {
				a.pushQueueUpdate(item)
			}
		}
	})
	if cerr != nil {
		return false, cerr
	}
	return ok, err
}

// CancelAll cancels every still-queued item and returns how many it caught.
func (a *StudentActor) CancelAll(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	cerr := a.proc.Call(ctx, func() {
		var items []model.QueueItem
		items, err = a.sys.deps.Queue.ListQueued(ctx, a.userID)
		if err != nil {
			return
		}
		now := a.sys.deps.nowMs()
		for _, item := range items {
			ok, cerr := a.sys.deps.Queue.CancelQueued(ctx, a.userID, item.ID, now)
			if cerr != nil {
				err = cerr
				return
			}
			if ok {
				n++
				item.Status = model.QueueCancelled
				item.FinishedAtMs = now
				a.pushQueueUpdate(&item)
			}
		}
	})
	if cerr != nil {
		return 0, cerr
	}
	return n, err
}

// StudentStatus is the student's own consolidated view.
type StudentStatus struct {
	UserID     string            `json:"userId"`
	Phase      model.Phase       `json:"phase"`
	Selections []model.Selection `json:"selections"`
	Queue      []model.QueueItem `json:"queue"`
	Groups     []model.Group     `json:"groups"`
	Swaps      []model.Swap      `json:"swaps"`
}

const statusQueueTail = 20

// Status assembles the consolidated view. It runs on the proc, so it always
// observes a queue at rest between items.
func (a *StudentActor) Status(ctx context.Context) (*StudentStatus, error) {
	var (
		st  *StudentStatus
		err error
	)
	cerr := a.proc.Call(ctx, func() {
		st, err = a.buildStatus(ctx)
	})
	if cerr != nil {
		return nil, cerr
	}
	return st, err
}

func (a *StudentActor) buildStatus(ctx context.Context) (*StudentStatus, error) {
	ph, err := a.sys.deps.Phase.Current(ctx)
	if err != nil {
		return nil, err
	}
	sels, err := a.sys.deps.Selections.ListByStudent(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	tail, err := a.sys.deps.Queue.Tail(ctx, a.userID, statusQueueTail)
	if err != nil {
		return nil, err
	}
	groups, err := a.sys.deps.Groups.ListByMember(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	swaps, err := a.sys.deps.Swaps.ListByUser(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	if sels == nil {
		sels = []model.Selection{}
	}
	if tail == nil {
		tail = []model.QueueItem{}
	}
	if groups == nil {
		groups = []model.Group{}
	}
	if swaps == nil {
		swaps = []model.Swap{}
	}
	return &StudentStatus{
		UserID:     a.userID,
		Phase:      ph,
		Selections: sels,
		Queue:      tail,
		Groups:     groups,
		Swaps:      swaps,
	}, nil
}

type queueUpdateEvent struct {
	Type string           `json:"type"`
	Item *model.QueueItem `json:"item"`
}

func (a *StudentActor) pushQueueUpdate(item *model.QueueItem) {
	a.sys.deps.Hub.SendToUser(a.userID, queueUpdateEvent{Type: "queue_update", Item: item})
}

// recordApplied writes an already-finished queue item, used when a group
// leader applies an action on this student's behalf. The item lands in the
// history terminal from the start.
func (a *StudentActor) recordApplied(ctx context.Context, action model.ActionName, payload json.RawMessage, startedMs int64, execErr error) {
	now := a.sys.deps.nowMs()
	item := model.QueueItem{
		ID:            uuid.NewString(),
		StudentUserID: a.userID,
		Action:        action,
		Status:        model.QueueOK,
		CreatedAtMs:   startedMs,
		StartedAtMs:   startedMs,
		FinishedAtMs:  now,
		Payload:       payload,
	}
	if execErr != nil {
		ae := apperr.From(execErr)
		item.Status = model.QueueError
		item.Error = &model.QueueItemError{Code: ae.Code, Message: ae.Message}
	}
	if err := a.sys.deps.Queue.Insert(ctx, item); err != nil {
		a.sys.deps.Log.Printf("student %s: record applied %s failed: %v", a.userID, action, err)
		return
	}
	a.pushQueueUpdate(&item)
}

// ApplyTake runs a take on this student's proc on behalf of a group leader.
func (a *StudentActor) ApplyTake(ctx context.Context, subjectID, sectionID int) error {
	return a.applyOnProc(ctx, model.ActionTake, mustJSON(TakePayload{SubjectID: subjectID, SectionID: sectionID}), func(ctx context.Context) error {
		return a.takeCore(ctx, subjectID, sectionID)
	})
}

// ApplyDrop runs a drop on this student's proc on behalf of a group leader.
func (a *StudentActor) ApplyDrop(ctx context.Context, subjectID int) error {
	return a.applyOnProc(ctx, model.ActionDrop, mustJSON(DropPayload{SubjectID: subjectID}), func(ctx context.Context) error {
		return a.dropCore(ctx, subjectID)
	})
}

// ApplyChange runs a change on this student's proc on behalf of a group leader.
func (a *StudentActor) ApplyChange(ctx context.Context, subjectID, newSectionID int) error {
	return a.applyOnProc(ctx, model.ActionChange, mustJSON(ChangePayload{SubjectID: subjectID, NewSectionID: newSectionID}), func(ctx context.Context) error {
		return a.changeCore(ctx, subjectID, newSectionID)
	})
}

func (a *StudentActor) applyOnProc(ctx context.Context, action model.ActionName, payload json.RawMessage, core func(context.Context) error) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		err = a.applyInline(ctx, action, payload, core)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// applyInline runs a core directly on the current goroutine and records the
// outcome as a finished queue item. Used by the group fan-out for the member
// whose proc we are already on.
func (a *StudentActor) applyInline(ctx context.Context, action model.ActionName, payload json.RawMessage, core func(context.Context) error) error {
	started := a.sys.deps.nowMs()
	err := core(ctx)
	a.recordApplied(ctx, action, payload, started, err)
	return err
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
