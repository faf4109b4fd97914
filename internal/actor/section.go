package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
)

// SectionActor owns one section's membership. Only this actor admits and
// removes students, so the seat count can never be over-committed by a race.
// Membership is rebuilt from the selection rows on first contact; after that
// the actor is the truth and reconcile pushes membership back into the rows.
type SectionActor struct {
	sys  *System
	id   int
	proc *proc

	loaded  bool
	section *model.Section
	members map[string]bool
}

// sectionReconcileInterval paces the periodic membership write-back to the
// selection rows while the selection window is open.
const sectionReconcileInterval = 10 * time.Second

func newSectionActor(sys *System, id int) *SectionActor {
	a := &SectionActor{
		sys:     sys,
		id:      id,
		proc:    newProc("section"),
		members: make(map[string]bool),
	}
	return a
}

func (a *SectionActor) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	sec, err := a.sys.deps.Sections.GetByID(ctx, a.id)
	if err != nil {
		return err
	}
	if sec == nil {
		return apperr.Newf("SECTION_NOT_FOUND", 404, "section %d not found", a.id)
	}
	rows, err := a.sys.deps.Selections.ListBySection(ctx, a.id)
	if err != nil {
		return err
	}
	a.section = sec
	a.members = make(map[string]bool, len(rows))
	for _, row := range rows {
		a.members[row.StudentUserID] = true
	}
	a.loaded = true
	if !a.proc.Scheduled("reconcile") {
		a.proc.Schedule("reconcile", sectionReconcileInterval, a.reconcileTick)
	}
	return nil
}

// reconcileTick runs on the proc. During selection it writes membership back
// on a fixed cadence; once the window has closed it reconciles one last time
// and stops rescheduling itself.
func (a *SectionActor) reconcileTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cur, err := a.sys.deps.Phase.Current(ctx)
	if err != nil {
		a.proc.Schedule("reconcile", sectionReconcileInterval, a.reconcileTick)
		return
	}
	if cur == model.PhasePre {
		a.proc.Schedule("reconcile", sectionReconcileInterval, a.reconcileTick)
		return
	}
	if _, rerr := a.reconcileBody(ctx); rerr != nil {
		a.sys.deps.Log.Printf("section %d: periodic reconcile failed: %v", a.id, rerr)
	}
	if cur == model.PhaseSelection {
		a.proc.Schedule("reconcile", sectionReconcileInterval, a.reconcileTick)
	}
}

// backupAndNotify preserves the current membership in blob storage and tells
// the admins the durable store could not be updated. Runs on the proc; never
// fails the caller.
func (a *SectionActor) backupAndNotify(cause error) {
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, merr := json.Marshal(a.snapshot())
	if merr != nil {
		a.sys.deps.Log.Printf("section %d: snapshot encode failed: %v", a.id, merr)
	} else if serr := a.sys.deps.Blob.PutSectionSnapshot(bctx, a.id, a.sys.deps.nowMs(), snap); serr != nil {
		a.sys.deps.Log.Printf("section %d: snapshot backup failed: %v", a.id, serr)
	}
	n := &model.Notification{
		CreatedByUserID: "system",
		AudienceRole:    model.RoleAdmin,
		Title:           fmt.Sprintf("Section snapshot failed (section %d)", a.id),
		Body:            fmt.Sprintf("section %d could not persist membership: %v", a.id, cause),
		CreatedAtMs:     a.sys.deps.nowMs(),
	}
	if err := a.sys.deps.Notifications.Create(bctx, n); err != nil {
		a.sys.deps.Log.Printf("section %d: admin notification failed: %v", a.id, err)
	}
}

func (a *SectionActor) seatsLeft() int {
	return a.section.MaxSeats - len(a.members)
}

// Take admits a student. Admitting a student who already holds a seat is a
// no-op success, so retried actions stay safe.
func (a *SectionActor) Take(ctx context.Context, studentUserID string) error {
	return a.admit(ctx, studentUserID, 0)
}

// ChangeFrom admits a student who is moving over from another section of the
// same subject. Behaves like Take; the origin is recorded for the audit
// trail.
func (a *SectionActor) ChangeFrom(ctx context.Context, studentUserID string, fromSectionID int) error {
	return a.admit(ctx, studentUserID, fromSectionID)
}

func (a *SectionActor) admit(ctx context.Context, studentUserID string, fromSectionID int) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		if err = a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
			return
		}
		if err = a.ensureLoaded(ctx); err != nil {
			return
		}
		if a.members[studentUserID] {
			return
		}
		if a.seatsLeft() <= 0 {
			err = apperr.New("SECTION_FULL", "no seats left", 409)
			return
		}
		a.members[studentUserID] = true
		if fromSectionID != 0 {
			a.sys.deps.Log.Printf("section %d: admitted %s (changed from section %d)", a.id, studentUserID, fromSectionID)
		}
		a.mirrorTake(ctx, studentUserID)
		a.publishSeats()
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Drop releases a student's seat. Dropping a non-member is a no-op success.
func (a *SectionActor) Drop(ctx context.Context, studentUserID string) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		if err = a.sys.requirePhase(ctx, "PHASE_NOT_SELECTION", string(model.PhaseSelection)); err != nil {
			return
		}
		if err = a.ensureLoaded(ctx); err != nil {
			return
		}
		if !a.members[studentUserID] {
			return
		}
		delete(a.members, studentUserID)
		a.mirrorDrop(ctx, studentUserID)
		a.publishSeats()
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// mirrorTake writes the student's selection row. The admission already
// happened against actor state, so a store failure is backed up and reported
// instead of surfacing to the student; the next reconcile retries the write.
func (a *SectionActor) mirrorTake(ctx context.Context, studentUserID string) {
	sel := model.Selection{
		StudentUserID: studentUserID,
		SubjectID:     a.section.SubjectID,
		SectionID:     a.id,
		SelectedAtMs:  a.sys.deps.nowMs(),
	}
	if err := a.sys.deps.Selections.Upsert(ctx, sel); err != nil {
		a.sys.deps.Log.Printf("section %d: selection row write failed for %s: %v", a.id, studentUserID, err)
		a.backupAndNotify(err)
	}
}

// mirrorDrop removes the student's selection row, but only while it still
// points at this section; a row re-pointed by a change must survive.
func (a *SectionActor) mirrorDrop(ctx context.Context, studentUserID string) {
	rows, err := a.sys.deps.Selections.ListByStudent(ctx, studentUserID)
	if err != nil {
		a.sys.deps.Log.Printf("section %d: selection row lookup failed for %s: %v", a.id, studentUserID, err)
		a.backupAndNotify(err)
		return
	}
	for _, row := range rows {
		if row.SubjectID != a.section.SubjectID || row.SectionID != a.id {
			continue
		}
		if derr := a.sys.deps.Selections.Delete(ctx, studentUserID, a.section.SubjectID); derr != nil {
			a.sys.deps.Log.Printf("section %d: selection row delete failed for %s: %v", a.id, studentUserID, derr)
			a.backupAndNotify(derr)
		}
		return
	}
}

// publishSeats hands the new seat count to the subject actor. Fire and
// forget: the subject actor materializes on its own cadence.
func (a *SectionActor) publishSeats() {
	a.sys.Subject(a.section.SubjectID).NoteSeats(a.id, a.seatsLeft(), a.section.MaxSeats)
}

// SectionStatus is the faculty-facing view of one section.
type SectionStatus struct {
	SectionID     int             `json:"sectionId"`
	SectionNumber string          `json:"sectionNumber"`
	SubjectID     int             `json:"subjectId"`
	MaxSeats      int             `json:"maxSeats"`
	SeatsLeft     int             `json:"seatsLeft"`
	Members       []SectionMember `json:"members"`
}

type SectionMember struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Status returns the membership with names hydrated from the user store.
func (a *SectionActor) Status(ctx context.Context) (*SectionStatus, error) {
	var (
		st  *SectionStatus
		err error
	)
	cerr := a.proc.Call(ctx, func() {
		if err = a.ensureLoaded(ctx); err != nil {
			return
		}
		ids := make([]string, 0, len(a.members))
		for id := range a.members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		names, nerr := a.sys.deps.Users.NamesByIDs(ctx, ids)
		if nerr != nil {
			err = nerr
			return
		}
		members := make([]SectionMember, 0, len(ids))
		for _, id := range ids {
			members = append(members, SectionMember{UserID: id, Name: names[id]})
		}
		st = &SectionStatus{
			SectionID:     a.id,
			SectionNumber: a.section.SectionNumber,
			SubjectID:     a.section.SubjectID,
			MaxSeats:      a.section.MaxSeats,
			SeatsLeft:     a.seatsLeft(),
			Members:       members,
		}
	})
	if cerr != nil {
		return nil, cerr
	}
	return st, err
}

// Resync adopts the selection rows as membership. Used only after a swap
// execution, where the rows were just rewritten transactionally and the actor
// must catch up to them.
func (a *SectionActor) Resync(ctx context.Context) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		if err = a.ensureLoaded(ctx); err != nil {
			return
		}
		rows, rerr := a.sys.deps.Selections.ListBySection(ctx, a.id)
		if rerr != nil {
			err = rerr
			return
		}
		fromRows := make(map[string]bool, len(rows))
		for _, row := range rows {
			fromRows[row.StudentUserID] = true
		}
		if sameMembers(a.members, fromRows) {
			return
		}
		a.members = fromRows
		a.publishSeats()
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Reconcile writes the in-memory membership back to the selection rows. The
// actor wins: rows are upserted for every member and stale rows still
// pointing at this section are removed. If the store cannot be written the
// membership is backed up to blob storage, the admins are notified, and the
// actor keeps serving from memory.
func (a *SectionActor) Reconcile(ctx context.Context) (changed bool, err error) {
	cerr := a.proc.Call(ctx, func() {
		changed, err = a.reconcileBody(ctx)
	})
	if cerr != nil {
		return false, cerr
	}
	return changed, err
}

// reconcileBody must run on the proc.
func (a *SectionActor) reconcileBody(ctx context.Context) (bool, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return false, err
	}
	rows, err := a.sys.deps.Selections.ListBySection(ctx, a.id)
	if err != nil {
		a.backupAndNotify(err)
		return false, err
	}
	fromRows := make(map[string]bool, len(rows))
	for _, row := range rows {
		fromRows[row.StudentUserID] = true
	}
	if sameMembers(a.members, fromRows) {
		return false, nil
	}

	now := a.sys.deps.nowMs()
	upserts := make([]model.Selection, 0, len(a.members))
	for _, id := range sortedMembers(a.members) {
		upserts = append(upserts, model.Selection{
			StudentUserID: id,
			SubjectID:     a.section.SubjectID,
			SectionID:     a.id,
			SelectedAtMs:  now,
		})
	}
	if werr := a.sys.deps.Selections.UpsertMany(ctx, upserts); werr != nil {
		a.sys.deps.Log.Printf("section %d: reconcile row write failed, keeping membership: %v", a.id, werr)
		a.backupAndNotify(werr)
		return false, werr
	}
	for _, row := range rows {
		if a.members[row.StudentUserID] {
			continue
		}
		if derr := a.sys.deps.Selections.Delete(ctx, row.StudentUserID, a.section.SubjectID); derr != nil {
			a.sys.deps.Log.Printf("section %d: reconcile stale row delete failed, keeping membership: %v", a.id, derr)
			a.backupAndNotify(derr)
			return false, derr
		}
	}
	a.sys.deps.Log.Printf("section %d: reconcile wrote %d members back to rows (rows had %d)", a.id, len(a.members), len(fromRows))
	return true, nil
}

type sectionSnapshot struct {
	SectionID int      `json:"sectionId"`
	TakenAtMs int64    `json:"takenAtMs"`
	Members   []string `json:"members"`
}

func (a *SectionActor) snapshot() sectionSnapshot {
	return sectionSnapshot{SectionID: a.id, TakenAtMs: a.sys.deps.nowMs(), Members: sortedMembers(a.members)}
}

func sortedMembers(members map[string]bool) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sameMembers(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
