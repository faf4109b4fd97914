package actor

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strconv"
	"sync"

	"coursecontrol/internal/cache"
	"coursecontrol/internal/model"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// In-memory stand-ins for the repositories, keyed and locked the simplest
// way that preserves the real implementations' semantics.

type fakeSubjects struct {
	mu   sync.Mutex
	rows map[int]model.Subject
}

func newFakeSubjects() *fakeSubjects { return &fakeSubjects{rows: make(map[int]model.Subject)} }

func (f *fakeSubjects) GetByID(_ context.Context, id int) (*model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSubjects) GetByIDs(_ context.Context, ids []int) ([]model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Subject
	for _, id := range ids {
		if s, ok := f.rows[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubjects) ListPublished(context.Context) ([]model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Subject
	for _, s := range f.rows {
		if s.Published {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSubjects) SetPublished(_ context.Context, id int, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return errors.New("no subject")
	}
	s.Published = published
	f.rows[id] = s
	return nil
}

type fakeSections struct {
	mu   sync.Mutex
	rows map[int]model.Section
}

func newFakeSections() *fakeSections { return &fakeSections{rows: make(map[int]model.Section)} }

func (f *fakeSections) GetByID(_ context.Context, id int) (*model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSections) GetByIDs(_ context.Context, ids []int) ([]model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Section
	for _, id := range ids {
		if s, ok := f.rows[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSections) ListBySubject(_ context.Context, subjectID int) ([]model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Section
	for _, s := range f.rows {
		if s.SubjectID == subjectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSections) ListByFaculty(_ context.Context, facultyUserID string) ([]model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Section
	for _, s := range f.rows {
		if s.FacultyUserID == facultyUserID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSections) ListPublished(context.Context) ([]model.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Section
	for _, s := range f.rows {
		if s.Published {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSections) SetPublished(_ context.Context, id int, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return errors.New("no section")
	}
	s.Published = published
	f.rows[id] = s
	return nil
}

type selKey struct {
	student string
	subject int
}

type fakeSelections struct {
	mu        sync.Mutex
	rows      map[selKey]model.Selection
	upsertErr error
}

func newFakeSelections() *fakeSelections {
	return &fakeSelections{rows: make(map[selKey]model.Selection)}
}

func (f *fakeSelections) Upsert(_ context.Context, sel model.Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[selKey{sel.StudentUserID, sel.SubjectID}] = sel
	return nil
}

func (f *fakeSelections) UpsertMany(ctx context.Context, sels []model.Selection) error {
	for _, sel := range sels {
		if err := f.Upsert(ctx, sel); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSelections) Delete(_ context.Context, studentUserID string, subjectID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, selKey{studentUserID, subjectID})
	return nil
}

func (f *fakeSelections) ListByStudent(_ context.Context, studentUserID string) ([]model.Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Selection
	for _, s := range f.rows {
		if s.StudentUserID == studentUserID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func (f *fakeSelections) ListBySection(_ context.Context, sectionID int) ([]model.Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Selection
	for _, s := range f.rows {
		if s.SectionID == sectionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSelections) CountBySection(ctx context.Context, sectionID int) (int, error) {
	rows, _ := f.ListBySection(ctx, sectionID)
	return len(rows), nil
}

type fakeEnrollments struct {
	mu   sync.Mutex
	rows map[string][]int
}

func newFakeEnrollments() *fakeEnrollments { return &fakeEnrollments{rows: make(map[string][]int)} }

func (f *fakeEnrollments) SubjectIDsFor(_ context.Context, studentUserID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.rows[studentUserID]...), nil
}

type fakeGroups struct {
	mu      sync.Mutex
	groups  map[string]model.Group
	members map[string][]model.GroupMember
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{groups: make(map[string]model.Group), members: make(map[string][]model.GroupMember)}
}

func (f *fakeGroups) Create(_ context.Context, g *model.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = *g
	return nil
}

func (f *fakeGroups) GetByID(_ context.Context, groupID string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[groupID]; ok {
		return &g, nil
	}
	return nil, nil
}

func (f *fakeGroups) SetLocked(_ context.Context, groupID string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return errors.New("no group")
	}
	g.IsLocked = locked
	f.groups[groupID] = g
	return nil
}

func (f *fakeGroups) Delete(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, groupID)
	delete(f.members, groupID)
	return nil
}

func (f *fakeGroups) AddMember(_ context.Context, m model.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.members[m.GroupID] {
		if existing.StudentUserID == m.StudentUserID {
			return nil
		}
	}
	f.members[m.GroupID] = append(f.members[m.GroupID], m)
	return nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, groupID, studentUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.members[groupID]
	for i, m := range rows {
		if m.StudentUserID == studentUserID {
			f.members[groupID] = append(rows[:i:i], rows[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeGroups) MemberIDs(_ context.Context, groupID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]model.GroupMember(nil), f.members[groupID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].JoinedAtMs < rows[j].JoinedAtMs })
	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.StudentUserID)
	}
	return ids, nil
}

func (f *fakeGroups) ListByMember(_ context.Context, studentUserID string) ([]model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Group
	for groupID, rows := range f.members {
		for _, m := range rows {
			if m.StudentUserID == studentUserID {
				if g, ok := f.groups[groupID]; ok {
					out = append(out, g)
				}
			}
		}
	}
	return out, nil
}

type fakeInvites struct {
	mu   sync.Mutex
	rows map[string]model.Invite
}

func newFakeInvites() *fakeInvites { return &fakeInvites{rows: make(map[string]model.Invite)} }

func (f *fakeInvites) CreateBatch(_ context.Context, invites []model.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range invites {
		f.rows[inv.Code] = inv
	}
	return nil
}

func (f *fakeInvites) GetByCode(_ context.Context, code string) (*model.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.rows[code]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (f *fakeInvites) MarkUsed(_ context.Context, code, userID string, nowMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.rows[code]
	if !ok || inv.UsedByUserID != "" {
		return false, nil
	}
	inv.UsedByUserID = userID
	inv.UsedAtMs = nowMs
	f.rows[code] = inv
	return true, nil
}

func (f *fakeInvites) DeleteByTarget(_ context.Context, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for code, inv := range f.rows {
		if inv.TargetID == targetID {
			delete(f.rows, code)
		}
	}
	return nil
}

func (f *fakeInvites) PurgeExpired(_ context.Context, nowMs int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for code, inv := range f.rows {
		if inv.ExpiresAtMs != 0 && inv.ExpiresAtMs < nowMs && inv.UsedByUserID == "" {
			delete(f.rows, code)
			n++
		}
	}
	return n, nil
}

type fakeSwaps struct {
	mu    sync.Mutex
	swaps map[string]model.Swap
	parts map[string][]model.SwapParticipant
}

func newFakeSwaps() *fakeSwaps {
	return &fakeSwaps{swaps: make(map[string]model.Swap), parts: make(map[string][]model.SwapParticipant)}
}

func (f *fakeSwaps) Create(_ context.Context, s *model.Swap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps[s.ID] = *s
	return nil
}

func (f *fakeSwaps) GetByID(_ context.Context, swapID string) (*model.Swap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.swaps[swapID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSwaps) SetStatus(_ context.Context, swapID string, status model.SwapStatus, executedAtMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.swaps[swapID]
	if !ok {
		return errors.New("no swap")
	}
	s.Status = status
	if executedAtMs != 0 {
		s.ExecutedAtMs = executedAtMs
	}
	f.swaps[swapID] = s
	return nil
}

func (f *fakeSwaps) UpsertParticipant(_ context.Context, p model.SwapParticipant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.parts[p.SwapID]
	for i, existing := range rows {
		if existing.UserID == p.UserID {
			rows[i] = p
			return nil
		}
	}
	f.parts[p.SwapID] = append(rows, p)
	return nil
}

func (f *fakeSwaps) Participants(_ context.Context, swapID string) ([]model.SwapParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SwapParticipant(nil), f.parts[swapID]...), nil
}

func (f *fakeSwaps) ListByUser(_ context.Context, userID string) ([]model.Swap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []model.Swap
	for _, s := range f.swaps {
		if s.LeaderUserID == userID {
			out = append(out, s)
			seen[s.ID] = true
		}
	}
	for swapID, rows := range f.parts {
		for _, p := range rows {
			if p.UserID == userID && !seen[swapID] {
				if s, ok := f.swaps[swapID]; ok {
					out = append(out, s)
					seen[swapID] = true
				}
			}
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	rows []model.QueueItem
}

func newFakeQueue() *fakeQueue { return &fakeQueue{} }

func (f *fakeQueue) Insert(_ context.Context, item model.QueueItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, item)
	return nil
}

func (f *fakeQueue) Get(_ context.Context, studentUserID, id string) (*model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.rows {
		if item.ID == id && item.StudentUserID == studentUserID {
			out := item
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeQueue) SetRunning(_ context.Context, studentUserID, id string, startedAtMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].StudentUserID == studentUserID && f.rows[i].Status == model.QueueQueued {
			f.rows[i].Status = model.QueueRunning
			f.rows[i].StartedAtMs = startedAtMs
		}
	}
	return nil
}

func (f *fakeQueue) SetTerminal(_ context.Context, studentUserID, id string, status model.QueueStatus, finishedAtMs int64, qerr *model.QueueItemError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].StudentUserID == studentUserID {
			f.rows[i].Status = status
			f.rows[i].FinishedAtMs = finishedAtMs
			f.rows[i].Error = qerr
		}
	}
	return nil
}

func (f *fakeQueue) NextQueued(_ context.Context, studentUserID string) (*model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.rows {
		if item.StudentUserID == studentUserID && item.Status == model.QueueQueued {
			out := item
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeQueue) CancelQueued(_ context.Context, studentUserID, id string, nowMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].StudentUserID == studentUserID && f.rows[i].Status == model.QueueQueued {
			f.rows[i].Status = model.QueueCancelled
			f.rows[i].FinishedAtMs = nowMs
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQueue) ListQueued(_ context.Context, studentUserID string) ([]model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QueueItem
	for _, item := range f.rows {
		if item.StudentUserID == studentUserID && item.Status == model.QueueQueued {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeQueue) Tail(_ context.Context, studentUserID string, n int) ([]model.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QueueItem
	for _, item := range f.rows {
		if item.StudentUserID == studentUserID {
			out = append(out, item)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

type fakeUsers struct {
	mu   sync.Mutex
	rows map[string]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{rows: make(map[string]model.User)} }

func (f *fakeUsers) GetByID(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.rows[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) NamesByIDs(_ context.Context, userIDs []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, id := range userIDs {
		if u, ok := f.rows[id]; ok {
			out[id] = u.Name
		}
	}
	return out, nil
}

func (f *fakeUsers) RoleOf(_ context.Context, userID string) (model.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.rows[userID]; ok {
		return u.Role, nil
	}
	return "", errors.New("no user")
}

type fakeNotifications struct {
	mu   sync.Mutex
	rows []model.Notification
}

func newFakeNotifications() *fakeNotifications { return &fakeNotifications{} }

func (f *fakeNotifications) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotifications) ListForAudience(_ context.Context, role model.Role, userID string, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Notification
	for _, n := range f.rows {
		if (n.AudienceRole != "" && n.AudienceRole == role) || (n.AudienceUserID != "" && n.AudienceUserID == userID) {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakePhases struct {
	mu    sync.Mutex
	sched *model.PhaseSchedule
}

func (f *fakePhases) Latest(context.Context) (*model.PhaseSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sched, nil
}

func (f *fakePhases) Insert(_ context.Context, s *model.PhaseSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sched = s
	return nil
}

// fakeTx runs fn directly; the fakes have no sessions to bind.
type fakeTx struct {
	failWith error
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.failWith != nil {
		return f.failWith
	}
	return fn(ctx)
}

type fakeSeatCache struct {
	mu   sync.Mutex
	rows map[int]*cache.SubjectPayload
}

func newFakeSeatCache() *fakeSeatCache { return &fakeSeatCache{rows: make(map[int]*cache.SubjectPayload)} }

func (f *fakeSeatCache) Set(_ context.Context, subjectID int, payload *cache.SubjectPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[subjectID] = payload
	return nil
}

func (f *fakeSeatCache) Get(_ context.Context, subjectID int) (*cache.SubjectPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[subjectID], nil
}

type fakeBlob struct {
	mu        sync.Mutex
	state     []byte
	snapshots map[string][]byte
	putErr    error
	snapErr   error
}

func newFakeBlob() *fakeBlob { return &fakeBlob{snapshots: make(map[string][]byte)} }

func (f *fakeBlob) PutState(_ context.Context, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	f.state = append([]byte(nil), data...)
	return "fp", nil
}

func (f *fakeBlob) GetState(context.Context) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == nil {
		return nil, "", nil
	}
	return append([]byte(nil), f.state...), "fp", nil
}

func (f *fakeBlob) PutSectionSnapshot(_ context.Context, sectionID int, takenAtMs int64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapErr != nil {
		return f.snapErr
	}
	f.snapshots[snapshotKey(sectionID)] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlob) GetSectionSnapshot(_ context.Context, sectionID int, takenAtMs int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[snapshotKey(sectionID)], nil
}

func (f *fakeBlob) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func snapshotKey(sectionID int) string {
	return strconv.Itoa(sectionID)
}

type fakeOracle struct {
	mu        sync.Mutex
	cur       model.Phase
	failErr   error
	failAfter int // with failErr set, allow this many Current calls first
}

func (f *fakeOracle) set(p model.Phase) {
	f.mu.Lock()
	f.cur = p
	f.mu.Unlock()
}

func (f *fakeOracle) failCurrentAfter(n int, err error) {
	f.mu.Lock()
	f.failErr = err
	f.failAfter = n
	f.mu.Unlock()
}

func (f *fakeOracle) Current(context.Context) (model.Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		if f.failAfter <= 0 {
			return "", f.failErr
		}
		f.failAfter--
	}
	return f.cur, nil
}

func (f *fakeOracle) Schedule(context.Context) (*model.PhaseSchedule, error) { return nil, nil }

func (f *fakeOracle) Invalidate() {}

type fakeHub struct {
	mu     sync.Mutex
	events []pushedEvent
}

type pushedEvent struct {
	userID  string
	role    string
	payload interface{}
}

func (f *fakeHub) SendToUser(userID string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pushedEvent{userID: userID, payload: payload})
}

func (f *fakeHub) SendToRole(role string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pushedEvent{role: role, payload: payload})
}

func (f *fakeHub) countFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.userID == userID {
			n++
		}
	}
	return n
}

// testEnv bundles a system over fakes. Phase defaults to selection because
// most scenarios live there.
type testEnv struct {
	sys           *System
	subjects      *fakeSubjects
	sections      *fakeSections
	selections    *fakeSelections
	enrollments   *fakeEnrollments
	groups        *fakeGroups
	groupInvites  *fakeInvites
	swapInvites   *fakeInvites
	swaps         *fakeSwaps
	queue         *fakeQueue
	users         *fakeUsers
	notifications *fakeNotifications
	tx            *fakeTx
	seatCache     *fakeSeatCache
	blob          *fakeBlob
	oracle        *fakeOracle
	hub           *fakeHub
}

func newTestEnv() *testEnv {
	env := &testEnv{
		subjects:      newFakeSubjects(),
		sections:      newFakeSections(),
		selections:    newFakeSelections(),
		enrollments:   newFakeEnrollments(),
		groups:        newFakeGroups(),
		groupInvites:  newFakeInvites(),
		swapInvites:   newFakeInvites(),
		swaps:         newFakeSwaps(),
		queue:         newFakeQueue(),
		users:         newFakeUsers(),
		notifications: newFakeNotifications(),
		tx:            &fakeTx{},
		seatCache:     newFakeSeatCache(),
		blob:          newFakeBlob(),
		oracle:        &fakeOracle{cur: model.PhaseSelection},
		hub:           &fakeHub{},
	}
	env.sys = NewSystem(Deps{
		Log:           testLogger(),
		Subjects:      env.subjects,
		Sections:      env.sections,
		Selections:    env.selections,
		Enrollments:   env.enrollments,
		Groups:        env.groups,
		GroupInvites:  env.groupInvites,
		SwapInvites:   env.swapInvites,
		Swaps:         env.swaps,
		Queue:         env.queue,
		Users:         env.users,
		Notifications: env.notifications,
		Phases:        &fakePhases{},
		Tx:            env.tx,
		Cache:         env.seatCache,
		Blob:          env.blob,
		Phase:         env.oracle,
		Hub:           env.hub,
	})
	return env
}

// addSection seeds a published section and its subject.
func (env *testEnv) addSection(id, subjectID, maxSeats int, mask model.TimeslotMask) {
	env.subjects.rows[subjectID] = model.Subject{ID: subjectID, Code: "S", Name: "Subject", Type: "theory", Credits: 3, Published: true}
	env.sections.rows[id] = model.Section{
		ID:           id,
		SubjectID:    subjectID,
		MaxSeats:     maxSeats,
		TimeslotMask: mask,
		Published:    true,
	}
}

func (env *testEnv) enroll(studentID string, subjectIDs ...int) {
	env.enrollments.rows[studentID] = append(env.enrollments.rows[studentID], subjectIDs...)
}
