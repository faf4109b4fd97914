package actor

import (
	"context"
	"log"
	"sync"
	"time"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/blob"
	"coursecontrol/internal/cache"
	"coursecontrol/internal/model"
	"coursecontrol/internal/phase"
	"coursecontrol/internal/push"
	"coursecontrol/internal/repository"
)

// proc is a serial executor: every function posted to it runs on a single
// goroutine in FIFO order, so actor state needs no locking. The goroutine is
// started lazily and exits when the queue drains.
type proc struct {
	name string

	mu      sync.Mutex
	queue   []func()
	running bool
	timers  map[string]*time.Timer
}

func newProc(name string) *proc {
	return &proc{name: name, timers: make(map[string]*time.Timer)}
}

// Post enqueues fn and returns immediately.
func (p *proc) Post(fn func()) {
	p.mu.Lock()
	p.queue = append(p.queue, fn)
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()
	go p.run()
}

func (p *proc) run() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		fn()
	}
}

// Call runs fn on the proc and waits for it. The context only bounds the
// wait; a posted fn always runs eventually.
func (p *proc) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	p.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule arms a named timer that posts fn after d. Re-scheduling the same
// key replaces the pending timer, so each key has at most one shot in flight.
func (p *proc) Schedule(key string, d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[key]; ok {
		t.Stop()
	}
	p.timers[key] = time.AfterFunc(d, func() {
		p.mu.Lock()
		delete(p.timers, key)
		p.mu.Unlock()
		p.Post(fn)
	})
}

// Scheduled reports whether the named timer is armed.
func (p *proc) Scheduled(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[key]
	return ok
}

// Cancel stops the named timer if armed.
func (p *proc) Cancel(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[key]; ok {
		t.Stop()
		delete(p.timers, key)
	}
}

// backoff doubles a retry delay up to a cap. Reset on success.
type backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

func (b *backoff) Next() time.Duration {
	if b.cur == 0 {
		b.cur = b.base
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	return b.cur
}

func (b *backoff) Reset() { b.cur = 0 }

// Deps bundles everything actors reach for. One value, built in main, shared
// by the whole system.
type Deps struct {
	Log *log.Logger

	Subjects      repository.SubjectRepo
	Sections      repository.SectionRepo
	Selections    repository.SelectionRepo
	Enrollments   repository.EnrollmentRepo
	Groups        repository.GroupRepo
	GroupInvites  repository.InviteRepo
	SwapInvites   repository.InviteRepo
	Swaps         repository.SwapRepo
	Queue         repository.QueueRepo
	Users         repository.UserRepo
	Notifications repository.NotificationRepo
	Phases        repository.PhaseRepo
	Tx            repository.TxRunner

	Cache cache.SubjectCache
	Blob  blob.Store
	Phase phase.Oracle
	Hub   push.Broadcaster

	Now func() time.Time
}

func (d *Deps) nowMs() int64 { return d.Now().UnixMilli() }

// System is the actor registry. Actors are created on first contact and live
// for the life of the process; durable state stays in the repositories, so a
// restart simply rebuilds them lazily.
type System struct {
	deps Deps

	mu         sync.Mutex
	sections   map[int]*SectionActor
	subjects   map[int]*SubjectActor
	students   map[string]*StudentActor
	faculties  map[string]*FacultyActor
	aggregator *Aggregator
	admin      *AdminActor
}

func NewSystem(deps Deps) *System {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Hub == nil {
		deps.Hub = push.Nop{}
	}
	s := &System{
		deps:      deps,
		sections:  make(map[int]*SectionActor),
		subjects:  make(map[int]*SubjectActor),
		students:  make(map[string]*StudentActor),
		faculties: make(map[string]*FacultyActor),
	}
	s.aggregator = newAggregator(s)
	s.admin = newAdminActor(s)
	return s
}

func (s *System) Section(id int) *SectionActor {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.sections[id]
	if !ok {
		a = newSectionActor(s, id)
		s.sections[id] = a
	}
	return a
}

func (s *System) Subject(id int) *SubjectActor {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.subjects[id]
	if !ok {
		a = newSubjectActor(s, id)
		s.subjects[id] = a
	}
	return a
}

func (s *System) Student(userID string) *StudentActor {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.students[userID]
	if !ok {
		a = newStudentActor(s, userID)
		s.students[userID] = a
	}
	return a
}

func (s *System) Faculty(userID string) *FacultyActor {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.faculties[userID]
	if !ok {
		a = newFacultyActor(s, userID)
		s.faculties[userID] = a
	}
	return a
}

func (s *System) Aggregator() *Aggregator { return s.aggregator }

// Phase exposes the current phase to the transports.
func (s *System) Phase(ctx context.Context) (model.Phase, error) {
	return s.deps.Phase.Current(ctx)
}

func (s *System) Admin() *AdminActor { return s.admin }

// requirePhase turns a phase mismatch into the coded rejection the caller
// records on the queue item.
func (s *System) requirePhase(ctx context.Context, want string, allowed ...string) error {
	cur, err := s.deps.Phase.Current(ctx)
	if err != nil {
		return apperr.From(err)
	}
	for _, a := range allowed {
		if string(cur) == a {
			return nil
		}
	}
	return apperr.Newf(want, 409, "action not allowed in phase %q", cur)
}
