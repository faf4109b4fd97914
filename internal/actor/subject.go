package actor

import (
	"context"
	"sort"
	"strconv"
	"time"

	"coursecontrol/internal/cache"
)

// SubjectActor collects seat counts from its sections and materializes them
// into the key-value store, where the aggregator and anonymous reads pick
// them up. Materialization is coalesced: bursts of seat changes produce one
// write per second, and write failures retry with doubling backoff.
type SubjectActor struct {
	sys  *System
	id   int
	proc *proc

	loaded  bool
	seats   map[int]cache.SectionSeats
	updates []SeatUpdate
	retry   *backoff
}

// SeatUpdate is one recorded seat-count change, kept in a short ring for
// the status read.
type SeatUpdate struct {
	SectionID int   `json:"sectionId"`
	SeatsLeft int   `json:"seatsLeft"`
	MaxSeats  int   `json:"maxSeats"`
	AtMs      int64 `json:"atMs"`
}

// SubjectStatus is the diagnostic view of a subject actor.
type SubjectStatus struct {
	SubjectID int                  `json:"subjectId"`
	Sections  []cache.SectionSeats `json:"sections"`
	Updates   []SeatUpdate         `json:"updates"`
}

const (
	materializeDelay    = time.Second
	subjectUpdateLogCap = 50
)

func newSubjectActor(sys *System, id int) *SubjectActor {
	return &SubjectActor{
		sys:   sys,
		id:    id,
		proc:  newProc("subject"),
		seats: make(map[int]cache.SectionSeats),
		retry: newBackoff(2*time.Second, 30*time.Second),
	}
}

// bootstrap seeds seat counts from the durable selection rows, for the first
// contact after a restart.
func (a *SubjectActor) bootstrap(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	sections, err := a.sys.deps.Sections.ListBySubject(ctx, a.id)
	if err != nil {
		return err
	}
	now := a.sys.deps.nowMs()
	for _, sec := range sections {
		if !sec.Published {
			continue
		}
		n, cerr := a.sys.deps.Selections.CountBySection(ctx, sec.ID)
		if cerr != nil {
			return cerr
		}
		a.seats[sec.ID] = cache.SectionSeats{
			SectionID:   sec.ID,
			SeatsLeft:   sec.MaxSeats - n,
			MaxSeats:    sec.MaxSeats,
			UpdatedAtMs: now,
		}
	}
	a.loaded = true
	return nil
}

// NoteSeats records a section's new seat count and arms the materialize
// timer. Called by section actors; never blocks them.
func (a *SubjectActor) NoteSeats(sectionID, seatsLeft, maxSeats int) {
	if sectionID <= 0 || maxSeats <= 0 || seatsLeft < 0 || seatsLeft > maxSeats {
		a.sys.deps.Log.Printf("subject %d: dropping invalid seat update: section=%d seats=%d/%d",
			a.id, sectionID, seatsLeft, maxSeats)
		return
	}
	a.proc.Post(func() {
		a.updates = append(a.updates, SeatUpdate{
			SectionID: sectionID,
			SeatsLeft: seatsLeft,
			MaxSeats:  maxSeats,
			AtMs:      a.sys.deps.nowMs(),
		})
		if len(a.updates) > subjectUpdateLogCap {
			a.updates = a.updates[len(a.updates)-subjectUpdateLogCap:]
		}
		a.seats[sectionID] = cache.SectionSeats{
			SectionID:   sectionID,
			SeatsLeft:   seatsLeft,
			MaxSeats:    maxSeats,
			UpdatedAtMs: a.sys.deps.nowMs(),
		}
		a.loaded = true
		if !a.proc.Scheduled("materialize") {
			a.proc.Schedule("materialize", materializeDelay, a.materialize)
		}
	})
}

// Materialize forces an immediate write, bootstrapping from the rows first
// if this actor has no state yet.
func (a *SubjectActor) Materialize(ctx context.Context) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		if err = a.bootstrap(ctx); err != nil {
			return
		}
		err = a.write(ctx)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Status returns current seat state plus the recent update log.
func (a *SubjectActor) Status(ctx context.Context) (*SubjectStatus, error) {
	var st *SubjectStatus
	var err error
	cerr := a.proc.Call(ctx, func() {
		if err = a.bootstrap(ctx); err != nil {
			return
		}
		st = &SubjectStatus{
			SubjectID: a.id,
			Sections:  make([]cache.SectionSeats, 0, len(a.seats)),
			Updates:   append([]SeatUpdate(nil), a.updates...),
		}
		for _, s := range a.seats {
			st.Sections = append(st.Sections, s)
		}
		sort.Slice(st.Sections, func(i, j int) bool {
			return st.Sections[i].SectionID < st.Sections[j].SectionID
		})
	})
	if cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (a *SubjectActor) materialize() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.write(ctx); err != nil {
		d := a.retry.Next()
		a.sys.deps.Log.Printf("subject %d: materialize failed, retrying in %s: %v", a.id, d, err)
		a.proc.Schedule("materialize", d, a.materialize)
		return
	}
	a.retry.Reset()
}

func (a *SubjectActor) write(ctx context.Context) error {
	payload := &cache.SubjectPayload{
		SubjectID:   a.id,
		UpdatedAtMs: a.sys.deps.nowMs(),
		Sections:    make(map[string]cache.SectionSeats, len(a.seats)),
	}
	for id, s := range a.seats {
		payload.Sections[strconv.Itoa(id)] = s
	}
	return a.sys.deps.Cache.Set(ctx, a.id, payload)
}
