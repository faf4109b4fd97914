package actor

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"coursecontrol/internal/cache"
	"coursecontrol/internal/model"
)

// Aggregator periodically folds every published subject's materialized seat
// payload into one state document in blob storage. Anonymous reads during
// the selection window serve that document instead of touching the database.
//
// A subject with no key-value entry yet is shown with zero seats left:
// under-promising seats is recoverable, over-promising is not.
type Aggregator struct {
	sys  *System
	proc *proc

	retry    *backoff
	started  bool
	buildLog []BuildRecord
}

// Build cadence tracks the phase: tight while seats are moving, relaxed
// otherwise.
const (
	aggregateIntervalSelection = 2 * time.Second
	aggregateIntervalIdle      = 20 * time.Second
)

const buildLogCap = 50

// BuildRecord is one line of the aggregator's build log.
type BuildRecord struct {
	AtMs        int64  `json:"atMs"`
	OK          bool   `json:"ok"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
	Subjects    int    `json:"subjects"`
	CacheHits   int    `json:"cacheHits"`
	CacheMisses int    `json:"cacheMisses"`
}

// AggregateState is the shape of the published state document.
type AggregateState struct {
	GeneratedAtMs int64              `json:"generatedAtMs"`
	Subjects      []AggregateSubject `json:"subjects"`
}

type AggregateSubject struct {
	SubjectID int                  `json:"subjectId"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      string               `json:"type"`
	Credits   int                  `json:"credits"`
	Sections  []cache.SectionSeats `json:"sections"`
}

func newAggregator(sys *System) *Aggregator {
	return &Aggregator{
		sys:   sys,
		proc:  newProc("aggregator"),
		retry: newBackoff(2*time.Second, 30*time.Second),
	}
}

// Start arms the periodic build. Safe to call once from main.
func (a *Aggregator) Start() {
	a.proc.Post(func() {
		if a.started {
			return
		}
		a.started = true
		a.proc.Post(a.tick)
	})
}

func (a *Aggregator) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := a.build(ctx); err != nil {
		d := a.retry.Next()
		a.sys.deps.Log.Printf("aggregator: build failed, retrying in %s: %v", d, err)
		a.proc.Schedule("tick", d, a.tick)
		return
	}
	a.retry.Reset()
	a.proc.Schedule("tick", a.interval(ctx), a.tick)
}

func (a *Aggregator) interval(ctx context.Context) time.Duration {
	cur, err := a.sys.deps.Phase.Current(ctx)
	if err == nil && cur == model.PhaseSelection {
		return aggregateIntervalSelection
	}
	return aggregateIntervalIdle
}

// BuildNow runs one build synchronously, for the admin force endpoint.
func (a *Aggregator) BuildNow(ctx context.Context) error {
	var err error
	cerr := a.proc.Call(ctx, func() {
		err = a.build(ctx)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

func (a *Aggregator) build(ctx context.Context) (err error) {
	rec := BuildRecord{AtMs: a.sys.deps.nowMs()}
	defer func() {
		rec.OK = err == nil
		if err != nil {
			rec.Error = err.Error()
		}
		a.buildLog = append(a.buildLog, rec)
		if len(a.buildLog) > buildLogCap {
			a.buildLog = a.buildLog[len(a.buildLog)-buildLogCap:]
		}
	}()

	subjects, err := a.sys.deps.Subjects.ListPublished(ctx)
	if err != nil {
		return err
	}
	state := AggregateState{
		GeneratedAtMs: a.sys.deps.nowMs(),
		Subjects:      make([]AggregateSubject, 0, len(subjects)),
	}
	for _, subj := range subjects {
		agg := AggregateSubject{
			SubjectID: subj.ID,
			Code:      subj.Code,
			Name:      subj.Name,
			Type:      subj.Type,
			Credits:   subj.Credits,
		}
		payload, cerr := a.sys.deps.Cache.Get(ctx, subj.ID)
		if cerr != nil {
			return cerr
		}
		if payload != nil {
			rec.CacheHits++
			for _, seats := range payload.Sections {
				agg.Sections = append(agg.Sections, seats)
			}
		} else {
			rec.CacheMisses++
			// not materialized yet: list the sections as full
			secs, serr := a.sys.deps.Sections.ListBySubject(ctx, subj.ID)
			if serr != nil {
				return serr
			}
			for _, sec := range secs {
				if !sec.Published {
					continue
				}
				agg.Sections = append(agg.Sections, cache.SectionSeats{
					SectionID: sec.ID,
					SeatsLeft: 0,
					MaxSeats:  sec.MaxSeats,
				})
			}
		}
		sortSeats(agg.Sections)
		state.Subjects = append(state.Subjects, agg)
	}
	rec.Subjects = len(state.Subjects)

	data, err := json.Marshal(&state)
	if err != nil {
		return err
	}
	fp, err := a.sys.deps.Blob.PutState(ctx, data)
	if err != nil {
		return err
	}
	rec.Fingerprint = fp
	return nil
}

func sortSeats(s []cache.SectionSeats) {
	sort.Slice(s, func(i, j int) bool { return s[i].SectionID < s[j].SectionID })
}

// State returns the last published document and its fingerprint.
func (a *Aggregator) State(ctx context.Context) ([]byte, string, error) {
	return a.sys.deps.Blob.GetState(ctx)
}

// Log returns a copy of the build log, newest last.
func (a *Aggregator) Log(ctx context.Context) ([]BuildRecord, error) {
	var out []BuildRecord
	cerr := a.proc.Call(ctx, func() {
		out = make([]BuildRecord, len(a.buildLog))
		copy(out, a.buildLog)
	})
	if cerr != nil {
		return nil, cerr
	}
	return out, nil
}
