package phase

import (
	"context"
	"sync"
	"time"

	"coursecontrol/internal/model"
	"coursecontrol/internal/repository"
)

// Compute derives the current phase from a schedule. A nil schedule means
// the admin has not configured one yet, which reads as pre-selection.
func Compute(nowMs int64, sched *model.PhaseSchedule) model.Phase {
	if sched == nil {
		return model.PhasePre
	}
	switch {
	case nowMs < sched.SelectionStartMs:
		return model.PhasePre
	case nowMs < sched.SelectionEndMs:
		return model.PhaseSelection
	case nowMs < sched.SwapStartMs:
		return model.PhaseBetween
	case nowMs < sched.SwapEndMs:
		return model.PhaseSwap
	default:
		return model.PhasePost
	}
}

// Oracle answers "what phase is it" with a short TTL so hot paths don't hit
// the database on every action.
type Oracle interface {
	Current(ctx context.Context) (model.Phase, error)
	// Schedule returns the latest schedule row, possibly nil, bypassing
	// nothing: it shares the same cached fetch.
	Schedule(ctx context.Context) (*model.PhaseSchedule, error)
	// Invalidate drops the cached schedule, forcing a refetch on next read.
	Invalidate()
}

type oracle struct {
	repo repository.PhaseRepo
	now  func() time.Time
	ttl  time.Duration

	mu        sync.Mutex
	sched     *model.PhaseSchedule
	fetchedAt time.Time
	loaded    bool
}

const defaultTTL = 5 * time.Second

func NewOracle(repo repository.PhaseRepo) Oracle {
	return &oracle{repo: repo, now: time.Now, ttl: defaultTTL}
}

// NewOracleWithClock exists for tests that need deterministic time.
func NewOracleWithClock(repo repository.PhaseRepo, now func() time.Time, ttl time.Duration) Oracle {
	return &oracle{repo: repo, now: now, ttl: ttl}
}

func (o *oracle) fetch(ctx context.Context) (*model.PhaseSchedule, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded && o.now().Sub(o.fetchedAt) < o.ttl {
		return o.sched, nil
	}
	sched, err := o.repo.Latest(ctx)
	if err != nil {
		// Serve the stale value if we have one rather than failing the
		// caller's action on a transient database error.
		if o.loaded {
			return o.sched, nil
		}
		return nil, err
	}
	o.sched = sched
	o.fetchedAt = o.now()
	o.loaded = true
	return o.sched, nil
}

func (o *oracle) Current(ctx context.Context) (model.Phase, error) {
	sched, err := o.fetch(ctx)
	if err != nil {
		return "", err
	}
	return Compute(o.now().UnixMilli(), sched), nil
}

func (o *oracle) Schedule(ctx context.Context) (*model.PhaseSchedule, error) {
	return o.fetch(ctx)
}

func (o *oracle) Invalidate() {
	o.mu.Lock()
	o.loaded = false
	o.mu.Unlock()
}
