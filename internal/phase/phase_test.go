package phase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecontrol/internal/model"
)

func sched() *model.PhaseSchedule {
	return &model.PhaseSchedule{
		SelectionStartMs: 1000,
		SelectionEndMs:   2000,
		SwapStartMs:      3000,
		SwapEndMs:        4000,
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name  string
		nowMs int64
		want  model.Phase
	}{
		{"before selection", 500, model.PhasePre},
		{"selection opens", 1000, model.PhaseSelection},
		{"mid selection", 1500, model.PhaseSelection},
		{"selection closed", 2000, model.PhaseBetween},
		{"gap", 2500, model.PhaseBetween},
		{"swap opens", 3000, model.PhaseSwap},
		{"mid swap", 3500, model.PhaseSwap},
		{"swap closed", 4000, model.PhasePost},
		{"long after", 99999, model.PhasePost},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compute(tc.nowMs, sched()))
		})
	}
}

func TestComputeNilSchedule(t *testing.T) {
	assert.Equal(t, model.PhasePre, Compute(12345, nil))
}

type stubPhaseRepo struct {
	mu      sync.Mutex
	sched   *model.PhaseSchedule
	err     error
	fetches int
}

func (s *stubPhaseRepo) Latest(context.Context) (*model.PhaseSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.sched, nil
}

func (s *stubPhaseRepo) Insert(_ context.Context, sc *model.PhaseSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched = sc
	return nil
}

func TestOracleCachesWithinTTL(t *testing.T) {
	repo := &stubPhaseRepo{sched: sched()}
	now := time.Unix(0, 1500*int64(time.Millisecond))
	oracle := NewOracleWithClock(repo, func() time.Time { return now }, 5*time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p, err := oracle.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseSelection, p)
	}
	assert.Equal(t, 1, repo.fetches)
}

func TestOracleRefetchesAfterTTL(t *testing.T) {
	repo := &stubPhaseRepo{sched: sched()}
	now := time.Unix(100, 0)
	oracle := NewOracleWithClock(repo, func() time.Time { return now }, 5*time.Second)
	ctx := context.Background()

	_, err := oracle.Current(ctx)
	require.NoError(t, err)
	now = now.Add(6 * time.Second)
	_, err = oracle.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.fetches)
}

func TestOracleServesStaleOnError(t *testing.T) {
	repo := &stubPhaseRepo{sched: sched()}
	now := time.Unix(0, 1500*int64(time.Millisecond))
	oracle := NewOracleWithClock(repo, func() time.Time { return now }, time.Second)
	ctx := context.Background()

	p, err := oracle.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSelection, p)

	repo.mu.Lock()
	repo.err = assert.AnError
	repo.mu.Unlock()
	now = now.Add(2 * time.Second)

	p, err = oracle.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSelection, p)
}

func TestOracleFailsWithNothingCached(t *testing.T) {
	repo := &stubPhaseRepo{err: assert.AnError}
	oracle := NewOracleWithClock(repo, time.Now, time.Second)

	_, err := oracle.Current(context.Background())
	require.Error(t, err)
}

func TestOracleInvalidate(t *testing.T) {
	repo := &stubPhaseRepo{sched: sched()}
	now := time.Unix(100, 0)
	oracle := NewOracleWithClock(repo, func() time.Time { return now }, time.Hour)
	ctx := context.Background()

	_, err := oracle.Current(ctx)
	require.NoError(t, err)
	oracle.Invalidate()
	_, err = oracle.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.fetches)
}
