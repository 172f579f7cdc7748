package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDimensions is the number of transmission paths when the
// config does not override it.
const DefaultDimensions = 7

// MaxDimensions is bounded by the one-byte dimension tag.
const MaxDimensions = 256

var (
	ErrNoActiveDimensions = errors.New("engine: no active dimensions")
	ErrDimensionMismatch  = errors.New("engine: active flag count does not match dimension count")
	ErrInvalidDimensions  = errors.New("engine: dimension count out of range")
)

// scatterState tracks per-dimension routing load. The active flags and
// load counters have equal, fixed length for the life of the engine.
// Load increments are atomic per dimension; the flags and rotation
// timestamp are guarded by the mutex and only change through explicit
// administrative rotation, never as a side effect of routing.
type scatterState struct {
	mu           sync.RWMutex
	active       []bool
	loads        []atomic.Uint64
	lastRotation time.Time
}

func newScatterState(dimensions int) *scatterState {
	s := &scatterState{
		active: make([]bool, dimensions),
		loads:  make([]atomic.Uint64, dimensions),
	}
	for i := range s.active {
		s.active[i] = true
	}
	return s
}

// selectDimension picks the least-loaded active dimension, breaking
// ties by lowest index. The scan is deterministic for a fixed load
// snapshot.
func (s *scatterState) selectDimension() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	var bestLoad uint64
	for i := range s.active {
		if !s.active[i] {
			continue
		}
		load := s.loads[i].Load()
		if best == -1 || load < bestLoad {
			best = i
			bestLoad = load
		}
	}
	if best == -1 {
		return 0, ErrNoActiveDimensions
	}
	return best, nil
}

func (s *scatterState) addLoad(dim int, n uint64) {
	s.loads[dim].Add(n)
}

// rotate replaces the active flag set. Length must match the
// configured dimension count; an all-false set is allowed and simply
// fails subsequent routes.
func (s *scatterState) rotate(active []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(active) != len(s.active) {
		return ErrDimensionMismatch
	}
	copy(s.active, active)
	s.lastRotation = time.Now()
	return nil
}

func (s *scatterState) resetLoads() {
	for i := range s.loads {
		s.loads[i].Store(0)
	}
}

func (s *scatterState) snapshotLoads() []uint64 {
	out := make([]uint64, len(s.loads))
	for i := range s.loads {
		out[i] = s.loads[i].Load()
	}
	return out
}

func (s *scatterState) snapshotActive() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.active...)
}

func (s *scatterState) rotatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRotation
}
