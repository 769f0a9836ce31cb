package scaling

import (
	"math"
	"sync"
	"time"
)

// minRateInterval floors the elapsed time used for the rate so two observations
// with the same timestamp never divide by zero.
const minRateInterval = time.Millisecond

// Observation is a single (timestamp, backlog) point.
type Observation struct {
	At      time.Time
	Backlog int64
}

// PoolState is the mutable runtime state of a pool. It lives for the process
// lifetime and is never persisted.
type PoolState struct {
	mu sync.Mutex

	History   *Window
	LastPoint *Observation

	// Zero value means "never".
	LastScaleUp   time.Time
	LastScaleDown time.Time
}

// NewPoolState returns an empty state with a window of the given size.
func NewPoolState(window int) *PoolState {
	return &PoolState{History: NewWindow(window)}
}

// observe pushes the backlog into the window and returns the smoothed backlog and the
// rate relative to the previous observation. lastPoint is always replaced.
func (s *PoolState) observe(now time.Time, backlog int64) (sma, rate float64) {
	s.History.Push(float64(backlog))
	sma, _ = s.History.Mean()

	if s.LastPoint != nil {
		dt := math.Max(minRateInterval.Seconds(), now.Sub(s.LastPoint.At).Seconds())
		rate = float64(backlog-s.LastPoint.Backlog) / dt
	}
	s.LastPoint = &Observation{At: now, Backlog: backlog}
	return sma, rate
}

func (s *PoolState) markScaleUp(now time.Time) {
	if now.After(s.LastScaleUp) {
		s.LastScaleUp = now
	}
}

func (s *PoolState) markScaleDown(now time.Time) {
	if now.After(s.LastScaleDown) {
		s.LastScaleDown = now
	}
}

// Pool pairs an immutable configuration with the state it owns.
type Pool struct {
	Config PoolConfig
	State  *PoolState
}

// NewPool creates a pool with fresh state sized from the configuration.
func NewPool(cfg PoolConfig) *Pool {
	return &Pool{Config: cfg, State: NewPoolState(cfg.SMAWindow)}
}
