package orchestrator

import (
	"sync"
	"time"
)

// Default polling cadence.
const (
	DefaultFloor = 5 * time.Second
	DefaultStep  = 5 * time.Second
)

// Scheduler owns the single pending poll timer and its adaptive interval.
type Scheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	floor   time.Duration
	step    time.Duration
	current time.Duration
}

// NewScheduler returns a scheduler starting at floor.
func NewScheduler(floor, step time.Duration) *Scheduler {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if step < 0 {
		step = 0
	}
	return &Scheduler{floor: floor, step: step, current: floor}
}

// Schedule replaces any pending timer with one that runs fn after the
// current interval.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	gen := s.gen
	s.timer = time.AfterFunc(s.current, func() {
		s.mu.Lock()
		live := s.gen == gen
		if live {
			s.timer = nil
		}
		s.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Stop cancels the pending timer, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Scheduler) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Reset returns the interval to the floor.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.current = s.floor
	s.mu.Unlock()
}

// Backoff lengthens the interval by one step.
func (s *Scheduler) Backoff() {
	s.mu.Lock()
	s.current += s.step
	s.mu.Unlock()
}

// Current returns the interval the next Schedule call will use.
func (s *Scheduler) Current() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
