// Package flush debounces pushes of the transcript window to the
// translation sink.
//
// One dirty flag, one timer. Any transcript mutation resets the timer; when
// a quiet period elapses the window is pushed. The first flush after
// activation or clear uses a short interval so the sink fills fast, later
// flushes use a longer one so rapid recognizer revisions don't churn the
// sink.
package flush

import (
	"sync"
	"time"

	"caption-ingress-engine/internal/observability/metrics"
)

// Scheduler owns the single debounce timer. Fire runs on the timer
// goroutine; the callback must do its own locking.
type Scheduler struct {
	mu             sync.Mutex
	timer          *time.Timer
	dirty          bool
	firstFlushDone bool
	stopped        bool

	firstInterval  time.Duration
	steadyInterval time.Duration
	fire           func()
	metrics        *metrics.Metrics
}

// New creates a scheduler. fire is invoked after each debounce expiry that
// found dirty state.
func New(firstInterval, steadyInterval time.Duration, fire func()) *Scheduler {
	return &Scheduler{
		firstInterval:  firstInterval,
		steadyInterval: steadyInterval,
		fire:           fire,
		metrics:        metrics.DefaultMetrics,
	}
}

// Touch marks the transcript dirty and resets the debounce timer.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.dirty = true
	s.resetTimerLocked()
}

// ResetFast returns the scheduler to first-flush behavior. Called on
// session activation and clear.
func (s *Scheduler) ResetFast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstFlushDone = false
	s.dirty = false
	s.stopped = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Cancel stops the timer and drops any pending flush.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.dirty = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// interval returns the debounce for the next flush.
func (s *Scheduler) interval() time.Duration {
	if !s.firstFlushDone {
		return s.firstInterval
	}
	return s.steadyInterval
}

func (s *Scheduler) resetTimerLocked() {
	d := s.interval()
	if s.timer == nil {
		s.timer = time.AfterFunc(d, s.onTimer)
		return
	}
	s.timer.Stop()
	s.timer.Reset(d)
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.stopped {
		// A late expiry racing Cancel, not a skipped flush.
		s.mu.Unlock()
		return
	}
	if !s.dirty {
		s.mu.Unlock()
		s.metrics.FlushesSkipped.Inc()
		return
	}
	s.dirty = false
	s.firstFlushDone = true
	fire := s.fire
	s.mu.Unlock()

	s.metrics.FlushesTotal.Inc()
	fire()
}
