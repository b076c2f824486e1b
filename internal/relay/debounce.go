package relay

import (
	"sync"
	"time"
)

// Scheduler owns at most one pending flush timer per key.
//
// Every Reschedule stops the previous timer and arms a new one under the same
// lock, tagging it with a fresh generation. A fire whose generation is no longer
// current (its Stop lost the race) does nothing, so each arm reaches the
// callback at most once and a canceled timer never re-arms.
type Scheduler struct {
	fire func(key string)

	mu      sync.Mutex
	pending map[string]pendingFlush
	gen     uint64
	stopped bool
}

type pendingFlush struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler returns a scheduler calling fire(key) once the key has been
// quiet for its delay. fire runs on the timer goroutine and should not block.
func NewScheduler(fire func(key string)) *Scheduler {
	return &Scheduler{fire: fire, pending: make(map[string]pendingFlush)}
}

// Reschedule cancels any pending flush for key and arms a new one after delay.
// It returns false once the scheduler has been stopped.
func (s *Scheduler) Reschedule(key string, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending[key] = pendingFlush{
		gen:   gen,
		timer: time.AfterFunc(delay, func() { s.fired(key, gen) }),
	}
	return true
}

func (s *Scheduler) fired(key string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	s.fire(key)
}

// Cancel drops the pending flush for key, if any.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[key]
	if ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	return ok
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending flush and rejects further Reschedule calls.
// It returns the number of timers canceled. Buffered groups are left in place.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	n := len(s.pending)
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
	return n
}

// Resume accepts Reschedule calls again after Stop.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}
