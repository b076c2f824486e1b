package relay

import (
	"sync"
	"testing"
	"time"
)

type fireLog struct {
	mu   sync.Mutex
	keys []string
}

func (f *fireLog) fire(key string) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
}

func (f *fireLog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func TestSchedulerFiresOnceAfterLastReschedule(t *testing.T) {
	t.Parallel()
	var fl fireLog
	s := NewScheduler(fl.fire)

	start := time.Now()
	for i := 0; i < 5; i++ {
		s.Reschedule("k", 150*time.Millisecond)
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, "fire", func() bool { return fl.count() == 1 })
	if el := time.Since(start); el < 180*time.Millisecond {
		t.Fatalf("fired after %v; the delay must restart on each reschedule", el)
	}
	time.Sleep(100 * time.Millisecond)
	if n := fl.count(); n != 1 {
		t.Fatalf("fired %d times", n)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending = %d after fire", s.Pending())
	}
}

func TestSchedulerKeysAreIndependent(t *testing.T) {
	t.Parallel()
	var fl fireLog
	s := NewScheduler(fl.fire)
	s.Reschedule("a", 20*time.Millisecond)
	s.Reschedule("b", 20*time.Millisecond)
	waitFor(t, "both keys", func() bool { return fl.count() == 2 })
}

func TestSchedulerCancelAndStop(t *testing.T) {
	t.Parallel()
	var fl fireLog
	s := NewScheduler(fl.fire)
	s.Reschedule("a", 30*time.Millisecond)
	if !s.Cancel("a") {
		t.Fatal("Cancel reported nothing pending")
	}
	s.Reschedule("b", 30*time.Millisecond)
	if n := s.Stop(); n != 1 {
		t.Fatalf("Stop canceled %d timers, want 1", n)
	}
	if s.Reschedule("c", time.Millisecond) {
		t.Fatal("Reschedule accepted after Stop")
	}
	time.Sleep(80 * time.Millisecond)
	if n := fl.count(); n != 0 {
		t.Fatalf("fired %d times after cancel/stop", n)
	}
}
