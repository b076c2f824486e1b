package relay

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"albumrelay/internal/eventbus"
	logx "albumrelay/pkg/logx"
)

// SweepEvent is published for every group disposed by the sweeper.
type SweepEvent struct {
	Key      string        `json:"key"`
	ChatID   int64         `json:"chat_id"`
	SenderID int64         `json:"sender_id"`
	Items    int           `json:"items"`
	Age      time.Duration `json:"age"`
}

var sweepParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper periodically drops groups that outlived the TTL. It is the safety
// net for lost timers; swept items are never dispatched and nobody is told.
type Sweeper struct {
	store *Store
	sched *Scheduler
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	// debounce reports the current quiet period for re-arming fresh groups.
	debounce func() time.Duration
	// expired, when set, runs after a stale group is popped and before its
	// timer is canceled.
	expired func(key string)

	swept atomic.Uint64

	mu   sync.Mutex
	ttl  time.Duration
	spec string
	c    *cron.Cron
}

func NewSweeper(store *Store, sched *Scheduler, bus eventbus.Bus, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Sweeper{
		store: store,
		sched: sched,
		bus:   bus,
		log:   log,
		now:   time.Now,
		ttl:   DefaultGroupTTL,
		spec:  DefaultSweepSchedule,
	}
}

// ValidateSchedule reports whether spec is a usable sweep schedule.
func ValidateSchedule(spec string) error {
	if _, err := sweepParser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins sweeping on the current schedule. Calling Start twice restarts
// the cron runner.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartLocked()
}

func (s *Sweeper) restartLocked() error {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	c := cron.New(cron.WithParser(sweepParser))
	if _, err := c.AddFunc(s.spec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.c = c
	return nil
}

// Stop halts the cron runner. A sweep already running completes.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Apply updates ttl and schedule, restarting the runner if it is active and
// the schedule changed.
func (s *Sweeper) Apply(ttl time.Duration, spec string) error {
	if ttl <= 0 {
		ttl = DefaultGroupTTL
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
	if spec == s.spec {
		return nil
	}
	s.spec = spec
	if s.c == nil {
		return nil
	}
	return s.restartLocked()
}

// Sweep disposes every group older than the TTL and returns the count.
func (s *Sweeper) Sweep() int {
	s.mu.Lock()
	ttl := s.ttl
	s.mu.Unlock()

	now := s.now()
	expired := s.store.SweepExpired(now, ttl)
	for _, b := range expired {
		if s.expired != nil {
			s.expired(b.Key)
		}
		if s.sched != nil {
			s.sched.Cancel(b.Key)
			// An arrival after the pop opened a new group whose timer the
			// cancel may have hit.
			if s.store.Has(b.Key) {
				s.sched.Reschedule(b.Key, s.debounceDelay())
			}
		}
		age := now.Sub(b.CreatedAt)
		ev := SweepEvent{Key: b.Key, Items: len(b.Items), Age: age}
		if len(b.Items) > 0 {
			ev.ChatID = b.Items[0].Origin.ChatID
			ev.SenderID = b.Items[0].Sender.ID
		}
		s.log.Warn("stale group swept",
			logx.String("key", b.Key),
			logx.Int("items", len(b.Items)),
			logx.Duration("age", age),
			logx.Duration("ttl", ttl),
		)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSwept, Data: ev})
	}
	s.swept.Add(uint64(len(expired)))
	return len(expired)
}

func (s *Sweeper) debounceDelay() time.Duration {
	if s.debounce != nil {
		if d := s.debounce(); d > 0 {
			return d
		}
	}
	return DefaultDebounceDelay
}

// Swept returns the number of groups disposed so far.
func (s *Sweeper) Swept() uint64 { return s.swept.Load() }
