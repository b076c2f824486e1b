package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"albumrelay/internal/eventbus"
	"albumrelay/internal/runtime/supervisor"
	kit "albumrelay/internal/transport"
	logx "albumrelay/pkg/logx"
)

// ErrStopped is returned by Handle when the service is not running.
var ErrStopped = errors.New("relay is not running")

// UnsupportedHint is the reply to content the relay does not accept.
const UnsupportedHint = "⚠️ I only accept photos and videos (also sent as files). " +
	"Send a photo, a video or an album and I will forward it to the chat."

// BufferedEvent is published for every accepted item.
type BufferedEvent struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Items    int    `json:"items"`
}

// RejectedEvent is published for every item refused by the classifier.
type RejectedEvent struct {
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Sender   string `json:"sender"`
	Reason   string `json:"reason"`
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Groups    int
	Timers    int
	Oldest    time.Time // zero when nothing is buffered
	Accepted  uint64
	Rejected  uint64
	Succeeded uint64
	Partial   uint64
	Failed    uint64
	Swept     uint64
	Workers   supervisor.Counters
}

// Service accepts inbound messages, buffers album parts until their group goes
// quiet and hands finished groups to the Dispatcher.
type Service struct {
	log   logx.Logger
	bus   eventbus.Bus
	acks  Acknowledger
	store *Store
	sched *Scheduler
	disp  *Dispatcher
	sweep *Sweeper

	mu         sync.RWMutex
	cfg        Config
	classifier *Classifier
	sup        *supervisor.Supervisor
	running    bool

	accepted, rejected         atomic.Uint64
	succeeded, partial, failed atomic.Uint64
}

func New(cfg Config, sender kit.MediaSender, acks Acknowledger, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		log:        log,
		bus:        bus,
		acks:       acks,
		store:      NewStore(),
		cfg:        cfg,
		classifier: NewClassifier(cfg.MaxItemSize, cfg.PhotoExtensions, cfg.VideoExtensions),
	}
	s.sched = NewScheduler(s.flushAsync)
	s.disp = NewDispatcher(cfg, s.store, sender, acks, bus, log.With(logx.String("comp", "relay.dispatch")))
	s.sweep = NewSweeper(s.store, s.sched, bus, log.With(logx.String("comp", "relay.sweep")))
	s.sweep.debounce = func() time.Duration {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.cfg.DebounceDelay
	}
	_ = s.sweep.Apply(cfg.GroupTTL, cfg.SweepSchedule)
	return s
}

// Start begins accepting messages and runs the TTL sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.sweep.Start(); err != nil {
		return err
	}
	s.sched.Resume()
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.running = true
	s.log.Info("relay started",
		logx.Int64("destination", s.cfg.Destination.ChatID),
		logx.Duration("debounce", s.cfg.DebounceDelay),
		logx.Duration("ttl", s.cfg.GroupTTL),
	)
	return nil
}

// Stop rejects new messages, cancels pending flushes and waits for in-flight
// dispatches until ctx is done, then cancels them. Groups still buffered are
// dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	sup := s.sup
	s.mu.Unlock()

	timers := s.sched.Stop()
	s.sweep.Stop()

	// Flushes already popped keep sending until ctx runs out.
	err := sup.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		s.log.Warn("relay stop deadline reached; aborting in-flight flushes", logx.Err(err))
	}
	sup.Cancel()

	dropped := s.store.SweepExpired(time.Now(), -1)
	items := 0
	for _, b := range dropped {
		items += len(b.Items)
	}
	if len(dropped) > 0 {
		s.log.Warn("relay stopped with buffered groups; dropping",
			logx.Int("groups", len(dropped)),
			logx.Int("items", items),
			logx.Int("timers", timers),
		)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Apply hot-swaps timings, limits and destination. Groups already buffered
// keep their timers; the new debounce applies from their next arrival.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := ValidateSchedule(cfg.SweepSchedule); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.classifier = NewClassifier(cfg.MaxItemSize, cfg.PhotoExtensions, cfg.VideoExtensions)
	s.mu.Unlock()

	s.disp.Apply(cfg)
	return s.sweep.Apply(cfg.GroupTTL, cfg.SweepSchedule)
}

// Handle classifies msg and buffers it. Rejected items are answered right away
// and reported with the classification error; accepted items return nil.
func (s *Service) Handle(ctx context.Context, msg *kit.Message) error {
	s.mu.RLock()
	running, cfg, cl := s.running, s.cfg, s.classifier
	s.mu.RUnlock()
	if !running {
		return ErrStopped
	}

	item, err := cl.Classify(msg, time.Now())
	if err != nil {
		s.reject(ctx, msg, err)
		return err
	}

	standalone := msg.AlbumID == ""
	key := ResolveKey(msg.ChatID, msg.AlbumID, msg.ID)
	n := s.store.AppendOrCreate(key, item, standalone)
	s.accepted.Add(1)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBuffered, Data: BufferedEvent{
		Key:      key,
		Kind:     item.Kind.String(),
		ChatID:   msg.ChatID,
		SenderID: msg.FromID,
		Items:    n,
	}})
	s.log.Debug("item buffered",
		logx.String("key", key),
		logx.String("kind", item.Kind.String()),
		logx.Int("items", n),
	)

	if standalone {
		// Nothing can join a standalone key; skip the quiet period.
		s.flushAsync(key)
		return nil
	}
	if !s.sched.Reschedule(key, cfg.DebounceDelay) {
		if b, ok := s.store.PopIfPresent(key); ok {
			s.log.Warn("relay stopping; dropping group", logx.String("key", key), logx.Int("items", len(b.Items)))
		}
		return ErrStopped
	}
	return nil
}

func (s *Service) flushAsync(key string) {
	s.mu.RLock()
	sup, running := s.sup, s.running
	s.mu.RUnlock()
	if !running || sup == nil {
		return
	}
	sup.Go0("relay.flush", func(ctx context.Context) {
		out := s.disp.Flush(ctx, key)
		switch out.Status {
		case StatusSuccess:
			s.succeeded.Add(1)
		case StatusPartial:
			s.partial.Add(1)
		case StatusFailed:
			s.failed.Add(1)
		}
	})
}

func (s *Service) reject(ctx context.Context, msg *kit.Message, err error) {
	s.rejected.Add(1)
	if msg == nil {
		return
	}
	s.log.Info("item rejected",
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("sender_id", msg.FromID),
		logx.Err(err),
	)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRejected, Data: RejectedEvent{
		ChatID:   msg.ChatID,
		SenderID: msg.FromID,
		Sender:   Sender{ID: msg.FromID, Name: msg.FromName, Username: msg.FromUsername}.DisplayName(),
		Reason:   err.Error(),
	}})
	if s.acks == nil {
		return
	}
	n := kit.Notification{
		Channel: "telegram",
		Target:  kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		Text:    RejectionText(err),
		Options: &kit.SendOptions{ReplyTo: msg.ID},
	}
	if nerr := s.acks.Notify(ctx, n); nerr != nil {
		s.log.Warn("rejection reply not queued", logx.Err(nerr))
	}
}

// RejectionText is the user-facing explanation for a classification error.
func RejectionText(err error) string {
	var over *OversizedError
	switch {
	case errors.As(err, &over):
		return fmt.Sprintf("❌ File too large: %s, the limit is %s.", humanBytes(over.Size), humanBytes(over.Limit))
	case errors.Is(err, ErrUnsupportedFormat):
		return "❌ Unsupported file format. Send photos or videos, or files with a photo/video extension."
	default:
		return UnsupportedHint
	}
}

// Stats reports buffered groups and dispatch counters.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	sup := s.sup
	s.mu.RUnlock()

	groups := s.store.Snapshot()
	st := Stats{
		Groups:    len(groups),
		Timers:    s.sched.Pending(),
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Succeeded: s.succeeded.Load(),
		Partial:   s.partial.Load(),
		Failed:    s.failed.Load(),
		Swept:     s.sweep.Swept(),
		Workers:   sup.Counters(),
	}
	if len(groups) > 0 {
		st.Oldest = groups[0].CreatedAt
	}
	return st
}
