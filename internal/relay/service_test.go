package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "albumrelay/internal/transport"
	logx "albumrelay/pkg/logx"
)

func newTestService(t *testing.T, sender *fakeSender, acks *fakeAcks) *Service {
	t.Helper()
	cfg := Config{
		Destination:    kit.ChatTarget{ChatID: -500},
		DebounceDelay:  80 * time.Millisecond,
		SendRatePerSec: -1,
	}
	s := New(cfg, sender, acks, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestServiceAlbumFlushesOnceInArrivalOrder(t *testing.T) {
	t.Parallel()
	sender, acks := &fakeSender{}, &fakeAcks{}
	s := newTestService(t, sender, acks)

	for id := 1; id <= 4; id++ {
		if err := s.Handle(context.Background(), photoMsg(id, "alb")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	waitFor(t, "album send", func() bool { return len(sender.Calls()) == 1 })
	time.Sleep(150 * time.Millisecond)

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("sent %d times", len(calls))
	}
	want := []string{"photo-1", "photo-2", "photo-3", "photo-4"}
	if got := fileIDs(calls[0].items); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v", got)
	}
	waitFor(t, "ack", func() bool { return len(acks.All()) == 1 })
	if a := acks.All()[0]; a.Text != "✅ Album (4 items) sent!" || a.Options.ReplyTo != 4 {
		t.Fatalf("ack = %+v", a)
	}
}

func TestServiceConcurrentAlbumsAreIndependent(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s := newTestService(t, sender, &fakeAcks{})

	var wg sync.WaitGroup
	for _, album := range []string{"a", "b", "c"} {
		for id := 1; id <= 3; id++ {
			wg.Add(1)
			go func(album string, id int) {
				defer wg.Done()
				_ = s.Handle(context.Background(), photoMsg(id, album))
			}(album, id)
		}
	}
	wg.Wait()
	waitFor(t, "three albums", func() bool { return len(sender.Calls()) == 3 })
	for _, c := range sender.Calls() {
		if len(c.items) != 3 {
			t.Fatalf("album with %d items", len(c.items))
		}
	}
	if st := s.Stats(); st.Accepted != 9 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestServiceStandaloneSkipsDebounce(t *testing.T) {
	t.Parallel()
	sender, acks := &fakeSender{}, &fakeAcks{}
	s := newTestService(t, sender, acks)

	// Same message id twice: the two uploads must not merge.
	_ = s.Handle(context.Background(), photoMsg(9, ""))
	_ = s.Handle(context.Background(), photoMsg(9, ""))
	waitFor(t, "two single sends", func() bool { return len(sender.Calls()) == 2 })
	for _, c := range sender.Calls() {
		if c.album {
			t.Fatal("standalone item sent as album")
		}
	}
	waitFor(t, "acks", func() bool { return len(acks.All()) == 2 })
	if got := acks.All()[0].Text; got != "✅ Photo sent!" {
		t.Fatalf("ack = %q", got)
	}
}

func TestServiceRejectsOversized(t *testing.T) {
	t.Parallel()
	sender, acks := &fakeSender{}, &fakeAcks{}
	s := newTestService(t, sender, acks)

	msg := photoMsg(3, "alb")
	msg.Media.Size = 80 << 20
	err := s.Handle(context.Background(), msg)
	var over *OversizedError
	if !errors.As(err, &over) {
		t.Fatalf("err = %v", err)
	}
	if s.store.Len() != 0 || s.sched.Pending() != 0 {
		t.Fatal("rejected item reached the store")
	}
	got := acks.All()
	if len(got) != 1 || !strings.Contains(got[0].Text, "80 MiB") || !strings.Contains(got[0].Text, "50 MiB") {
		t.Fatalf("acks = %+v", got)
	}
	if st := s.Stats(); st.Rejected != 1 || st.Accepted != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestServiceStopDropsBufferedGroups(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	cfg := Config{DebounceDelay: time.Hour, SendRatePerSec: -1}
	s := New(cfg, sender, nil, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Handle(context.Background(), photoMsg(1, "alb"))
	if st := s.Stats(); st.Groups != 1 || st.Timers != 1 {
		t.Fatalf("stats = %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if st := s.Stats(); st.Groups != 0 || st.Timers != 0 {
		t.Fatalf("stats after stop = %+v", st)
	}
	if err := s.Handle(context.Background(), photoMsg(2, "alb")); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Fatal("buffered group was dispatched on stop")
	}
}

// gatedSender holds the first album send until release is closed.
type gatedSender struct {
	fakeSender
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedSender() *gatedSender {
	return &gatedSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSender) SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.OutboundMedia) ([]kit.MessageRef, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeSender.SendAlbum(ctx, to, items)
}

func TestServiceStopLetsInFlightFlushFinish(t *testing.T) {
	t.Parallel()
	sender, acks := newGatedSender(), &fakeAcks{}
	cfg := Config{DebounceDelay: 100 * time.Millisecond, SendRatePerSec: -1}
	s := New(cfg, sender, acks, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for id := 1; id <= 23; id++ {
		if err := s.Handle(context.Background(), photoMsg(id, "big")); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-sender.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("flush never started")
	}

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopped <- s.Stop(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-stopped:
		t.Fatalf("Stop returned before the flush finished: %v", err)
	default:
	}
	close(sender.release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
	calls := sender.Calls()
	if len(calls) != 3 || len(calls[2].items) != 3 {
		t.Fatalf("sent %d chunks", len(calls))
	}
	if st := s.Stats(); st.Succeeded != 1 || st.Partial != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if got := acks.All(); len(got) != 1 || got[0].Text != "✅ Album (23 items) sent!" {
		t.Fatalf("acks = %+v", got)
	}
}

func TestServiceStopCancelsFlushAtDeadline(t *testing.T) {
	t.Parallel()
	sender := newGatedSender()
	defer close(sender.release)
	s := New(Config{DebounceDelay: 30 * time.Millisecond, SendRatePerSec: -1}, sender, nil, nil, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Handle(context.Background(), photoMsg(1, "alb"))
	_ = s.Handle(context.Background(), photoMsg(2, "alb"))
	<-sender.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceRestartAfterStop(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s := New(Config{DebounceDelay: 30 * time.Millisecond, SendRatePerSec: -1}, sender, nil, nil, logx.Nop())
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Stop(ctx) }()

	if err := s.Handle(ctx, photoMsg(1, "alb")); err != nil {
		t.Fatalf("album item after restart: %v", err)
	}
	waitFor(t, "album send after restart", func() bool { return len(sender.Calls()) == 1 })
}

func TestServiceApplyValidatesSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeSender{}, nil, nil, logx.Nop())
	if err := s.Apply(Config{SweepSchedule: "nope"}); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Apply(Config{MaxItemSize: 1 << 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Stop(context.Background()) }()
	msg := photoMsg(1, "")
	msg.Media.Size = 2 << 10
	var over *OversizedError
	if err := s.Handle(context.Background(), msg); !errors.As(err, &over) || over.Limit != 1<<10 {
		t.Fatalf("err = %v", err)
	}
}
