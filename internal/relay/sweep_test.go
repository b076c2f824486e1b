package relay

import (
	"testing"
	"time"

	"albumrelay/internal/eventbus"
	logx "albumrelay/pkg/logx"
)

func TestSweepDisposesStaleGroupsWithoutSending(t *testing.T) {
	t.Parallel()
	store := NewStore()
	var fl fireLog
	sched := NewScheduler(fl.fire)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	sw := NewSweeper(store, sched, bus, logx.Nop())
	now := time.Now()
	sw.now = func() time.Time { return now }
	if err := sw.Apply(time.Minute, "@every 1h"); err != nil {
		t.Fatal(err)
	}

	stale := photoItem(0)
	stale.ArrivedAt = now.Add(-2 * time.Minute)
	store.AppendOrCreate("stale", stale, false)
	sched.Reschedule("stale", time.Hour)
	store.AppendOrCreate("live", photoItem(1), false)

	if n := sw.Sweep(); n != 1 {
		t.Fatalf("swept %d groups, want 1", n)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d", store.Len())
	}
	if sched.Pending() != 0 {
		t.Fatal("swept group kept its timer")
	}
	if sw.Swept() != 1 {
		t.Fatalf("Swept = %d", sw.Swept())
	}
	select {
	case ev := <-ch:
		se, ok := ev.Data.(SweepEvent)
		if ev.Type != eventbus.TypeSwept || !ok || se.Key != "stale" || se.Items != 1 || se.ChatID != 100 {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestSweepRearmsGroupOpenedAfterPop(t *testing.T) {
	t.Parallel()
	store := NewStore()
	var fl fireLog
	sched := NewScheduler(fl.fire)
	sw := NewSweeper(store, sched, nil, logx.Nop())
	sw.debounce = func() time.Duration { return 20 * time.Millisecond }
	now := time.Now()
	sw.now = func() time.Time { return now }
	if err := sw.Apply(time.Minute, "@every 1h"); err != nil {
		t.Fatal(err)
	}

	stale := photoItem(0)
	stale.ArrivedAt = now.Add(-2 * time.Minute)
	store.AppendOrCreate("alb", stale, false)
	sched.Reschedule("alb", time.Hour)

	// A late part lands between the pop and the timer cancel.
	sw.expired = func(key string) {
		store.AppendOrCreate(key, photoItem(1), false)
		sched.Reschedule(key, time.Hour)
	}
	if n := sw.Sweep(); n != 1 {
		t.Fatalf("swept %d groups, want 1", n)
	}
	if !store.Has("alb") || sched.Pending() != 1 {
		t.Fatalf("fresh group lost its timer: has=%v pending=%d", store.Has("alb"), sched.Pending())
	}
	waitFor(t, "re-armed flush", func() bool { return fl.count() == 1 })
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	t.Parallel()
	store := NewStore()
	sw := NewSweeper(store, nil, nil, logx.Nop())
	if err := sw.Apply(time.Millisecond, "@every 1s"); err != nil {
		t.Fatal(err)
	}
	it := photoItem(0)
	it.ArrivedAt = time.Now().Add(-time.Second)
	store.AppendOrCreate("k", it, false)

	if err := sw.Start(); err != nil {
		t.Fatal(err)
	}
	defer sw.Stop()
	waitFor(t, "scheduled sweep", func() bool { return store.Len() == 0 })
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"@every 30s", "*/10 * * * * *", "0 * * * *"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Fatalf("%q: %v", ok, err)
		}
	}
	if err := ValidateSchedule("every thirty"); err == nil {
		t.Fatal("expected error")
	}
}
