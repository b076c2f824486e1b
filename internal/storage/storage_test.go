package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "albumrelay/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("st=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func testStore(t *testing.T, driver string) {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, "audit.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := st.AppendDispatch(ctx, DispatchRecord{
			Event:  EventFlushed,
			Key:    fmt.Sprintf("100:g:%d", i),
			ChatID: 100,
			Status: "success",
			Items:  i + 1,
			Sent:   i + 1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := st.AppendDispatch(ctx, DispatchRecord{Event: EventSwept, Key: "100:g:old", Items: 2}); err != nil {
		t.Fatal(err)
	}

	got, err := st.RecentDispatches(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].Event != EventSwept || got[1].Key != "100:g:4" || got[2].Key != "100:g:3" {
		t.Fatalf("not newest first: %+v", got)
	}
	if got[0].ID == "" || got[0].At.IsZero() {
		t.Fatalf("generated fields missing: %+v", got[0])
	}

	all, err := st.RecentDispatches(ctx, 100)
	if err != nil || len(all) != 6 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
}

func TestFileStore(t *testing.T)   { t.Parallel(); testStore(t, "file") }
func TestSQLiteStore(t *testing.T) { t.Parallel(); testStore(t, "sqlite") }

func TestFileStoreSkipsTornLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "relay")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.AppendDispatch(context.Background(), DispatchRecord{Event: EventRejected}); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "relay.dispatch.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"id":"tor`)
	_ = f.Close()

	got, err := st.RecentDispatches(context.Background(), 10)
	if err != nil || len(got) != 1 || got[0].Event != EventRejected {
		t.Fatalf("got %+v, %v", got, err)
	}
}
