package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestParseYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: info
  console: true
relay:
  destination_chat_id: -1001
  debounce_delay: 3s
  max_item_size: 20MiB
  photo_extensions: [jpg, png]
storage:
  driver: sqlite
  path: ./relay.db
`)
	m := NewConfigManager(p)
	m.getenv = noEnv
	cfg, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Relay.DestinationChatID != -1001 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Relay.PhotoExtensions) != 2 {
		t.Fatalf("photo extensions = %v", cfg.Relay.PhotoExtensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"x"},"relay":{"debounce":"5s"}}`)
	m := NewConfigManager(p)
	m.getenv = noEnv
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "debounce") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"x"}}{"logging":{}}`)
	m := NewConfigManager(p)
	m.getenv = noEnv
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseYAMLIsStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, body, want string
	}{
		{"unknown field", "relay:\n  debounce: 5s\n", "debounce"},
		{"second document", "relay:\n  debounce_delay: 5s\n---\nrelay: {}\n", "trailing data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, "config.yml", tc.body))
			m.getenv = noEnv
			if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestWatchBackoffIsBounded(t *testing.T) {
	t.Parallel()
	var b watchBackoff
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		wait := b.next()
		if wait < watchBackoffBase || wait > watchBackoffMax+watchBackoffMax/2 {
			t.Fatalf("step %d: wait %v out of range", i, wait)
		}
		prev = wait
	}
	if prev < watchBackoffMax {
		t.Fatalf("backoff never reached the cap: %v", prev)
	}
	b.reset()
	if wait := b.next(); wait > watchBackoffBase+watchBackoffBase/2 {
		t.Fatalf("after reset wait = %v", wait)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":""},"relay":{}}`)
	env := map[string]string{EnvToken: "999:zzz", EnvDestination: "-100500"}
	m := NewConfigManager(p)
	m.getenv = func(k string) string { return env[k] }
	cfg, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "999:zzz" || cfg.Relay.DestinationChatID != -100500 {
		t.Fatalf("cfg = %+v", cfg)
	}

	env[EnvDestination] = "not-a-number"
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for bad CHAT_ID")
	}
}

func TestFileValuesWinOverEnv(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"file"},"relay":{"destination_chat_id":7}}`)
	m := NewConfigManager(p)
	m.getenv = func(string) string { return "-1" }
	cfg, err := m.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "file" || cfg.Relay.DestinationChatID != 7 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Relay:   RelayConfig{DebounceDelay: "soon", MaxItemSize: "big"},
		Storage: &StorageConfig{Driver: "postgres"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"telegram.token", "destination_chat_id", "relay.debounce_delay", "relay.max_item_size", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestParseSizeField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"50MiB", 50 << 20},
		{"1 KiB", 1024},
		{"1048576", 1 << 20},
		{"20MB", 20_000_000},
	}
	for _, tt := range tests {
		got, err := ParseSizeField("x", tt.raw)
		if err != nil || got != tt.want {
			t.Fatalf("%q: got %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
	if _, err := ParseSizeField("x", "lots"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Relay: RelayConfig{DebounceDelay: "5s"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Relay: RelayConfig{DebounceDelay: "2s"}, Storage: &StorageConfig{Driver: "file", Path: "x"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "relay,storage" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	// An omitted notifier section equals the explicit defaults.
	def := DefaultNotifier()
	if changed, _ := SummarizeConfigChange(&Config{}, &Config{Notifier: &def}); len(changed) != 0 {
		t.Fatalf("changed = %v", changed)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"a"},"relay":{"destination_chat_id":1}}`)
	m := NewConfigManager(p)
	m.getenv = noEnv
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return cfg.Validate() })
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(p, []byte(`{"telegram":{"token":"a"},"relay":{"destination_chat_id":2}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Relay.DestinationChatID != 2 {
			t.Fatalf("published %+v", cfg.Relay)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
	if got := m.Get().Relay.DestinationChatID; got != 2 {
		t.Fatalf("committed destination = %d", got)
	}
}
