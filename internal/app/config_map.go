package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"albumrelay/internal/config"
	"albumrelay/internal/notifier"
	"albumrelay/internal/relay"
	"albumrelay/internal/storage"
	kit "albumrelay/internal/transport"
	logx "albumrelay/pkg/logx"
)

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	r := cfg.Relay
	var (
		out = relay.Config{
			Destination:          kit.ChatTarget{ChatID: r.DestinationChatID, ThreadID: r.DestinationThreadID},
			SweepSchedule:        strings.TrimSpace(r.SweepSchedule),
			RateLimitRetries:     r.RateLimitRetries,
			SendRatePerSec:       r.SendRatePerSec,
			MaxConcurrentFlushes: r.MaxConcurrentFlushes,
			PhotoExtensions:      r.PhotoExtensions,
			VideoExtensions:      r.VideoExtensions,
		}
		err error
	)
	if out.DebounceDelay, err = config.ParseDurationField("relay.debounce_delay", r.DebounceDelay); err != nil {
		return relay.Config{}, err
	}
	if out.GroupTTL, err = config.ParseDurationField("relay.group_ttl", r.GroupTTL); err != nil {
		return relay.Config{}, err
	}
	if out.MaxItemSize, err = config.ParseSizeField("relay.max_item_size", r.MaxItemSize); err != nil {
		return relay.Config{}, err
	}
	if out.SweepSchedule != "" {
		if err := relay.ValidateSchedule(out.SweepSchedule); err != nil {
			return relay.Config{}, fmt.Errorf("relay.sweep_schedule: %w", err)
		}
	}
	return out, nil
}

// mapNotifierConfig parses the notifier section. An omitted section means
// enabled with built-in defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := config.DefaultNotifier()
	if cfg != nil && cfg.Notifier != nil {
		n = *cfg.Notifier
	}
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
	}

	var err error
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, time.Minute); err != nil {
		return notifier.Config{}, err
	}

	switch {
	case out.Workers < 0:
		return notifier.Config{}, errors.New("notifier.workers must be >= 0")
	case out.QueueSize < 0:
		return notifier.Config{}, errors.New("notifier.queue_size must be >= 0")
	case out.RatePerSec < 0:
		return notifier.Config{}, errors.New("notifier.rate_per_sec must be >= 0")
	case out.RetryMax < 0:
		return notifier.Config{}, errors.New("notifier.retry_max must be >= 0")
	case out.DedupMaxEntries < 0:
		return notifier.Config{}, errors.New("notifier.dedup_max_entries must be >= 0")
	}
	return out, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./albumrelay"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log; ok is false when unset or invalid.
func logTarget(cfg *config.Config) (int64, bool) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// validate is the transactional check run before a config is committed, both
// at startup and on hot reload.
func validate(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := mapRelayConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		if _, ok := logTarget(cfg); !ok {
			return fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
		}
	}
	return nil
}

// Check loads and validates the config at path without contacting Telegram.
func Check(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Parse()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
