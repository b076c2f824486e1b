package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment fallbacks for deployments that keep secrets out of the file.
const (
	EnvToken       = "BOT_TOKEN"
	EnvDestination = "CHAT_ID"
)

// applyEnv fills empty secrets and the destination from the environment.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = strings.TrimSpace(getenv(EnvToken))
	}
	if cfg.Relay.DestinationChatID == 0 {
		if raw := strings.TrimSpace(getenv(EnvDestination)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: invalid chat id %q: %w", EnvDestination, raw, err)
			}
			cfg.Relay.DestinationChatID = id
		}
	}
	return nil
}

// Validate checks fields that can be checked without touching the network.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set $%s)", EnvToken))
	}
	if c.Relay.DestinationChatID == 0 {
		errs = append(errs, fmt.Errorf("relay.destination_chat_id is required (or set $%s)", EnvDestination))
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"relay.debounce_delay", c.Relay.DebounceDelay},
		{"relay.group_ttl", c.Relay.GroupTTL},
	}
	if c.Notifier != nil {
		durations = append(durations,
			struct{ path, raw string }{"notifier.retry_base", c.Notifier.RetryBase},
			struct{ path, raw string }{"notifier.retry_max_delay", c.Notifier.RetryMaxDelay},
			struct{ path, raw string }{"notifier.dedup_window", c.Notifier.DedupWindow},
		)
	}
	if c.Storage != nil {
		durations = append(durations, struct{ path, raw string }{"storage.busy_timeout", c.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := ParseSizeField("relay.max_item_size", c.Relay.MaxItemSize); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.MaxConcurrentFlushes < 0 {
		errs = append(errs, errors.New("relay.max_concurrent_flushes must be >= 0"))
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
	}
	return errors.Join(errs...)
}
