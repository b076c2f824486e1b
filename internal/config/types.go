package config

type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Relay    RelayConfig    `json:"relay" yaml:"relay"`

	Notifier *NotifierConfig `json:"notifier,omitempty" yaml:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty" yaml:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token" yaml:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids" yaml:"owner_user_ids"`
	GroupLog     string  `json:"group_log" yaml:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout" yaml:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level" yaml:"level"`
	Console  bool            `json:"console" yaml:"console"`
	File     LoggingFile     `json:"file" yaml:"file"`
	Telegram LoggingTelegram `json:"telegram" yaml:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ThreadID   int    `json:"thread_id" yaml:"thread_id"`
	MinLevel   string `json:"min_level" yaml:"min_level"`
	RatePerSec int    `json:"rate_per_sec" yaml:"rate_per_sec"`
}

// RelayConfig controls album buffering and forwarding.
//
// Durations are Go duration strings, sizes accept units ("50MiB", "20 MB").
//
// Defaults (when fields are omitted/zero):
//   - debounce_delay: "5s"
//   - group_ttl: "120s"
//   - sweep_schedule: "@every 30s"
//   - max_item_size: "50MiB"
//   - rate_limit_retries: 3 (negative disables retries)
//   - send_rate_per_sec: 2 (negative disables pacing)
//   - max_concurrent_flushes: 4
type RelayConfig struct {
	// DestinationChatID falls back to $CHAT_ID when zero.
	DestinationChatID   int64 `json:"destination_chat_id" yaml:"destination_chat_id"`
	DestinationThreadID int   `json:"destination_thread_id,omitempty" yaml:"destination_thread_id,omitempty"`

	DebounceDelay string `json:"debounce_delay,omitempty" yaml:"debounce_delay,omitempty"`
	GroupTTL      string `json:"group_ttl,omitempty" yaml:"group_ttl,omitempty"`
	SweepSchedule string `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`
	MaxItemSize   string `json:"max_item_size,omitempty" yaml:"max_item_size,omitempty"`

	RateLimitRetries     int `json:"rate_limit_retries,omitempty" yaml:"rate_limit_retries,omitempty"`
	SendRatePerSec       int `json:"send_rate_per_sec,omitempty" yaml:"send_rate_per_sec,omitempty"`
	MaxConcurrentFlushes int `json:"max_concurrent_flushes,omitempty" yaml:"max_concurrent_flushes,omitempty"`

	PhotoExtensions []string `json:"photo_extensions,omitempty" yaml:"photo_extensions,omitempty"`
	VideoExtensions []string `json:"video_extensions,omitempty" yaml:"video_extensions,omitempty"`
}

// NotifierConfig controls the async reply pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier runs with enabled=true and
// its built-in defaults; replies are the bot's only feedback to users.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Workers         int    `json:"workers" yaml:"workers"`
	QueueSize       int    `json:"queue_size" yaml:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec" yaml:"rate_per_sec"`
	RetryMax        int    `json:"retry_max" yaml:"retry_max"`
	RetryBase       string `json:"retry_base" yaml:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay" yaml:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window" yaml:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries" yaml:"dedup_max_entries"`
}

// StorageConfig controls the optional dispatch audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./albumrelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path" yaml:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
