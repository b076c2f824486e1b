package relay

import (
	"time"

	kit "albumrelay/internal/transport"
)

const (
	DefaultDebounceDelay        = 5 * time.Second
	DefaultGroupTTL             = 120 * time.Second
	DefaultSweepSchedule        = "@every 30s"
	DefaultMaxItemSize    int64 = 50 << 20
	DefaultRateLimitRetries     = 3
	DefaultSendRatePerSec       = 2
	DefaultMaxConcurrent        = 4
)

var (
	DefaultPhotoExtensions = []string{"jpg", "jpeg", "png", "webp", "heic", "heif", "bmp", "gif", "tif", "tiff"}
	DefaultVideoExtensions = []string{"mp4", "mov", "avi", "mkv", "webm", "m4v", "3gp", "mpeg", "mpg"}
)

// Config controls buffering and dispatch. Zero values fall back to defaults.
type Config struct {
	Destination kit.ChatTarget

	DebounceDelay time.Duration
	GroupTTL      time.Duration
	SweepSchedule string
	MaxItemSize   int64

	// RateLimitRetries is the number of retries of one chunk after a rate-limit
	// signal (so RateLimitRetries+1 attempts in total).
	RateLimitRetries int
	// SendRatePerSec paces outbound sends. Negative disables pacing.
	SendRatePerSec       int
	MaxConcurrentFlushes int

	PhotoExtensions []string
	VideoExtensions []string
}

func (c Config) withDefaults() Config {
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.GroupTTL <= 0 {
		c.GroupTTL = DefaultGroupTTL
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = DefaultSweepSchedule
	}
	if c.MaxItemSize <= 0 {
		c.MaxItemSize = DefaultMaxItemSize
	}
	if c.RateLimitRetries < 0 {
		c.RateLimitRetries = 0
	} else if c.RateLimitRetries == 0 {
		c.RateLimitRetries = DefaultRateLimitRetries
	}
	if c.SendRatePerSec == 0 {
		c.SendRatePerSec = DefaultSendRatePerSec
	}
	if c.MaxConcurrentFlushes <= 0 {
		c.MaxConcurrentFlushes = DefaultMaxConcurrent
	}
	if len(c.PhotoExtensions) == 0 {
		c.PhotoExtensions = DefaultPhotoExtensions
	}
	if len(c.VideoExtensions) == 0 {
		c.VideoExtensions = DefaultVideoExtensions
	}
	return c
}
