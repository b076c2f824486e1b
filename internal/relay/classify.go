package relay

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	kit "albumrelay/internal/transport"
)

var (
	ErrNoMedia           = errors.New("message carries no photo, video or file")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// OversizedError rejects an item above the configured size limit.
type OversizedError struct {
	Size  int64
	Limit int64
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("file too large: %s (max %s)", humanBytes(e.Size), humanBytes(e.Limit))
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Classifier turns inbound messages into MediaItems. It is immutable and
// safe for concurrent use; replace it to change limits.
type Classifier struct {
	maxSize  int64
	photoExt map[string]struct{}
	videoExt map[string]struct{}
}

func NewClassifier(maxSize int64, photoExt, videoExt []string) *Classifier {
	return &Classifier{
		maxSize:  maxSize,
		photoExt: extSet(photoExt),
		videoExt: extSet(videoExt),
	}
}

func extSet(exts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			m[e] = struct{}{}
		}
	}
	return m
}

// Classify derives a MediaItem from m. On rejection the returned item has
// KindRejected and the error is ErrNoMedia, ErrUnsupportedFormat or *OversizedError.
func (c *Classifier) Classify(m *kit.Message, now time.Time) (MediaItem, error) {
	if m == nil || m.Media == nil || strings.TrimSpace(m.Media.FileID) == "" {
		return MediaItem{}, ErrNoMedia
	}
	att := m.Media

	item := MediaItem{
		FileID:    att.FileID,
		Caption:   m.Caption,
		Size:      att.Size,
		ArrivedAt: now,
		Sender:    Sender{ID: m.FromID, Name: m.FromName, Username: m.FromUsername},
		Origin:    m.Ref(),
	}

	switch att.Kind {
	case kit.AttachPhoto:
		item.Kind = KindPhoto
	case kit.AttachVideo:
		item.Kind = KindVideo
	case kit.AttachDocument:
		item.Kind = c.documentKind(att.FileName)
		if item.Kind == KindRejected {
			return item, fmt.Errorf("%w: %q", ErrUnsupportedFormat, att.FileName)
		}
	default:
		return item, ErrNoMedia
	}

	if c.maxSize > 0 && att.Size > c.maxSize {
		item.Kind = KindRejected
		return item, &OversizedError{Size: att.Size, Limit: c.maxSize}
	}
	return item, nil
}

func (c *Classifier) documentKind(name string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
	if ext == "" {
		return KindRejected
	}
	if _, ok := c.photoExt[ext]; ok {
		return KindDocumentPhoto
	}
	if _, ok := c.videoExt[ext]; ok {
		return KindDocumentVideo
	}
	return KindRejected
}
