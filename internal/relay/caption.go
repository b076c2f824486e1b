package relay

import (
	"strings"

	kit "albumrelay/internal/transport"
)

// captionLimit is Telegram's media caption limit (characters).
const captionLimit = 1024

func userCaption(text string, s Sender) string {
	return clampCaption(strings.TrimSpace(text) + " — from " + s.DisplayName())
}

func defaultCaption(s Sender) string {
	return clampCaption("media from " + s.DisplayName())
}

func clampCaption(s string) string {
	rs := []rune(s)
	if len(rs) <= captionLimit {
		return s
	}
	return string(rs[:captionLimit-1]) + "…"
}

// singleCaption is the caption for an item sent on its own.
func singleCaption(it MediaItem) string {
	if strings.TrimSpace(it.Caption) != "" {
		return userCaption(it.Caption, it.Sender)
	}
	return defaultCaption(it.Sender)
}

// captionChunk builds the outbound batch for one chunk.
//
// Items with a user caption always keep it. Otherwise only one position gets
// the default caption: index 0 for photo/video items, the last index for
// documents (clients render document batches bottom-up).
func captionChunk(chunk []MediaItem) []kit.OutboundMedia {
	out := make([]kit.OutboundMedia, len(chunk))
	last := len(chunk) - 1
	for i, it := range chunk {
		var caption string
		switch {
		case strings.TrimSpace(it.Caption) != "":
			caption = userCaption(it.Caption, it.Sender)
		case !it.Kind.IsDocument() && i == 0:
			caption = defaultCaption(it.Sender)
		case it.Kind.IsDocument() && i == last:
			caption = defaultCaption(it.Sender)
		}
		out[i] = kit.OutboundMedia{Kind: it.Kind.outbound(), FileID: it.FileID, Caption: caption}
	}
	return out
}

// planChunks splits items into batches of at most size, preserving order.
//
// Telegram refuses albums mixing documents with photos/videos, so a change of
// family also starts a new chunk. Homogeneous groups chunk as plain
// size-bounded slices.
func planChunks(items []MediaItem, size int) [][]MediaItem {
	if size <= 0 {
		size = kit.MaxAlbumSize
	}
	var out [][]MediaItem
	start := 0
	for i := 1; i <= len(items); i++ {
		if i < len(items) && items[i].Kind.IsDocument() == items[start].Kind.IsDocument() && i-start < size {
			continue
		}
		out = append(out, items[start:i])
		start = i
	}
	return out
}
