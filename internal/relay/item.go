package relay

import (
	"strconv"
	"strings"
	"time"

	kit "albumrelay/internal/transport"
)

// Kind is the normalized content kind of a buffered item.
type Kind int

const (
	KindRejected Kind = iota
	KindPhoto
	KindVideo
	KindDocumentPhoto
	KindDocumentVideo
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindDocumentPhoto:
		return "document_photo"
	case KindDocumentVideo:
		return "document_video"
	default:
		return "rejected"
	}
}

// IsDocument reports whether the item was uploaded as a generic file.
func (k Kind) IsDocument() bool { return k == KindDocumentPhoto || k == KindDocumentVideo }

// outbound maps the kind to the API call family used to re-send it.
func (k Kind) outbound() kit.MediaKind {
	switch k {
	case KindPhoto:
		return kit.MediaPhoto
	case KindVideo:
		return kit.MediaVideo
	default:
		return kit.MediaDocument
	}
}

// Sender identifies who uploaded an item. Used for captions and logs only.
type Sender struct {
	ID       int64
	Name     string
	Username string
}

// DisplayName returns the best human-readable name available.
func (s Sender) DisplayName() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	if u := strings.TrimSpace(s.Username); u != "" {
		return "@" + u
	}
	return strconv.FormatInt(s.ID, 10)
}

// MediaItem is one normalized inbound unit. It is immutable once created.
type MediaItem struct {
	Kind      Kind
	FileID    string
	Caption   string
	Sender    Sender
	Size      int64
	ArrivedAt time.Time

	// Origin is the message the item came from; acknowledgements reply to it.
	Origin kit.MessageRef
}
