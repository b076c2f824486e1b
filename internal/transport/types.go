package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateCommand UpdateKind = "command"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// AttachmentKind is the structural media type reported by the platform.
type AttachmentKind string

const (
	AttachPhoto    AttachmentKind = "photo"
	AttachVideo    AttachmentKind = "video"
	AttachDocument AttachmentKind = "document"
)

// Attachment describes a media payload that can be re-sent by FileID
// without downloading it.
type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string // documents and videos only
	MIME     string
	Size     int64 // 0 if the platform did not report it
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)

	FromID       int64
	FromUsername string
	FromName     string // "First Last"

	Text    string
	Caption string

	// AlbumID is the provider media group id; empty for standalone messages.
	AlbumID string
	Media   *Attachment

	Date    time.Time
	IsGroup bool
}

// Ref returns a reference to the message itself (used for replies).
func (m *Message) Ref() MessageRef {
	if m == nil {
		return MessageRef{}
	}
	return MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo is the message id to reply to in the target chat (0 = none).
	ReplyTo int
}

// MediaKind is the outbound media type used for sending.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// OutboundMedia is one element of a single or batched media send.
type OutboundMedia struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

type Notification struct {
	Channel  string // "telegram" now
	Priority int    // 0 low.. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

// MediaSender is the downstream sink used by the dispatch engine.
//
// Errors should be (or wrap) *SendError so callers can tell rate limiting
// apart from permanent failures.
type MediaSender interface {
	SendMedia(ctx context.Context, to ChatTarget, m OutboundMedia) (MessageRef, error)
	// SendAlbum sends up to MaxAlbumSize items as one batch, in order.
	SendAlbum(ctx context.Context, to ChatTarget, items []OutboundMedia) ([]MessageRef, error)
}

// TextSender sends plain text messages (acknowledgements, logs).
type TextSender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	MediaSender
	TextSender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// MaxAlbumSize is the provider limit for one batched media send.
const MaxAlbumSize = 10

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
