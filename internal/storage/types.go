package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record event names.
const (
	EventFlushed  = "flushed"
	EventSwept    = "swept"
	EventRejected = "rejected"
)

// DispatchRecord is one terminal relay outcome.
// Keep it compact and schema-stable.
type DispatchRecord struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Event    string    `json:"event"`
	Key      string    `json:"key,omitempty"`
	ChatID   int64     `json:"chat_id"`
	SenderID int64     `json:"sender_id"`
	Sender   string    `json:"sender,omitempty"`
	Status   string    `json:"status,omitempty"`
	Items    int       `json:"items"`
	Sent     int       `json:"sent"`
	Chunks   int       `json:"chunks,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms,omitempty"`
}
