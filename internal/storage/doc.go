// Package storage keeps an optional audit trail of relay outcomes: every
// dispatched, swept and rejected group becomes one DispatchRecord.
//
// Two backends exist: "file" (JSON Lines, no dependencies) and "sqlite"
// (modernc.org/sqlite, pure Go). Buffered media itself is never persisted.
package storage
