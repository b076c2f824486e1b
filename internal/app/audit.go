package app

import (
	"context"
	"sync/atomic"
	"time"

	"albumrelay/internal/eventbus"
	"albumrelay/internal/relay"
	"albumrelay/internal/storage"
	logx "albumrelay/pkg/logx"
)

// auditRecorder persists terminal relay outcomes published on the bus.
type auditRecorder struct {
	store storage.Store
	log   logx.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

func newAuditRecorder(store storage.Store, log logx.Logger) *auditRecorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &auditRecorder{store: store, log: log}
}

// run consumes events until ctx is done or the channel closes.
func (r *auditRecorder) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			rec, ok := recordFromEvent(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			err := r.store.AppendDispatch(wctx, rec)
			cancel()
			if err != nil {
				// The first failure is loud, the rest stay at debug level.
				if r.failed.Add(1) == 1 {
					r.log.Warn("audit write failed", logx.String("event", rec.Event), logx.Err(err))
				} else {
					r.log.Debug("audit write failed", logx.String("event", rec.Event), logx.Err(err))
				}
				continue
			}
			r.written.Add(1)
		}
	}
}

func recordFromEvent(e eventbus.Event) (storage.DispatchRecord, bool) {
	rec := storage.DispatchRecord{At: e.Time}
	switch ev := e.Data.(type) {
	case relay.FlushEvent:
		rec.Event = storage.EventFlushed
		rec.Key = ev.Key
		rec.ChatID = ev.ChatID
		rec.SenderID = ev.SenderID
		rec.Sender = ev.Sender
		rec.Status = ev.Status
		rec.Items = ev.Items
		rec.Sent = ev.Sent
		rec.Chunks = ev.Chunks
		rec.Attempts = ev.Attempts
		rec.Error = ev.Error
		rec.TookMS = ev.TookMS
	case relay.SweepEvent:
		rec.Event = storage.EventSwept
		rec.Key = ev.Key
		rec.ChatID = ev.ChatID
		rec.SenderID = ev.SenderID
		rec.Status = "dropped"
		rec.Items = ev.Items
		rec.TookMS = ev.Age.Milliseconds()
	case relay.RejectedEvent:
		rec.Event = storage.EventRejected
		rec.ChatID = ev.ChatID
		rec.SenderID = ev.SenderID
		rec.Sender = ev.Sender
		rec.Status = "rejected"
		rec.Items = 1
		rec.Error = ev.Reason
	default:
		return storage.DispatchRecord{}, false
	}
	return rec, true
}
