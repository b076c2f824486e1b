package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"albumrelay/internal/eventbus"
	kit "albumrelay/internal/transport"
	logx "albumrelay/pkg/logx"
)

// Acknowledger delivers user-visible replies (the notifier in production).
type Acknowledger interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Status int

const (
	StatusNone Status = iota // nothing to flush, already handled elsewhere
	StatusSuccess
	StatusPartial
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// Outcome is the terminal result of one Flush.
type Outcome struct {
	Key      string
	Status   Status
	Items    int
	Sent     int
	Chunks   int
	Attempts int
	Err      error
	Took     time.Duration

	Sender Sender
	Origin kit.MessageRef
	Kind   Kind // first item's kind
}

// FlushEvent is published on the bus after every non-empty flush.
type FlushEvent struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Sender   string `json:"sender"`
	Items    int    `json:"items"`
	Sent     int    `json:"sent"`
	Chunks   int    `json:"chunks"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	TookMS   int64  `json:"took_ms"`
}

// Dispatcher sends popped groups downstream.
//
// It is safe for concurrent use; flushes for different keys only share the
// pacing limiter and the concurrency semaphore.
type Dispatcher struct {
	store  *Store
	sender kit.MediaSender
	acks   Acknowledger
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	// sleep waits out a rate-limit delay; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(cfg Config, store *Store, sender kit.MediaSender, acks Acknowledger, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	d := &Dispatcher{
		store:  store,
		sender: sender,
		acks:   acks,
		bus:    bus,
		log:    log,
		sleep:  sleepCtx,
	}
	d.Apply(cfg)
	return d
}

// Apply swaps destination, retry and pacing settings. In-flight flushes keep
// the settings they started with.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.SendRatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRatePerSec)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sem == nil || d.cfg.MaxConcurrentFlushes != cfg.MaxConcurrentFlushes {
		d.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentFlushes))
	}
	if d.limiter == nil || d.cfg.SendRatePerSec != cfg.SendRatePerSec {
		d.limiter = lim
	}
	d.cfg = cfg
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter, *semaphore.Weighted) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.limiter, d.sem
}

// Flush pops the group at key and delivers it. A missing group (already
// flushed or swept) yields StatusNone. Errors never escape: they are logged,
// reported in the Outcome and acknowledged to the sender.
func (d *Dispatcher) Flush(ctx context.Context, key string) Outcome {
	batch, ok := d.store.PopIfPresent(key)
	if !ok || len(batch.Items) == 0 {
		d.log.Debug("flush: nothing to send", logx.String("key", key))
		return Outcome{Key: key, Status: StatusNone}
	}

	start := time.Now()
	cfg, lim, sem := d.snapshot()
	first, last := batch.Items[0], batch.Items[len(batch.Items)-1]
	out := Outcome{
		Key:    key,
		Items:  len(batch.Items),
		Sender: first.Sender,
		Origin: last.Origin,
		Kind:   first.Kind,
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("waiting for dispatch slot: %w", err)
		d.finish(ctx, batch, out, start)
		return out
	}
	defer sem.Release(1)

	if len(batch.Items) == 1 && batch.Standalone {
		it := batch.Items[0]
		m := kit.OutboundMedia{Kind: it.Kind.outbound(), FileID: it.FileID, Caption: singleCaption(it)}
		out.Chunks = 1
		attempts, err := d.sendWithRetry(ctx, cfg, lim, key, 0, func(c context.Context) error {
			_, err := d.sender.SendMedia(c, cfg.Destination, m)
			return err
		})
		out.Attempts = attempts
		if err != nil {
			out.Err = err
		} else {
			out.Sent = 1
		}
	} else {
		chunks := planChunks(batch.Items, kit.MaxAlbumSize)
		out.Chunks = len(chunks)
		for i, chunk := range chunks {
			media := captionChunk(chunk)
			attempts, err := d.sendWithRetry(ctx, cfg, lim, key, i, func(c context.Context) error {
				_, err := d.sender.SendAlbum(c, cfg.Destination, media)
				return err
			})
			out.Attempts += attempts
			if err != nil {
				out.Err = fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
				// Later chunks are abandoned: a failed chunk means the batch failed.
				break
			}
			out.Sent += len(chunk)
		}
	}

	switch {
	case out.Sent == out.Items:
		out.Status = StatusSuccess
	case out.Sent > 0:
		out.Status = StatusPartial
	default:
		out.Status = StatusFailed
	}
	d.finish(ctx, batch, out, start)
	return out
}

// sendWithRetry calls send until it succeeds, fails with anything other than a
// rate limit, or the rate-limit retries are exhausted. It returns the number of
// attempts made.
func (d *Dispatcher) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, key string, chunk int, send func(context.Context) error) (int, error) {
	maxAttempts := 1 + cfg.RateLimitRetries
	for attempt := 1; ; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return attempt - 1, err
		}
		err := send(ctx)
		if err == nil {
			return attempt, nil
		}

		kind, after := kit.Classify(err)
		if kind != kit.FailureRateLimited {
			return attempt, err
		}
		if attempt >= maxAttempts {
			return attempt, fmt.Errorf("rate limited after %d attempts: %w", attempt, err)
		}
		d.log.Warn("rate limited; retrying chunk",
			logx.String("key", key),
			logx.Int("chunk", chunk),
			logx.Int("attempt", attempt),
			logx.Duration("retry_after", after),
		)
		if err := d.sleep(ctx, after); err != nil {
			return attempt, err
		}
	}
}

func (d *Dispatcher) finish(ctx context.Context, batch Batch, out Outcome, start time.Time) {
	out.Took = time.Since(start)

	fields := []logx.Field{
		logx.String("key", out.Key),
		logx.String("status", out.Status.String()),
		logx.Int("items", out.Items),
		logx.Int("sent", out.Sent),
		logx.Int("chunks", out.Chunks),
		logx.Int("attempts", out.Attempts),
		logx.Int64("sender_id", out.Sender.ID),
		logx.String("sender", out.Sender.DisplayName()),
		logx.Duration("took", out.Took),
		logx.Duration("age", time.Since(batch.CreatedAt)),
	}
	switch out.Status {
	case StatusSuccess:
		d.log.Info("group dispatched", fields...)
	default:
		kind, _ := kit.Classify(out.Err)
		d.log.Error("group dispatch failed", append(fields, logx.String("failure", kind.String()), logx.Err(out.Err))...)
	}

	ev := FlushEvent{
		Key:      out.Key,
		Status:   out.Status.String(),
		ChatID:   out.Origin.ChatID,
		SenderID: out.Sender.ID,
		Sender:   out.Sender.DisplayName(),
		Items:    out.Items,
		Sent:     out.Sent,
		Chunks:   out.Chunks,
		Attempts: out.Attempts,
		TookMS:   out.Took.Milliseconds(),
	}
	if out.Err != nil {
		ev.Error = out.Err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeFlushed, Data: ev})

	d.acknowledge(ctx, batch, out)
}

func (d *Dispatcher) acknowledge(ctx context.Context, batch Batch, out Outcome) {
	if d.acks == nil || out.Status == StatusNone {
		return
	}
	single := len(batch.Items) == 1 && batch.Standalone
	n := kit.Notification{
		Channel: "telegram",
		Target:  kit.ChatTarget{ChatID: out.Origin.ChatID, ThreadID: out.Origin.ThreadID},
		Text:    ackText(out, single),
		Options: &kit.SendOptions{ReplyTo: out.Origin.MessageID},
	}
	// The flush context may already be canceled on shutdown; the ack is still worth queueing.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := d.acks.Notify(ctx, n); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn("acknowledgement not queued", logx.String("key", out.Key), logx.Err(err))
	}
}

func ackText(out Outcome, single bool) string {
	noun := "album"
	if single {
		noun = kindNoun(out.Kind)
	}
	switch out.Status {
	case StatusSuccess:
		if single {
			return fmt.Sprintf("✅ %s sent!", capitalize(noun))
		}
		return fmt.Sprintf("✅ Album (%d items) sent!", out.Items)
	case StatusPartial:
		return fmt.Sprintf("⚠️ Sent %d of %d items, the rest failed.", out.Sent, out.Items)
	default:
		return fmt.Sprintf("❌ Failed to send the %s.", noun)
	}
}

func kindNoun(k Kind) string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	default:
		return "file"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
