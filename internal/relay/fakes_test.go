package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	kit "albumrelay/internal/transport"
)

type sentCall struct {
	album bool
	to    kit.ChatTarget
	items []kit.OutboundMedia
}

// fakeSender records sends. Errors are consumed in order, one per call; a nil
// entry (or an exhausted script) means success.
type fakeSender struct {
	mu     sync.Mutex
	calls  []sentCall
	script []error
}

func (f *fakeSender) next() error {
	if len(f.script) == 0 {
		return nil
	}
	err := f.script[0]
	f.script = f.script[1:]
	return err
}

func (f *fakeSender) SendMedia(_ context.Context, to kit.ChatTarget, m kit.OutboundMedia) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{to: to, items: []kit.OutboundMedia{m}})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.calls)}, f.next()
}

func (f *fakeSender) SendAlbum(_ context.Context, to kit.ChatTarget, items []kit.OutboundMedia) ([]kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]kit.OutboundMedia(nil), items...)
	f.calls = append(f.calls, sentCall{album: true, to: to, items: cp})
	if err := f.next(); err != nil {
		return nil, err
	}
	refs := make([]kit.MessageRef, len(items))
	for i := range refs {
		refs[i] = kit.MessageRef{ChatID: to.ChatID, MessageID: i + 1}
	}
	return refs, nil
}

func (f *fakeSender) Calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type fakeAcks struct {
	mu  sync.Mutex
	got []kit.Notification
}

func (f *fakeAcks) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return nil
}

func (f *fakeAcks) All() []kit.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.Notification(nil), f.got...)
}

func photoItem(i int) MediaItem {
	return MediaItem{
		Kind:      KindPhoto,
		FileID:    fmt.Sprintf("photo-%d", i),
		Sender:    Sender{ID: 7, Name: "Ann"},
		ArrivedAt: time.Now(),
		Origin:    kit.MessageRef{ChatID: 100, MessageID: 1000 + i},
	}
}

func docItem(i int) MediaItem {
	it := photoItem(i)
	it.Kind = KindDocumentPhoto
	it.FileID = fmt.Sprintf("doc-%d", i)
	return it
}

func photoMsg(id int, album string) *kit.Message {
	return &kit.Message{
		ID:       id,
		ChatID:   100,
		FromID:   7,
		FromName: "Ann",
		AlbumID:  album,
		Media:    &kit.Attachment{Kind: kit.AttachPhoto, FileID: fmt.Sprintf("photo-%d", id), Size: 1 << 20},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fileIDs(items []kit.OutboundMedia) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.FileID
	}
	return out
}
