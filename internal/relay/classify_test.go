package relay

import (
	"errors"
	"testing"
	"time"

	kit "albumrelay/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	c := NewClassifier(50<<20, DefaultPhotoExtensions, DefaultVideoExtensions)
	tests := []struct {
		name string
		att  *kit.Attachment
		kind Kind
		err  error
	}{
		{name: "photo", att: &kit.Attachment{Kind: kit.AttachPhoto, FileID: "a"}, kind: KindPhoto},
		{name: "video", att: &kit.Attachment{Kind: kit.AttachVideo, FileID: "a", Size: 10 << 20}, kind: KindVideo},
		{name: "photo file", att: &kit.Attachment{Kind: kit.AttachDocument, FileID: "a", FileName: "IMG_01.JPG"}, kind: KindDocumentPhoto},
		{name: "video file", att: &kit.Attachment{Kind: kit.AttachDocument, FileID: "a", FileName: "clip.mov"}, kind: KindDocumentVideo},
		{name: "text file", att: &kit.Attachment{Kind: kit.AttachDocument, FileID: "a", FileName: "notes.txt"}, err: ErrUnsupportedFormat},
		{name: "no extension", att: &kit.Attachment{Kind: kit.AttachDocument, FileID: "a", FileName: "README"}, err: ErrUnsupportedFormat},
		{name: "no media", att: nil, err: ErrNoMedia},
		{name: "empty file id", att: &kit.Attachment{Kind: kit.AttachPhoto}, err: ErrNoMedia},
		{name: "unknown size accepted", att: &kit.Attachment{Kind: kit.AttachVideo, FileID: "a", Size: 0}, kind: KindVideo},
		{name: "exactly at limit", att: &kit.Attachment{Kind: kit.AttachVideo, FileID: "a", Size: 50 << 20}, kind: KindVideo},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg := &kit.Message{ID: 1, ChatID: 100, FromID: 7, Caption: "hi", Media: tt.att}
			item, err := c.Classify(msg, time.Now())
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if item.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", item.Kind, tt.kind)
			}
			if item.Caption != "hi" || item.Origin.MessageID != 1 || item.Sender.ID != 7 {
				t.Fatalf("item fields not carried over: %+v", item)
			}
		})
	}
}

func TestClassifyOversized(t *testing.T) {
	t.Parallel()
	c := NewClassifier(50<<20, nil, nil)
	msg := &kit.Message{Media: &kit.Attachment{Kind: kit.AttachVideo, FileID: "a", Size: 60 << 20}}
	item, err := c.Classify(msg, time.Now())
	var over *OversizedError
	if !errors.As(err, &over) {
		t.Fatalf("err = %v, want *OversizedError", err)
	}
	if item.Kind != KindRejected {
		t.Fatalf("kind = %v", item.Kind)
	}
	if got := err.Error(); got != "file too large: 60 MiB (max 50 MiB)" {
		t.Fatalf("Error() = %q", got)
	}
	if got := RejectionText(err); got != "❌ File too large: 60 MiB, the limit is 50 MiB." {
		t.Fatalf("RejectionText = %q", got)
	}
}
