package relay

import (
	"strings"
	"testing"
)

func chunkSizes(chunks [][]MediaItem) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = len(c)
	}
	return out
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlanChunks(t *testing.T) {
	t.Parallel()
	mk := func(n int, f func(int) MediaItem) []MediaItem {
		out := make([]MediaItem, n)
		for i := range out {
			out[i] = f(i)
		}
		return out
	}
	tests := []struct {
		name  string
		items []MediaItem
		want  []int
	}{
		{name: "twenty three", items: mk(23, photoItem), want: []int{10, 10, 3}},
		{name: "exactly ten", items: mk(10, photoItem), want: []int{10}},
		{name: "one", items: mk(1, photoItem), want: []int{1}},
		{name: "empty", items: nil, want: []int{}},
		{name: "mixed families", items: append(mk(3, photoItem), mk(2, docItem)...), want: []int{3, 2}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			chunks := planChunks(tt.items, 10)
			if got := chunkSizes(chunks); !sameInts(got, tt.want) {
				t.Fatalf("chunks = %v, want %v", got, tt.want)
			}
			// Order is preserved across chunk boundaries.
			i := 0
			for _, c := range chunks {
				for _, it := range c {
					if it.FileID != tt.items[i].FileID {
						t.Fatalf("item %d out of order", i)
					}
					i++
				}
			}
		})
	}
}

func TestCaptionChunkVisualDefaultOnFirst(t *testing.T) {
	t.Parallel()
	items := []MediaItem{photoItem(0), photoItem(1), photoItem(2)}
	items[2].Caption = "sunset"
	out := captionChunk(items)
	if out[0].Caption != "media from Ann" {
		t.Fatalf("first caption = %q", out[0].Caption)
	}
	if out[1].Caption != "" {
		t.Fatalf("middle caption = %q", out[1].Caption)
	}
	if out[2].Caption != "sunset — from Ann" {
		t.Fatalf("user caption = %q", out[2].Caption)
	}
}

func TestCaptionChunkDocumentDefaultOnLast(t *testing.T) {
	t.Parallel()
	items := []MediaItem{docItem(0), docItem(1), docItem(2)}
	out := captionChunk(items)
	if out[0].Caption != "" || out[1].Caption != "" {
		t.Fatalf("unexpected captions: %q %q", out[0].Caption, out[1].Caption)
	}
	if out[2].Caption != "media from Ann" {
		t.Fatalf("last caption = %q", out[2].Caption)
	}
}

func TestCaptionClamped(t *testing.T) {
	t.Parallel()
	it := photoItem(0)
	it.Caption = strings.Repeat("x", 2000)
	if got := []rune(singleCaption(it)); len(got) != captionLimit {
		t.Fatalf("caption length = %d", len(got))
	}
}

func TestSenderDisplayName(t *testing.T) {
	t.Parallel()
	if got := (Sender{ID: 1, Username: "ann"}).DisplayName(); got != "@ann" {
		t.Fatalf("got %q", got)
	}
	if got := (Sender{ID: 42}).DisplayName(); got != "42" {
		t.Fatalf("got %q", got)
	}
}
