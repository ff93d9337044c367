package session

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestAppendContiguity(t *testing.T) {
	l := NewShellLog()
	sizes := []int{5, 5, 5}
	var total int64
	for _, n := range sizes {
		l.Append(bytes.Repeat([]byte{'x'}, n))
		total += int64(n)
	}
	if got := l.Offset(); got != total {
		t.Fatalf("offset = %d, want %d", got, total)
	}
}

// S2: ring limit 8, append 5+5+5=15; retained chunks hold the last two
// (offsets 5 and 10, 10 bytes retained); the oldest chunk (offset 0) is
// evicted, so a subscriber at offset 0 is caught up to startOffset=5.
func TestRingTrim(t *testing.T) {
	l := newShellLogWithLimit(8)

	l.Append([]byte("12345"))
	l.Append([]byte("67890"))
	l.Append([]byte("ABCDE"))

	if len(l.chunks) != 2 {
		t.Fatalf("retained chunk count = %d, want 2", len(l.chunks))
	}
	if l.retained != 10 {
		t.Fatalf("retained bytes = %d, want 10", l.retained)
	}
	if l.chunks[0].offset != 5 || l.chunks[1].offset != 10 {
		t.Fatalf("retained offsets = [%d, %d], want [5, 10]", l.chunks[0].offset, l.chunks[1].offset)
	}

	start, chunks, _ := l.snapshotFrom(0)
	if start != 5 {
		t.Fatalf("start = %d, want 5 (cursor must jump past the evicted chunk)", start)
	}
	var got []byte
	for _, c := range chunks {
		got = append(got, c...)
	}
	if string(got) != "67890ABCDE" {
		t.Fatalf("got %q, want %q", got, "67890ABCDE")
	}
}

func TestSubscribeFromArbitraryOffset(t *testing.T) {
	l := NewShellLog()
	l.Append([]byte("hello"))
	l.Append([]byte("world"))

	start, chunks, _ := l.snapshotFrom(3)
	if start != 3 {
		t.Fatalf("start = %d, want 3", start)
	}
	var got []byte
	for _, c := range chunks {
		got = append(got, c...)
	}
	if string(got) != "loworld" {
		t.Fatalf("got %q, want %q", got, "loworld")
	}
}

func TestSubscribeFromPrecedingEarliestRetained(t *testing.T) {
	l := NewShellLog()
	l.Append([]byte("abcde"))
	l.chunks[0].offset = 100 // simulate eviction having moved the earliest offset forward
	l.retained = int64(len(l.chunks[0].data))

	start, chunks, _ := l.snapshotFrom(0)
	if start != 100 {
		t.Fatalf("start = %d, want 100 (cursor must jump to earliest retained)", start)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestChunkCursorWaitWakesOnAppend(t *testing.T) {
	l := NewShellLog()
	c := l.SubscribeFrom(0)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- c.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	l.Append([]byte("hi"))

	if err := <-done; err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	_, chunks, _ := c.Poll()
	if len(chunks) != 1 || string(chunks[0]) != "hi" {
		t.Fatalf("unexpected poll result: %v", chunks)
	}
}

func TestClosedLogRejectsAppend(t *testing.T) {
	l := NewShellLog()
	l.Close()
	if l.Append([]byte("x")) {
		t.Fatal("expected Append to fail on closed log")
	}
}
