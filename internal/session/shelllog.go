package session

import (
	"context"
	"sync"
)

// RingLimit bounds the number of bytes a shell log retains in memory.
// Chosen per §3's "e.g. 8 MiB per shell" guidance.
const RingLimit = 8 * 1024 * 1024

// chunk is an opaque ciphertext blob and the byte offset it starts at.
// Generalized from the agent replay buffer's entry type, stripped of any
// escape-sequence or cursor bookkeeping — this log never interprets bytes.
type chunk struct {
	offset int64
	idx    int // position in the full historical sequence of appends
	data   []byte
}

// ShellLog is the append-only, byte-addressable, bounded-retention log for
// one shell's output stream.
type ShellLog struct {
	mu       sync.Mutex
	offset   int64   // total bytes ever appended, including evicted
	chunks   []chunk // retained, contiguous, oldest first
	retained int64   // sum of len(data) over chunks
	total    int     // count of chunks ever appended
	closed   bool
	limit    int64 // eviction threshold; RingLimit unless overridden for tests

	notifier *Notifier
}

// NewShellLog returns an empty log.
func NewShellLog() *ShellLog {
	return newShellLogWithLimit(RingLimit)
}

// newShellLogWithLimit returns an empty log with a caller-chosen eviction
// threshold, letting tests exercise §3's worked eviction scenarios without
// appending megabytes of fixture data.
func newShellLogWithLimit(limit int64) *ShellLog {
	return &ShellLog{notifier: NewNotifier(), limit: limit}
}

// Append adds data to the log, advancing the offset and trimming the oldest
// retained chunks whole once the ring limit is exceeded. Returns false if
// the log is already closed.
func (l *ShellLog) Append(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	c := chunk{offset: l.offset, idx: l.total, data: data}
	l.chunks = append(l.chunks, c)
	l.total++
	l.offset += int64(len(data))
	l.retained += int64(len(data))
	for len(l.chunks) > 1 && l.retained-int64(len(l.chunks[0].data)) >= l.limit {
		evicted := l.chunks[0]
		l.chunks = l.chunks[1:]
		l.retained -= int64(len(evicted.data))
	}
	l.mu.Unlock()
	l.notifier.Notify()
	return true
}

// Offset returns the total number of bytes ever appended.
func (l *ShellLog) Offset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// Close marks the log closed; further Appends are rejected.
func (l *ShellLog) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.notifier.Notify()
}

// snapshotFrom returns the retained chunks whose end-offset exceeds
// requestedOffset, trimming the first chunk returned so it begins exactly
// at requestedOffset when that offset falls inside a retained chunk. If
// requestedOffset precedes the earliest retained byte, the cursor begins at
// the earliest retained chunk instead (lossy catch-up, per §4.2).
func (l *ShellLog) snapshotFrom(requestedOffset int64) (startOffset int64, out [][]byte, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed = l.closed
	if len(l.chunks) == 0 {
		return l.offset, nil, closed
	}

	earliest := l.chunks[0].offset
	if requestedOffset < earliest {
		requestedOffset = earliest
	}

	for i, c := range l.chunks {
		end := c.offset + int64(len(c.data))
		if end <= requestedOffset {
			continue
		}
		first := c.data
		start := c.offset
		if c.offset < requestedOffset {
			first = c.data[requestedOffset-c.offset:]
			start = requestedOffset
		}
		result := make([][]byte, 0, len(l.chunks)-i)
		result = append(result, first)
		for _, rest := range l.chunks[i+1:] {
			result = append(result, rest.data)
		}
		return start, result, closed
	}
	return l.offset, nil, closed
}

// OffsetForChunknum translates a viewer's chunknum resume token (the count
// of chunks it has already received) into the byte offset the server
// should resume from, per §4.4. If chunknum names a chunk that has since
// been evicted, the earliest still-retained chunk's offset is returned
// instead — the same lossy catch-up behavior as a byte-offset subscribe
// that lands inside a trimmed region.
func (l *ShellLog) OffsetForChunknum(chunknum int) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.chunks) == 0 {
		return l.offset
	}
	if chunknum >= l.total {
		return l.offset
	}
	earliest := l.chunks[0]
	if chunknum < earliest.idx {
		return earliest.offset
	}
	i := chunknum - earliest.idx
	if i < 0 || i >= len(l.chunks) {
		return earliest.offset
	}
	return l.chunks[i].offset
}

// ChunkCursor tracks a single subscriber's position as the byte offset of
// the next byte to deliver. It also counts the chunks it has handed out;
// the viewer protocol's "chunknum" resume token is translated to a byte
// offset by OffsetForChunknum before a cursor is created.
type ChunkCursor struct {
	log   *ShellLog
	sent  int // chunks delivered so far
	gen   uint64
	bytes int64 // byte offset the next Poll resumes from
}

// SubscribeFrom returns a cursor that next yields every chunk whose
// end-offset exceeds byteOffset.
func (l *ShellLog) SubscribeFrom(byteOffset int64) *ChunkCursor {
	gen, _ := l.notifier.Generation()
	return &ChunkCursor{log: l, gen: gen, bytes: byteOffset}
}

// Poll returns newly available chunks (if any) starting at the cursor's
// current position, along with the byte offset the first of them starts at.
// It never blocks.
func (c *ChunkCursor) Poll() (startOffset int64, chunks [][]byte, closed bool) {
	start, out, closed := c.log.snapshotFrom(c.bytes)
	if len(out) == 0 {
		return start, nil, closed
	}
	total := start
	for _, d := range out {
		total += int64(len(d))
	}
	c.bytes = total
	c.sent += len(out)
	return start, out, closed
}

// Wait blocks until new data, a close, or ctx cancellation — whichever
// happens first — then returns. The caller should call Poll afterward.
func (c *ChunkCursor) Wait(ctx context.Context) error {
	gen, wake := c.log.notifier.Generation()
	if gen != c.gen {
		c.gen = gen
		return nil
	}
	select {
	case <-wake:
		g, _ := c.log.notifier.Generation()
		c.gen = g
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
