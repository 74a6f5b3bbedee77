// ABOUTME: Outbound coalescing buffer with a time- and size-gated flush policy
// ABOUTME: Merges small audio fragments into paced fixed-size notification bursts
package coalesce

import (
	"time"

	"github.com/wavemesh/wavemesh-go/internal/audio"
)

// EmitFunc receives one outgoing chunk per call. index counts from 0 within
// the flush; count is the number of chunks this flush will emit. The chunk
// slice aliases the internal buffer and must not be retained.
type EmitFunc func(chunk []byte, index, count int)

// Config parameterizes one coalescer. The same policy runs at several call
// sites with different constants, so the knobs live here instead of being
// re-derived per site.
type Config struct {
	// Capacity is the byte buffer size; ingested bytes beyond it are dropped.
	Capacity int
	// LowWater triggers an immediate flush once this many bytes accumulate.
	LowWater int
	// FlushPeriod triggers a flush when it elapses even below the low-water
	// mark, bounding added latency.
	FlushPeriod time.Duration
	// MaxPerFlush caps bytes sent in one flush cycle; the remainder stays
	// buffered. Zero means no cap.
	MaxPerFlush int
	// ChunkSize is the maximum bytes handed to a single emit call.
	ChunkSize int
	// FullChunksOnly holds back a trailing partial chunk instead of sending
	// it, for transports that want fixed-size payloads.
	FullChunksOnly bool
}

// Buffer accumulates audio bytes and flushes them in chunks. It is owned by
// exactly one task; no locking.
type Buffer struct {
	cfg  Config
	buf  []byte
	n    int
	next time.Time // next time-gated flush is due

	scratch [2 * audio.MaxItemBytes]byte

	droppedBytes uint64
}

// New creates a coalescing buffer.
func New(cfg Config) *Buffer {
	return &Buffer{
		cfg: cfg,
		buf: make([]byte, cfg.Capacity),
	}
}

// Ingest appends one audio item, expanding 8-bit formats to 16-bit on the
// way in. When the buffer is full the excess is dropped and counted; a
// growing drop count means the flush policy is falling behind.
func (b *Buffer) Ingest(item *audio.Item) {
	data := item.Bytes()
	switch item.Format {
	case audio.RawPcm8NeedsUpconvert:
		n := audio.UpconvertPcm8(b.scratch[:], data)
		data = b.scratch[:n]
	case audio.RawUlaw:
		n := audio.ExpandUlaw(b.scratch[:], data)
		data = b.scratch[:n]
	}
	b.Append(data)
}

// Append adds raw bytes, dropping whatever does not fit.
func (b *Buffer) Append(data []byte) {
	copied := copy(b.buf[b.n:], data)
	b.n += copied
	if copied < len(data) {
		b.droppedBytes += uint64(len(data) - copied)
	}
}

// FlushIfDue runs the flush policy: flush when the accumulated length has
// reached the low-water mark or the flush period has elapsed, whichever comes
// first. Returns the number of bytes emitted.
func (b *Buffer) FlushIfDue(now time.Time, emit EmitFunc) int {
	if b.next.IsZero() {
		b.next = now.Add(b.cfg.FlushPeriod)
	}
	if b.n < b.cfg.LowWater && now.Before(b.next) {
		return 0
	}
	return b.Flush(now, emit)
}

// Flush sends up to MaxPerFlush buffered bytes in ChunkSize pieces and
// compacts the remainder to the front of the buffer.
func (b *Buffer) Flush(now time.Time, emit EmitFunc) int {
	b.next = now.Add(b.cfg.FlushPeriod)

	toSend := b.n
	if b.cfg.MaxPerFlush > 0 && toSend > b.cfg.MaxPerFlush {
		toSend = b.cfg.MaxPerFlush
	}
	if b.cfg.FullChunksOnly {
		toSend -= toSend % b.cfg.ChunkSize
	}
	if toSend == 0 {
		return 0
	}

	count := (toSend + b.cfg.ChunkSize - 1) / b.cfg.ChunkSize
	sent := 0
	for i := 0; i < count; i++ {
		end := sent + b.cfg.ChunkSize
		if end > toSend {
			end = toSend
		}
		emit(b.buf[sent:end], i, count)
		sent = end
	}

	// Left-shift the unsent remainder to index 0 for the next cycle.
	copy(b.buf, b.buf[toSend:b.n])
	b.n -= toSend
	return toSend
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int { return b.n }

// DroppedBytes reports bytes discarded because the buffer was full.
func (b *Buffer) DroppedBytes() uint64 { return b.droppedBytes }
