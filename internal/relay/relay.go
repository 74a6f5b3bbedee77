// ABOUTME: Shared relay plumbing for both device roles
// ABOUTME: Role constants, inbound frame classification, datagram-to-item parsing
package relay

import (
	"errors"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/audio"
	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

// Role pipeline parameters. The coordinator runs a short ring and a tight
// drain cadence because its phone feeds it steadily; the client runs a deeper
// ring because mesh bursts arrive in clumps.
const (
	coordRingSlots   = 16
	coordDrainCap    = 8
	coordDrainPeriod = 6 * time.Millisecond

	clientRingSlots    = 64
	clientDrainCap     = 32
	clientNotifyPeriod = 10 * time.Millisecond

	// Coalescer knobs. The mesh side emits only full chunks so every datagram
	// carries the same payload size; the phone side sends whatever is due but
	// caps the bytes per flush cycle.
	meshCoalesceCap  = 1024
	phoneCoalesceCap = 4096
	flushLowWater    = 200
	meshChunkSize    = 200
	meshFlushPeriod  = 35 * time.Millisecond
	phoneFlushPeriod = 25 * time.Millisecond

	coordPhoneFlushCap  = 1280
	clientPhoneFlushCap = 1440

	linkTickPeriod = time.Second
)

// meshItem is one audio item tagged with the mesh address it arrived from, so
// the drain task can acknowledge and relay without re-parsing.
type meshItem struct {
	item audio.Item
	from transport.Addr
}

// inbound carries a control datagram from a receive callback to the run loop.
// The payload is copied because callback buffers are only valid during the
// call.
type inbound struct {
	from transport.Addr
	data []byte
}

// parseAudioFrame turns a classified mesh or phone datagram into an audio
// item. ok is false for frames that carry no audio (pings, control, garbage).
func parseAudioFrame(kind wire.Kind, data []byte) (audio.Item, bool) {
	switch kind {
	case wire.KindCompactAudio:
		h, off, err := wire.DecodeCompact(data)
		if err != nil {
			return audio.Item{}, false
		}
		format := audio.RawPcm16
		if h.BitsPerSample == 8 {
			format = audio.RawPcm8NeedsUpconvert
		}
		it := audio.NewItem(data[off:], format)
		it.Sequence = h.Sequence
		it.Chunk = uint16(h.ChunkIndex)
		return it, true

	case wire.KindBinaryAudio:
		frameType, seq, payload, err := wire.DecodeBinary(data)
		if err != nil {
			return audio.Item{}, false
		}
		var format audio.Format
		switch frameType {
		case wire.BinaryTypePcm8:
			format = audio.RawPcm8NeedsUpconvert
		case wire.BinaryTypeUlaw:
			format = audio.RawUlaw
		default:
			format = audio.RawPcm16
		}
		it := audio.NewItem(payload, format)
		it.Sequence = uint32(seq)
		return it, true

	case wire.KindRawAudio:
		samples, err := wire.DecodeRaw(data)
		if err != nil {
			return audio.Item{}, false
		}
		return audio.NewItem(samples, audio.RawPcm8NeedsUpconvert), true

	default:
		return audio.Item{}, false
	}
}

// parsePhoneWrite turns one phone write into an audio item. The phone side
// has no control vocabulary: a write either parses strictly as a framed audio
// format with a validating header, or it is raw 16-bit PCM. Plain PCM whose
// first sample bytes happen to look like a tag must never be dropped. The
// legacy R: format has no header to validate, so it never matches here.
func parsePhoneWrite(data []byte) audio.Item {
	switch kind := wire.Classify(data); kind {
	case wire.KindCompactAudio, wire.KindBinaryAudio:
		if item, ok := parseAudioFrame(kind, data); ok {
			return item
		}
	}
	return audio.NewItem(data, audio.RawPcm16)
}

// byteRange reports the minimum and maximum byte value of a chunk; carried in
// the compact header as a cheap level indicator.
func byteRange(chunk []byte) (min, max uint32) {
	if len(chunk) == 0 {
		return 0, 0
	}
	lo, hi := chunk[0], chunk[0]
	for _, b := range chunk[1:] {
		if b < lo {
			lo = b
		}
		if b > hi {
			hi = b
		}
	}
	return uint32(lo), uint32(hi)
}

// deadPeer reports whether a send error is evidence the peer is gone, which
// triggers eviction rather than retry.
func deadPeer(err error) bool {
	return errors.Is(err, transport.ErrPeerNotFound) || errors.Is(err, transport.ErrInvalidPeer)
}
