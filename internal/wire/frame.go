// ABOUTME: On-air frame formats for the mesh datagram link
// ABOUTME: Compact text-header audio chunks, binary WM frames, raw and ping frames
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxDatagram is the practical payload ceiling of a single mesh datagram.
const MaxDatagram = 250

// MaxRawPayload bounds the legacy R: frame payload.
const MaxRawPayload = 240

// Binary frame constants.
const (
	binaryHeaderLen = 7
	// BinaryTypePcm8 marks 8-bit PCM that needs upconversion before playback.
	BinaryTypePcm8 = 0
	// BinaryTypeUlaw marks 8-bit u-law companded PCM.
	BinaryTypeUlaw = 1
)

var (
	// ErrMalformed reports a frame that does not follow its declared format.
	ErrMalformed = errors.New("wire: malformed frame")
	// ErrTruncated reports a frame shorter than its header claims.
	ErrTruncated = errors.New("wire: truncated frame")
)

// CompactHeader is the metadata carried in front of a compact audio chunk.
// All fields are unsigned decimals on the wire.
type CompactHeader struct {
	Sequence      uint32
	ChunkIndex    uint32
	ChunkCount    uint32
	TimestampMs   uint32
	SampleRateHz  uint32
	BitsPerSample uint32
	MinSample     uint32
	MaxSample     uint32
}

// EncodeCompact builds a P: frame: the 8 header fields as colon-separated
// decimals, a final colon, then the payload verbatim. If header plus payload
// would exceed MaxDatagram the payload is truncated to fit; this is the
// documented lossy behavior of the mesh link, not an error.
func EncodeCompact(h CompactHeader, payload []byte) []byte {
	header := fmt.Sprintf("P:%d:%d:%d:%d:%d:%d:%d:%d:",
		h.Sequence, h.ChunkIndex, h.ChunkCount, h.TimestampMs,
		h.SampleRateHz, h.BitsPerSample, h.MinSample, h.MaxSample)

	room := MaxDatagram - len(header)
	if room < 0 {
		room = 0
	}
	if len(payload) > room {
		payload = payload[:room]
	}

	frame := make([]byte, 0, len(header)+len(payload))
	frame = append(frame, header...)
	frame = append(frame, payload...)
	return frame
}

// DecodeCompact parses a P: frame in one pass. It returns the header and the
// offset of the payload within data. Fails with ErrMalformed when the prefix
// is wrong, a non-digit appears where a digit is expected, fewer than 8
// fields are present, a field overflows uint32, or no payload follows the
// final separator.
func DecodeCompact(data []byte) (CompactHeader, int, error) {
	var h CompactHeader
	if len(data) < 2 || data[0] != 'P' || data[1] != ':' {
		return h, 0, ErrMalformed
	}

	fields := [8]uint32{}
	idx := 2
	for f := 0; f < 8; f++ {
		var val uint64
		digits := 0
		for idx < len(data) && data[idx] != ':' {
			c := data[idx]
			if c < '0' || c > '9' {
				return h, 0, ErrMalformed
			}
			val = val*10 + uint64(c-'0')
			if val > math.MaxUint32 {
				return h, 0, ErrMalformed
			}
			digits++
			idx++
		}
		if digits == 0 || idx >= len(data) {
			return h, 0, ErrMalformed
		}
		fields[f] = uint32(val)
		idx++ // consume separator
	}
	if idx >= len(data) {
		// Separator present but nothing after it.
		return h, 0, ErrMalformed
	}

	h.Sequence = fields[0]
	h.ChunkIndex = fields[1]
	h.ChunkCount = fields[2]
	h.TimestampMs = fields[3]
	h.SampleRateHz = fields[4]
	h.BitsPerSample = fields[5]
	h.MinSample = fields[6]
	h.MaxSample = fields[7]
	return h, idx, nil
}

// EncodeBinary builds a WM frame: magic 'W','M', one type byte, sequence and
// payload length as little-endian u16, then the payload.
func EncodeBinary(frameType byte, seq uint16, payload []byte) []byte {
	if len(payload) > math.MaxUint16 {
		payload = payload[:math.MaxUint16]
	}
	frame := make([]byte, binaryHeaderLen+len(payload))
	frame[0] = 'W'
	frame[1] = 'M'
	frame[2] = frameType
	binary.LittleEndian.PutUint16(frame[3:5], seq)
	binary.LittleEndian.PutUint16(frame[5:7], uint16(len(payload)))
	copy(frame[binaryHeaderLen:], payload)
	return frame
}

// DecodeBinary parses a WM frame, returning the type, sequence, and a slice
// of data holding the payload. ErrMalformed on short/bad magic, ErrTruncated
// when the declared length runs past the end of data.
func DecodeBinary(data []byte) (frameType byte, seq uint16, payload []byte, err error) {
	if len(data) < binaryHeaderLen || data[0] != 'W' || data[1] != 'M' {
		return 0, 0, nil, ErrMalformed
	}
	declared := int(binary.LittleEndian.Uint16(data[5:7]))
	if binaryHeaderLen+declared > len(data) {
		return 0, 0, nil, ErrTruncated
	}
	seq = binary.LittleEndian.Uint16(data[3:5])
	return data[2], seq, data[binaryHeaderLen : binaryHeaderLen+declared], nil
}

// EncodeRaw builds a legacy R: frame of unsigned 8-bit samples, truncated to
// MaxRawPayload.
func EncodeRaw(samples []byte) []byte {
	if len(samples) > MaxRawPayload {
		samples = samples[:MaxRawPayload]
	}
	frame := make([]byte, 0, 2+len(samples))
	frame = append(frame, 'R', ':')
	frame = append(frame, samples...)
	return frame
}

// DecodeRaw returns the sample bytes of an R: frame.
func DecodeRaw(data []byte) ([]byte, error) {
	if len(data) < 3 || data[0] != 'R' || data[1] != ':' {
		return nil, ErrMalformed
	}
	return data[2:], nil
}

// EncodePing builds a T: text frame. Ping frames carry their own tag byte so
// a text payload can never be mistaken for an audio chunk header.
func EncodePing(seq uint32, text string) []byte {
	return []byte(fmt.Sprintf("T:%d:%s", seq, text))
}

// DecodePing parses a T: frame into its sequence and text.
func DecodePing(data []byte) (uint32, string, error) {
	if len(data) < 2 || data[0] != 'T' || data[1] != ':' {
		return 0, "", ErrMalformed
	}
	var val uint64
	idx := 2
	digits := 0
	for idx < len(data) && data[idx] != ':' {
		c := data[idx]
		if c < '0' || c > '9' {
			return 0, "", ErrMalformed
		}
		val = val*10 + uint64(c-'0')
		if val > math.MaxUint32 {
			return 0, "", ErrMalformed
		}
		digits++
		idx++
	}
	if digits == 0 || idx >= len(data) {
		return 0, "", ErrMalformed
	}
	return uint32(val), string(data[idx+1:]), nil
}

// Kind classifies an inbound datagram so the receive callback can route it
// without a second scan.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCompactAudio
	KindBinaryAudio
	KindRawAudio
	KindPing
	KindControl
)

// Classify inspects the leading bytes of a datagram. A P: frame that does not
// parse as 8 numeric fields is treated as a legacy ping rather than rejected,
// since older senders overloaded the P: prefix for text.
func Classify(data []byte) Kind {
	if len(data) < 2 {
		return KindUnknown
	}
	switch {
	case data[0] == 'P' && data[1] == ':':
		if _, _, err := DecodeCompact(data); err == nil {
			return KindCompactAudio
		}
		return KindPing
	case data[0] == 'T' && data[1] == ':':
		return KindPing
	case data[0] == 'W' && data[1] == 'M':
		return KindBinaryAudio
	case data[0] == 'R' && data[1] == ':':
		return KindRawAudio
	case data[0] == '{':
		return KindControl
	default:
		return KindUnknown
	}
}
