// ABOUTME: Phone-facing link abstraction for the relay
// ABOUTME: Notify pushes audio to the phone, a write handler receives phone data
package phonelink

import "errors"

// DefaultChunkSize is the notify payload size offered to the phone when the
// configuration does not override it.
const DefaultChunkSize = 200

// Link errors.
var (
	ErrNotConnected = errors.New("phonelink: no phone connected")
	ErrClosed       = errors.New("phonelink: closed")
)

// WriteFunc receives data the phone wrote to the link. Like the mesh receive
// callback it runs on the link's reader goroutine and must not block; the
// slice is only valid for the duration of the call.
type WriteFunc func(data []byte)

// Link is the connection to the phone. One phone at a time; Notify fails with
// ErrNotConnected between sessions.
type Link interface {
	// Notify pushes one audio chunk to the phone.
	Notify(data []byte) error
	// SetWriteHandler installs the callback for phone writes. Must be set
	// before a phone connects.
	SetWriteHandler(fn WriteFunc)
	// ChunkSize is the negotiated notify payload size.
	ChunkSize() int
	// Connected reports whether a phone session is up.
	Connected() bool
	// Close tears the link down.
	Close() error
}
