// ABOUTME: In-memory phone link for tests
// ABOUTME: Notifications land in a channel, InjectWrite plays the phone side
package phonelink

import "sync"

// Loopback is an in-process Link. Tests read notifications from the
// Notified channel and call InjectWrite to act as the phone.
type Loopback struct {
	Notified chan []byte

	mu        sync.RWMutex
	handler   WriteFunc
	chunkSize int
	connected bool
	closed    bool
}

// NewLoopback creates a connected loopback link.
func NewLoopback(chunkSize int) *Loopback {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Loopback{
		Notified:  make(chan []byte, 1024),
		chunkSize: chunkSize,
		connected: true,
	}
}

func (l *Loopback) Notify(data []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if !l.connected {
		return ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	l.Notified <- cp
	return nil
}

func (l *Loopback) SetWriteHandler(fn WriteFunc) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

func (l *Loopback) ChunkSize() int { return l.chunkSize }

func (l *Loopback) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected && !l.closed
}

// SetConnected simulates the phone attaching or detaching.
func (l *Loopback) SetConnected(up bool) {
	l.mu.Lock()
	l.connected = up
	l.mu.Unlock()
}

// InjectWrite delivers data as if the phone wrote it. Runs the handler on
// the caller's goroutine, matching the real link's reader-context delivery.
func (l *Loopback) InjectWrite(data []byte) {
	l.mu.RLock()
	fn := l.handler
	l.mu.RUnlock()
	if fn != nil {
		fn(data)
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
