// ABOUTME: In-memory mesh transport for tests
// ABOUTME: Synchronous delivery through a shared hub, same peer semantics as UDP
package transport

import "sync"

// Hub connects MemoryMesh nodes. Delivery is synchronous: Send invokes the
// destination's receive callback on the caller's goroutine, which makes the
// callback context explicit in tests.
type Hub struct {
	mu    sync.Mutex
	nodes map[Addr]*MemoryMesh
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{nodes: make(map[Addr]*MemoryMesh)}
}

// Join attaches a new node with the given address.
func (h *Hub) Join(addr Addr) *MemoryMesh {
	m := &MemoryMesh{hub: h, local: addr, peers: make(map[Addr]bool)}
	h.mu.Lock()
	h.nodes[addr] = m
	h.mu.Unlock()
	return m
}

func (h *Hub) lookup(addr Addr) *MemoryMesh {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nodes[addr]
}

// MemoryMesh is one node on a Hub.
type MemoryMesh struct {
	hub   *Hub
	local Addr

	mu     sync.Mutex
	peers  map[Addr]bool
	closed bool

	recvMu sync.RWMutex
	recv   RecvFunc

	// Dropped counts sends discarded because the destination was unreachable.
	Dropped int
}

func (m *MemoryMesh) LocalAddr() Addr { return m.local }

func (m *MemoryMesh) AddPeer(addr Addr) error {
	if m.hub.lookup(addr) == nil {
		return ErrInvalidPeer
	}
	m.mu.Lock()
	m.peers[addr] = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryMesh) RemovePeer(addr Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.peers[addr] {
		return ErrPeerNotFound
	}
	delete(m.peers, addr)
	return nil
}

func (m *MemoryMesh) Send(to Addr, data []byte) error {
	if len(data) > MaxDatagram {
		return ErrTooLarge
	}
	m.mu.Lock()
	closed := m.closed
	registered := m.peers[to]
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !registered {
		return ErrPeerNotFound
	}

	dst := m.hub.lookup(to)
	if dst == nil {
		return ErrInvalidPeer
	}

	dst.recvMu.RLock()
	fn := dst.recv
	dst.recvMu.RUnlock()
	if fn == nil {
		m.Dropped++
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	fn(m.local, buf)
	return nil
}

func (m *MemoryMesh) SetReceiver(fn RecvFunc) {
	m.recvMu.Lock()
	m.recv = fn
	m.recvMu.Unlock()
}

func (m *MemoryMesh) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
