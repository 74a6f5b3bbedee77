// ABOUTME: UDP implementation of the mesh datagram transport
// ABOUTME: Host-side stand-in for the short-range radio link
package transport

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Each datagram is prefixed with the sender's 6-byte hardware address, the
// role the radio's frame header plays on real hardware. The payload after
// the prefix is bounded by MaxDatagram.
const envelopeLen = 6

// RandomAddr derives a locally-administered hardware address from a random
// UUID, for nodes without a configured address.
func RandomAddr() Addr {
	id := uuid.New()
	var a Addr
	copy(a[:], id[:6])
	a[0] = (a[0] | 0x02) &^ 0x01 // locally administered, unicast
	return a
}

// UDPMesh carries mesh datagrams over UDP. Endpoints are learned from
// inbound traffic or seeded explicitly (the discovery layer seeds the
// coordinator); only registered peers are valid unicast targets.
type UDPMesh struct {
	local Addr
	conn  *net.UDPConn

	mu        sync.Mutex
	endpoints map[Addr]*net.UDPAddr // every endpoint ever seen or seeded
	peers     map[Addr]bool         // registered send targets

	recvMu sync.RWMutex
	recv   RecvFunc

	closed  chan struct{}
	closeMu sync.Once
}

// ListenUDP binds a UDP mesh node on the given address ("host:port", empty
// port picks one).
func ListenUDP(local Addr, bind string) (*UDPMesh, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", bind, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", bind, err)
	}

	m := &UDPMesh{
		local:     local,
		conn:      conn,
		endpoints: make(map[Addr]*net.UDPAddr),
		peers:     make(map[Addr]bool),
		closed:    make(chan struct{}),
	}
	go m.readLoop()
	return m, nil
}

// Port returns the bound UDP port.
func (m *UDPMesh) Port() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

func (m *UDPMesh) LocalAddr() Addr { return m.local }

// Seed records the endpoint for a hardware address learned out of band
// (e.g. from discovery), making it a valid AddPeer target.
func (m *UDPMesh) Seed(addr Addr, endpoint string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", endpoint, err)
	}
	m.mu.Lock()
	m.endpoints[addr] = udpAddr
	m.mu.Unlock()
	return nil
}

func (m *UDPMesh) AddPeer(addr Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[addr]; !ok {
		return ErrInvalidPeer
	}
	m.peers[addr] = true
	return nil
}

func (m *UDPMesh) RemovePeer(addr Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.peers[addr] {
		return ErrPeerNotFound
	}
	delete(m.peers, addr)
	return nil
}

func (m *UDPMesh) Send(to Addr, data []byte) error {
	if len(data) > MaxDatagram {
		return ErrTooLarge
	}
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}

	m.mu.Lock()
	endpoint, known := m.endpoints[to]
	registered := m.peers[to]
	m.mu.Unlock()

	if !known {
		return ErrInvalidPeer
	}
	if !registered {
		return ErrPeerNotFound
	}

	frame := make([]byte, envelopeLen+len(data))
	copy(frame, m.local[:])
	copy(frame[envelopeLen:], data)

	if _, err := m.conn.WriteToUDP(frame, endpoint); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

func (m *UDPMesh) SetReceiver(fn RecvFunc) {
	m.recvMu.Lock()
	m.recv = fn
	m.recvMu.Unlock()
}

func (m *UDPMesh) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, sender, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-m.closed:
				return
			default:
				log.Printf("mesh read error: %v", err)
				continue
			}
		}
		if n < envelopeLen || n-envelopeLen > MaxDatagram {
			continue // not one of ours
		}

		var from Addr
		copy(from[:], buf[:envelopeLen])

		// Learn or refresh the sender's endpoint; roaming peers keep working.
		m.mu.Lock()
		m.endpoints[from] = sender
		m.mu.Unlock()

		m.recvMu.RLock()
		fn := m.recv
		m.recvMu.RUnlock()
		if fn != nil {
			fn(from, buf[envelopeLen:n])
		}
	}
}

func (m *UDPMesh) Close() error {
	m.closeMu.Do(func() { close(m.closed) })
	return m.conn.Close()
}
