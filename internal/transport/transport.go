// ABOUTME: Mesh datagram transport abstraction
// ABOUTME: Hardware-address keyed unicast with a receive callback, ~250 byte datagrams
package transport

import (
	"errors"
	"fmt"
	"net"
)

// MaxDatagram is the largest payload a mesh datagram may carry.
const MaxDatagram = 250

// Addr is a 6-byte hardware address identifying a mesh node.
type Addr [6]byte

// String formats the address in the usual colon-separated hex form.
func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is unset.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// ParseAddr parses AA:BB:CC:DD:EE:FF.
func ParseAddr(s string) (Addr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return Addr{}, fmt.Errorf("transport: bad address %q", s)
	}
	var a Addr
	copy(a[:], hw)
	return a, nil
}

// Transport errors. ErrPeerNotFound and ErrInvalidPeer are the signals the
// relay treats as evidence of a dead peer.
var (
	ErrPeerNotFound = errors.New("transport: peer not found")
	ErrInvalidPeer  = errors.New("transport: invalid peer")
	ErrTooLarge     = errors.New("transport: datagram exceeds limit")
	ErrClosed       = errors.New("transport: closed")
)

// RecvFunc is invoked from the transport's receive context for every inbound
// datagram. It must complete in bounded time and must not block; heavy work
// belongs behind a queue. The data slice is only valid for the duration of
// the call.
type RecvFunc func(from Addr, data []byte)

// Mesh is the point-to-point wireless link between devices. Peers must be
// registered before unicast send; the implementation tracks reachability
// per hardware address.
type Mesh interface {
	// LocalAddr returns this node's hardware address.
	LocalAddr() Addr
	// AddPeer registers addr as a send target. Idempotent.
	AddPeer(addr Addr) error
	// RemovePeer deregisters addr. Returns ErrPeerNotFound if absent.
	RemovePeer(addr Addr) error
	// Send transmits one datagram to a registered peer.
	Send(to Addr, data []byte) error
	// SetReceiver installs the receive callback. Must be called before any
	// datagram can be delivered.
	SetReceiver(fn RecvFunc)
	// Close tears the transport down.
	Close() error
}
