// ABOUTME: Fixed-capacity membership table for the mesh star topology
// ABOUTME: Admission, ready promotion, heartbeat refresh, and timeout eviction
package mesh

import (
	"log"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/transport"
)

// PeerRegistry is the slice of the transport the table drives: peers are
// registered on admission and deregistered on eviction.
type PeerRegistry interface {
	AddPeer(transport.Addr) error
	RemovePeer(transport.Addr) error
}

// Device is one row of the membership table.
type Device struct {
	Addr     transport.Addr
	Name     string
	DevType  string
	LastSeen time.Time
	Active   bool
	Quality  int
}

// Table tracks admitted mesh devices. It is owned by a single goroutine (the
// relay's control loop); the hardware address is the unique key and active
// devices are always a subset of admitted ones.
type Table struct {
	peers   PeerRegistry
	devices []Device
}

// NewTable creates an empty table bound to a peer registry.
func NewTable(peers PeerRegistry) *Table {
	return &Table{
		peers:   peers,
		devices: make([]Device, 0, MaxDevices),
	}
}

func (t *Table) find(addr transport.Addr) int {
	for i := range t.devices {
		if t.devices[i].Addr == addr {
			return i
		}
	}
	return -1
}

// Admit inserts a device, or refreshes it if the address is already present
// (an idempotent re-join: last-seen updates, active state does not). Returns
// false when the table is full or the transport rejects the peer.
func (t *Table) Admit(addr transport.Addr, name, devType string, now time.Time) bool {
	if i := t.find(addr); i >= 0 {
		t.devices[i].LastSeen = now
		return true
	}
	if len(t.devices) >= MaxDevices {
		return false
	}
	if err := t.peers.AddPeer(addr); err != nil {
		log.Printf("admit %s: peer registration failed: %v", addr, err)
		return false
	}
	t.devices = append(t.devices, Device{
		Addr:     addr,
		Name:     name,
		DevType:  devType,
		LastSeen: now,
		Active:   false, // not active until the ready confirmation lands
		Quality:  100,
	})
	return true
}

// MarkReady promotes an admitted device to active; the second step of the
// join handshake. A ready for an unknown address is a no-op.
func (t *Table) MarkReady(addr transport.Addr, now time.Time) bool {
	i := t.find(addr)
	if i < 0 {
		return false
	}
	t.devices[i].Active = true
	t.devices[i].LastSeen = now
	return true
}

// Touch refreshes last-seen without changing active state.
func (t *Table) Touch(addr transport.Addr, now time.Time) bool {
	i := t.find(addr)
	if i < 0 {
		return false
	}
	t.devices[i].LastSeen = now
	return true
}

// Evict removes a device and deregisters its transport peer.
func (t *Table) Evict(addr transport.Addr) bool {
	i := t.find(addr)
	if i < 0 {
		return false
	}
	if err := t.peers.RemovePeer(addr); err != nil {
		log.Printf("evict %s: peer deregistration failed: %v", addr, err)
	}
	t.devices = append(t.devices[:i], t.devices[i+1:]...)
	return true
}

// SweepTimeouts evicts every active device silent for longer than timeout
// and returns the evicted rows.
func (t *Table) SweepTimeouts(now time.Time, timeout time.Duration) []Device {
	var evicted []Device
	for i := 0; i < len(t.devices); {
		d := t.devices[i]
		if d.Active && now.Sub(d.LastSeen) > timeout {
			evicted = append(evicted, d)
			t.Evict(d.Addr)
			continue // same index now holds the next device
		}
		i++
	}
	return evicted
}

// Len reports the number of admitted devices.
func (t *Table) Len() int { return len(t.devices) }

// Lookup returns the row for addr.
func (t *Table) Lookup(addr transport.Addr) (Device, bool) {
	if i := t.find(addr); i >= 0 {
		return t.devices[i], true
	}
	return Device{}, false
}

// Active returns a copy of the active rows, the broadcast fan-out set.
func (t *Table) Active() []Device {
	var out []Device
	for _, d := range t.devices {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns a copy of every row, for status broadcasts and the UI.
func (t *Table) Snapshot() []Device {
	out := make([]Device, len(t.devices))
	copy(out, t.devices)
	return out
}
