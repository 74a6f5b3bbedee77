// ABOUTME: Tests for the membership table
// ABOUTME: Admission limits, ready handshake, heartbeat refresh, timeout sweep
package mesh

import (
	"testing"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/transport"
)

// fakeRegistry records peer registrations without a real transport.
type fakeRegistry struct {
	added   []transport.Addr
	removed []transport.Addr
	failAdd bool
}

func (f *fakeRegistry) AddPeer(a transport.Addr) error {
	if f.failAdd {
		return transport.ErrInvalidPeer
	}
	f.added = append(f.added, a)
	return nil
}

func (f *fakeRegistry) RemovePeer(a transport.Addr) error {
	f.removed = append(f.removed, a)
	return nil
}

func addr(n byte) transport.Addr {
	return transport.Addr{0x02, 0, 0, 0, 0, n}
}

func TestAdmitUpToCapacity(t *testing.T) {
	reg := &fakeRegistry{}
	tbl := NewTable(reg)
	now := time.Now()

	for i := byte(1); i <= MaxDevices; i++ {
		if !tbl.Admit(addr(i), "dev", "audio_client", now) {
			t.Fatalf("admission %d failed below capacity", i)
		}
	}
	if tbl.Len() != MaxDevices {
		t.Fatalf("table has %d rows, want %d", tbl.Len(), MaxDevices)
	}

	// Fifth admission fails and leaves the table unchanged.
	if tbl.Admit(addr(9), "late", "audio_client", now) {
		t.Fatal("admission beyond capacity succeeded")
	}
	if tbl.Len() != MaxDevices {
		t.Errorf("table changed by failed admission: %d rows", tbl.Len())
	}
	if len(reg.added) != MaxDevices {
		t.Errorf("%d peers registered, want %d", len(reg.added), MaxDevices)
	}
}

func TestAdmitIsIdempotent(t *testing.T) {
	reg := &fakeRegistry{}
	tbl := NewTable(reg)
	t0 := time.Now()

	tbl.Admit(addr(1), "dev", "audio_client", t0)
	tbl.MarkReady(addr(1), t0)

	// Re-join refreshes but must not duplicate or re-register the peer, and
	// must keep the active flag as-is.
	t1 := t0.Add(3 * time.Second)
	if !tbl.Admit(addr(1), "dev", "audio_client", t1) {
		t.Fatal("idempotent re-admit failed")
	}
	if tbl.Len() != 1 {
		t.Fatalf("duplicate row created: %d", tbl.Len())
	}
	if len(reg.added) != 1 {
		t.Errorf("peer registered twice")
	}
	d, _ := tbl.Lookup(addr(1))
	if !d.LastSeen.Equal(t1) {
		t.Error("last-seen not refreshed")
	}
	if !d.Active {
		t.Error("active flag lost on re-admit")
	}
}

func TestAdmitFailsWhenRegistryRejects(t *testing.T) {
	reg := &fakeRegistry{failAdd: true}
	tbl := NewTable(reg)

	if tbl.Admit(addr(1), "dev", "audio_client", time.Now()) {
		t.Fatal("admission succeeded despite peer registration failure")
	}
	if tbl.Len() != 0 {
		t.Error("row inserted without a registered peer")
	}
}

func TestReadyHandshake(t *testing.T) {
	tbl := NewTable(&fakeRegistry{})
	now := time.Now()

	tbl.Admit(addr(1), "dev", "audio_client", now)
	if len(tbl.Active()) != 0 {
		t.Fatal("device active before ready confirmation")
	}

	if !tbl.MarkReady(addr(1), now) {
		t.Fatal("MarkReady failed for admitted device")
	}
	if len(tbl.Active()) != 1 {
		t.Fatal("device not active after ready confirmation")
	}

	// Ready for a never-admitted address is a no-op, not an error.
	if tbl.MarkReady(addr(7), now) {
		t.Error("MarkReady succeeded for unknown address")
	}
	if tbl.Len() != 1 {
		t.Error("table changed by stray ready")
	}
}

func TestTouchDoesNotActivate(t *testing.T) {
	tbl := NewTable(&fakeRegistry{})
	t0 := time.Now()

	tbl.Admit(addr(1), "dev", "audio_client", t0)
	t1 := t0.Add(time.Second)
	if !tbl.Touch(addr(1), t1) {
		t.Fatal("touch failed")
	}

	d, _ := tbl.Lookup(addr(1))
	if d.Active {
		t.Error("touch activated an inactive device")
	}
	if !d.LastSeen.Equal(t1) {
		t.Error("touch did not refresh last-seen")
	}
}

func TestSweepEvictsOnlyTimedOut(t *testing.T) {
	reg := &fakeRegistry{}
	tbl := NewTable(reg)
	t0 := time.Now()

	tbl.Admit(addr(1), "stale", "audio_client", t0)
	tbl.MarkReady(addr(1), t0)
	tbl.Admit(addr(2), "fresh", "audio_client", t0)
	tbl.MarkReady(addr(2), t0)

	// Keep device 2 alive past the timeout horizon.
	later := t0.Add(DeviceTimeout + time.Second)
	tbl.Touch(addr(2), later)

	evicted := tbl.SweepTimeouts(later, DeviceTimeout)
	if len(evicted) != 1 || evicted[0].Addr != addr(1) {
		t.Fatalf("evicted %v, want just %s", evicted, addr(1))
	}
	if _, ok := tbl.Lookup(addr(1)); ok {
		t.Error("stale device still present")
	}
	if _, ok := tbl.Lookup(addr(2)); !ok {
		t.Error("fresh device evicted")
	}
	if len(reg.removed) != 1 || reg.removed[0] != addr(1) {
		t.Errorf("peer deregistrations: %v", reg.removed)
	}
}

func TestSweepSkipsInactiveDevices(t *testing.T) {
	tbl := NewTable(&fakeRegistry{})
	t0 := time.Now()

	// Admitted but never confirmed ready: not swept, since it never entered
	// the broadcast set.
	tbl.Admit(addr(1), "pending", "audio_client", t0)

	evicted := tbl.SweepTimeouts(t0.Add(2*DeviceTimeout), DeviceTimeout)
	if len(evicted) != 0 {
		t.Errorf("swept inactive device: %v", evicted)
	}
}

func TestEvictUnknownAddress(t *testing.T) {
	tbl := NewTable(&fakeRegistry{})
	if tbl.Evict(addr(3)) {
		t.Error("evicting unknown address reported success")
	}
}
