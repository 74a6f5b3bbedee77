// ABOUTME: Tests for the client link state machine
// ABOUTME: Join pacing, attempt exhaustion, ack handling, heartbeat liveness
package mesh

import (
	"testing"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

// fakeMesh records transport calls made by the link.
type fakeMesh struct {
	local    transport.Addr
	peers    map[transport.Addr]bool
	sent     []sentMsg
	failSend bool
}

type sentMsg struct {
	to   transport.Addr
	data []byte
}

func newFakeMesh(local transport.Addr) *fakeMesh {
	return &fakeMesh{local: local, peers: make(map[transport.Addr]bool)}
}

func (f *fakeMesh) LocalAddr() transport.Addr { return f.local }

func (f *fakeMesh) AddPeer(a transport.Addr) error {
	f.peers[a] = true
	return nil
}

func (f *fakeMesh) RemovePeer(a transport.Addr) error {
	if !f.peers[a] {
		return transport.ErrPeerNotFound
	}
	delete(f.peers, a)
	return nil
}

func (f *fakeMesh) Send(to transport.Addr, data []byte) error {
	if f.failSend {
		return transport.ErrPeerNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, sentMsg{to: to, data: cp})
	return nil
}

// lastControl decodes the most recent message sent to a given address.
func (f *fakeMesh) lastControl(t *testing.T, to transport.Addr) wire.Control {
	t.Helper()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].to == to {
			msg, err := wire.DecodeControl(f.sent[i].data)
			if err != nil {
				t.Fatalf("decode sent message: %v", err)
			}
			return msg
		}
	}
	t.Fatalf("nothing sent to %s", to)
	return nil
}

func testLink(mesh *fakeMesh, coord transport.Addr) *Link {
	return NewLink(mesh, LinkConfig{
		DeviceName: "client-1",
		DeviceType: "audio_client",
		Candidates: []transport.Addr{coord},
	})
}

func TestLinkJoinAttemptPacing(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	if link.State() != StateJoining {
		t.Fatalf("state %s after first tick, want joining", link.State())
	}
	if link.Attempts() != 1 {
		t.Fatalf("attempts = %d, want 1", link.Attempts())
	}
	join, ok := mesh.lastControl(t, coord).(wire.MeshJoin)
	if !ok {
		t.Fatal("first message is not a join request")
	}
	if join.Mac != mesh.local.String() {
		t.Errorf("join carries mac %q, want %q", join.Mac, mesh.local.String())
	}

	// Ticks inside the retry interval must not fire another attempt.
	link.Tick(t0.Add(JoinRetryInterval / 2))
	if link.Attempts() != 1 {
		t.Errorf("attempt fired inside retry interval")
	}

	link.Tick(t0.Add(JoinRetryInterval + time.Second))
	if link.Attempts() != 2 {
		t.Errorf("attempts = %d after retry interval, want 2", link.Attempts())
	}

	// Candidate registrations are transient; no durable peer yet.
	if len(mesh.peers) != 0 {
		t.Errorf("join left %d durable peers", len(mesh.peers))
	}
}

func TestLinkParksAfterMaxAttempts(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)

	now := time.Now()
	for i := 0; i < MaxJoinAttempts; i++ {
		link.Tick(now)
		now = now.Add(JoinRetryInterval + time.Second)
	}
	if link.Attempts() != MaxJoinAttempts {
		t.Fatalf("attempts = %d, want %d", link.Attempts(), MaxJoinAttempts)
	}

	link.Tick(now)
	if link.State() != StateFailed {
		t.Fatalf("state %s after exhausting attempts, want failed", link.State())
	}

	// Parked means parked: more time does not revive it.
	sends := len(mesh.sent)
	link.Tick(now.Add(time.Hour))
	if len(mesh.sent) != sends {
		t.Error("parked link sent another join")
	}

	link.Reset()
	if link.State() != StateDisconnected {
		t.Fatalf("state %s after reset, want disconnected", link.State())
	}
	link.Tick(now.Add(2 * time.Hour))
	if len(mesh.sent) != sends+1 {
		t.Error("reset did not re-arm join attempts")
	}
}

func TestLinkAckJoined(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusJoined}, t0.Add(time.Second))

	if link.State() != StateConnected {
		t.Fatalf("state %s after joined ack, want connected", link.State())
	}
	if link.Coordinator() != coord {
		t.Errorf("coordinator = %s, want %s", link.Coordinator(), coord)
	}
	if !mesh.peers[coord] {
		t.Error("coordinator not registered as durable peer")
	}
	if _, ok := mesh.lastControl(t, coord).(wire.MeshReady); !ok {
		t.Error("no ready confirmation sent after joined ack")
	}
	if link.Attempts() != 0 {
		t.Errorf("attempts = %d after connect, want 0", link.Attempts())
	}
}

func TestLinkAckFailed(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusFailed}, t0.Add(time.Second))

	if link.State() != StateDisconnected {
		t.Fatalf("state %s after failed ack, want disconnected", link.State())
	}
	if len(mesh.peers) != 0 {
		t.Error("failed ack left a durable peer")
	}
}

func TestLinkHeartbeatKeepsAlive(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusJoined}, t0)

	// Heartbeats inside the timeout window keep the link up.
	hb := t0
	for i := 0; i < 10; i++ {
		hb = hb.Add(HeartbeatInterval)
		link.HandleHeartbeat(coord, hb)
		link.Tick(hb)
	}
	if link.State() != StateConnected {
		t.Fatalf("state %s with regular heartbeats, want connected", link.State())
	}

	// A heartbeat from a stranger must not refresh the clock.
	link.HandleHeartbeat(addr(0xEE), hb.Add(DeviceTimeout))
	link.Tick(hb.Add(DeviceTimeout + time.Second))
	if link.State() != StateDisconnected {
		t.Fatalf("state %s after heartbeat silence, want disconnected", link.State())
	}
	if mesh.peers[coord] {
		t.Error("dead coordinator still registered as peer")
	}
	if !link.Coordinator().IsZero() {
		t.Error("coordinator address not cleared on disconnect")
	}
}

func TestLinkReAckIsIdempotent(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusJoined}, t0)
	readies := 0
	for _, m := range mesh.sent {
		if c, err := wire.DecodeControl(m.data); err == nil {
			if _, ok := c.(wire.MeshReady); ok {
				readies++
			}
		}
	}

	// A duplicate ack refreshes liveness but does not redo the handshake.
	t1 := t0.Add(20 * time.Second)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusJoined}, t1)
	again := 0
	for _, m := range mesh.sent {
		if c, err := wire.DecodeControl(m.data); err == nil {
			if _, ok := c.(wire.MeshReady); ok {
				again++
			}
		}
	}
	if again != readies {
		t.Error("duplicate ack re-sent the ready confirmation")
	}

	// The refresh must push the heartbeat deadline out.
	link.Tick(t1.Add(DeviceTimeout - time.Second))
	if link.State() != StateConnected {
		t.Error("duplicate ack did not refresh liveness")
	}
}

func TestLinkResetClearsCoordinator(t *testing.T) {
	coord := addr(0xC0)
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, coord)
	t0 := time.Now()

	link.Tick(t0)
	link.HandleAck(coord, wire.MeshAck{Status: wire.StatusJoined}, t0)
	if link.Coordinator() != coord {
		t.Fatalf("coordinator = %s after join, want %s", link.Coordinator(), coord)
	}

	link.Reset()
	if link.State() != StateDisconnected {
		t.Fatalf("state %s after reset, want disconnected", link.State())
	}
	if !link.Coordinator().IsZero() {
		t.Error("reset left a stale coordinator address")
	}
}

func TestLinkAddCandidateDedup(t *testing.T) {
	mesh := newFakeMesh(addr(1))
	link := testLink(mesh, addr(0xC0))

	link.AddCandidate(addr(0xC0))
	link.AddCandidate(addr(0xC1))
	link.AddCandidate(addr(0xC1))
	if n := len(link.cfg.Candidates); n != 2 {
		t.Errorf("candidate list has %d entries, want 2", n)
	}
}
