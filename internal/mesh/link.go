// ABOUTME: Client-side link state machine for joining a coordinator
// ABOUTME: Join attempts with backoff, ready handshake, heartbeat liveness
package mesh

import (
	"log"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

// LinkState enumerates the client's view of its coordinator link.
type LinkState int

const (
	// StateDisconnected: no link; periodic join attempts run.
	StateDisconnected LinkState = iota
	// StateJoining: a join request is out, awaiting the acknowledgment.
	StateJoining
	// StateConnected: handshake complete, heartbeats expected.
	StateConnected
	// StateFailed: join attempts exhausted; no automatic retry.
	StateFailed
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LinkSender is the transport surface the link needs.
type LinkSender interface {
	PeerRegistry
	Send(to transport.Addr, data []byte) error
	LocalAddr() transport.Addr
}

// LinkConfig parameterizes a Link.
type LinkConfig struct {
	DeviceName string
	DeviceType string
	// Candidates are coordinator addresses to try joining, in order.
	Candidates []transport.Addr

	RetryInterval    time.Duration // default JoinRetryInterval
	MaxAttempts      int           // default MaxJoinAttempts
	HeartbeatTimeout time.Duration // default DeviceTimeout
}

// Link drives the client side of the join/heartbeat protocol. It is owned by
// the relay control loop; Tick and the Handle methods must be called from
// that one goroutine.
type Link struct {
	cfg  LinkConfig
	mesh LinkSender

	state       LinkState
	coordinator transport.Addr
	attempts    int

	lastAttempt   time.Time
	lastHeartbeat time.Time
}

// NewLink creates a link in the disconnected state.
func NewLink(mesh LinkSender, cfg LinkConfig) *Link {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = JoinRetryInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = MaxJoinAttempts
	}
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = DeviceTimeout
	}
	return &Link{cfg: cfg, mesh: mesh}
}

// State returns the current link state.
func (l *Link) State() LinkState { return l.state }

// Coordinator returns the address of the joined coordinator; zero unless
// connected.
func (l *Link) Coordinator() transport.Addr { return l.coordinator }

// Attempts reports consumed join attempts.
func (l *Link) Attempts() int { return l.attempts }

// AddCandidate appends a coordinator address discovered at runtime.
func (l *Link) AddCandidate(addr transport.Addr) {
	for _, c := range l.cfg.Candidates {
		if c == addr {
			return
		}
	}
	l.cfg.Candidates = append(l.cfg.Candidates, addr)
}

// Tick advances the state machine: fires join attempts while disconnected
// and declares the link dead when heartbeats stop.
func (l *Link) Tick(now time.Time) {
	switch l.state {
	case StateDisconnected, StateJoining:
		if now.Sub(l.lastAttempt) < l.cfg.RetryInterval && !l.lastAttempt.IsZero() {
			return
		}
		if l.attempts >= l.cfg.MaxAttempts {
			if l.state != StateFailed {
				log.Printf("link: %d join attempts exhausted, giving up", l.attempts)
			}
			l.state = StateFailed
			return
		}
		l.sendJoin(now)

	case StateConnected:
		if now.Sub(l.lastHeartbeat) > l.cfg.HeartbeatTimeout {
			log.Printf("link: coordinator %s heartbeat timeout, disconnecting", l.coordinator)
			if err := l.mesh.RemovePeer(l.coordinator); err != nil {
				log.Printf("link: remove peer %s: %v", l.coordinator, err)
			}
			l.coordinator = transport.Addr{}
			l.state = StateDisconnected
		}

	case StateFailed:
		// Parked; external intervention (Reset) required.
	}
}

// sendJoin transmits a join request to every candidate coordinator. Peers
// are registered only for the duration of the send; the durable registration
// happens when an acknowledgment arrives.
func (l *Link) sendJoin(now time.Time) {
	l.lastAttempt = now
	l.attempts++
	l.state = StateJoining

	msg, err := wire.EncodeControl(wire.MeshJoin{
		DeviceName: l.cfg.DeviceName,
		DeviceType: l.cfg.DeviceType,
		Mac:        l.mesh.LocalAddr().String(),
	})
	if err != nil {
		log.Printf("link: encode join: %v", err)
		return
	}

	sent := 0
	for _, candidate := range l.cfg.Candidates {
		if err := l.mesh.AddPeer(candidate); err != nil {
			continue
		}
		if err := l.mesh.Send(candidate, msg); err == nil {
			sent++
		}
		if err := l.mesh.RemovePeer(candidate); err != nil {
			log.Printf("link: remove candidate %s: %v", candidate, err)
		}
	}
	log.Printf("link: join attempt %d/%d sent to %d candidate(s)",
		l.attempts, l.cfg.MaxAttempts, sent)
}

// HandleAck processes a mesh_ack from a coordinator. On "joined" the sender
// becomes a durable peer, a ready confirmation goes back, and the link is
// connected. On "failed" the link falls back to disconnected.
func (l *Link) HandleAck(from transport.Addr, ack wire.MeshAck, now time.Time) {
	switch ack.Status {
	case wire.StatusJoined:
		if l.state == StateConnected && from == l.coordinator {
			l.lastHeartbeat = now // idempotent re-ack
			return
		}
		if err := l.mesh.AddPeer(from); err != nil {
			log.Printf("link: register coordinator %s: %v", from, err)
			return
		}
		ready, err := wire.EncodeControl(wire.MeshReady{Source: l.cfg.DeviceName})
		if err != nil {
			log.Printf("link: encode ready: %v", err)
			return
		}
		if err := l.mesh.Send(from, ready); err != nil {
			log.Printf("link: send ready to %s: %v", from, err)
		}
		l.coordinator = from
		l.state = StateConnected
		l.lastHeartbeat = now
		l.attempts = 0
		log.Printf("link: joined coordinator %s", from)

	case wire.StatusFailed:
		log.Printf("link: coordinator %s refused join", from)
		l.state = StateDisconnected

	default:
		log.Printf("link: ignoring ack with status %q", ack.Status)
	}
}

// HandleHeartbeat refreshes the liveness clock when the joined coordinator
// beacons. Heartbeats from anyone else are ignored.
func (l *Link) HandleHeartbeat(from transport.Addr, now time.Time) {
	if l.state == StateConnected && from == l.coordinator {
		l.lastHeartbeat = now
	}
}

// Reset clears the failed state and re-arms join attempts; the external
// intervention hook. The coordinator address is cleared too, so Coordinator
// stays zero unless connected.
func (l *Link) Reset() {
	l.state = StateDisconnected
	l.coordinator = transport.Addr{}
	l.attempts = 0
	l.lastAttempt = time.Time{}
}
