// ABOUTME: Coordinator role: phone audio fans out to the mesh, mesh audio
// ABOUTME: returns to the phone, membership and heartbeats run in one loop
package relay

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/audio"
	"github.com/wavemesh/wavemesh-go/internal/coalesce"
	"github.com/wavemesh/wavemesh-go/internal/mesh"
	"github.com/wavemesh/wavemesh-go/internal/phonelink"
	"github.com/wavemesh/wavemesh-go/internal/ring"
	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

// CoordinatorConfig configures a coordinator relay.
type CoordinatorConfig struct {
	DeviceName string
	Mesh       transport.Mesh
	Phone      phonelink.Link

	SampleRateHz  int // default 16000
	BitsPerSample int // default 16

	// Timing overrides, mainly for tests. Zero means the role default.
	DrainPeriod       time.Duration
	HeartbeatInterval time.Duration
	StatusInterval    time.Duration
	SweepInterval     time.Duration
	DeviceTimeout     time.Duration
	StatsInterval     time.Duration
}

// Coordinator owns the coordinator-side pipeline. The receive callbacks are
// the only producers into the two rings; everything else (table, coalescers,
// link protocol) is touched only by the Run loop.
type Coordinator struct {
	cfg   CoordinatorConfig
	mesh  transport.Mesh
	phone phonelink.Link
	table *mesh.Table
	stats Stats

	phoneIn *ring.Buffer[audio.Item] // phone writes -> mesh direction
	meshIn  *ring.Buffer[meshItem]   // mesh frames -> phone direction

	toMesh  *coalesce.Buffer
	toPhone *coalesce.Buffer

	controlCh chan inbound

	// membersSnap is the last membership snapshot the run loop published, so
	// the UI can read the table without touching run-loop state.
	membersSnap atomic.Pointer[[]mesh.Device]

	seq   uint32
	start time.Time
}

// NewCoordinator wires a coordinator and installs its transport callbacks.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = audio.DefaultSampleRate
	}
	if cfg.BitsPerSample == 0 {
		cfg.BitsPerSample = audio.DefaultBitsPerSample
	}
	if cfg.DrainPeriod == 0 {
		cfg.DrainPeriod = coordDrainPeriod
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = mesh.HeartbeatInterval
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = mesh.StatusInterval
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = mesh.SweepInterval
	}
	if cfg.DeviceTimeout == 0 {
		cfg.DeviceTimeout = mesh.DeviceTimeout
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = 10 * time.Second
	}

	phoneChunk := cfg.Phone.ChunkSize()
	if phoneChunk <= 0 {
		phoneChunk = phonelink.DefaultChunkSize
	}

	c := &Coordinator{
		cfg:     cfg,
		mesh:    cfg.Mesh,
		phone:   cfg.Phone,
		phoneIn: ring.New[audio.Item](coordRingSlots),
		meshIn:  ring.New[meshItem](clientRingSlots),
		toMesh: coalesce.New(coalesce.Config{
			Capacity:       meshCoalesceCap,
			LowWater:       flushLowWater,
			FlushPeriod:    meshFlushPeriod,
			ChunkSize:      meshChunkSize,
			FullChunksOnly: true,
		}),
		toPhone: coalesce.New(coalesce.Config{
			Capacity:    phoneCoalesceCap,
			LowWater:    flushLowWater,
			FlushPeriod: phoneFlushPeriod,
			MaxPerFlush: coordPhoneFlushCap,
			ChunkSize:   phoneChunk,
		}),
		controlCh: make(chan inbound, 32),
		start:     time.Now(),
	}
	c.table = mesh.NewTable(c.mesh)
	c.publishMembers()

	c.phone.SetWriteHandler(c.onPhoneWrite)
	c.mesh.SetReceiver(c.onMeshReceive)
	return c
}

// Stats exposes the pipeline counters.
func (c *Coordinator) Stats() *Stats { return &c.stats }

// Members returns the published membership snapshot. Safe from any
// goroutine.
func (c *Coordinator) Members() []mesh.Device { return *c.membersSnap.Load() }

func (c *Coordinator) publishMembers() {
	snap := c.table.Snapshot()
	c.membersSnap.Store(&snap)
}

// onPhoneWrite runs on the phone link's reader goroutine: parse, one ring
// push, nothing else. Every write is audio; nothing is discarded here.
func (c *Coordinator) onPhoneWrite(data []byte) {
	c.stats.PhoneFramesIn.Add(1)
	c.stats.PhoneBytesIn.Add(uint64(len(data)))

	if !c.phoneIn.Push(parsePhoneWrite(data)) {
		c.stats.RingDrops.Add(1)
	}
}

// onMeshReceive runs on the transport's receive goroutine. Audio goes through
// the ring; control messages are copied onto the control channel for the run
// loop.
func (c *Coordinator) onMeshReceive(from transport.Addr, data []byte) {
	c.stats.MeshFramesIn.Add(1)
	c.stats.MeshBytesIn.Add(uint64(len(data)))

	kind := wire.Classify(data)
	switch kind {
	case wire.KindControl:
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case c.controlCh <- inbound{from: from, data: cp}:
		default:
			c.stats.RingDrops.Add(1)
		}
	case wire.KindPing:
		// Liveness only.
	case wire.KindUnknown:
		c.stats.ParseErrors.Add(1)
	default:
		item, ok := parseAudioFrame(kind, data)
		if !ok {
			c.stats.ParseErrors.Add(1)
			return
		}
		if !c.meshIn.Push(meshItem{item: item, from: from}) {
			c.stats.RingDrops.Add(1)
		}
	}
}

// Run drives the coordinator until ctx is cancelled. It is the sole owner of
// the membership table and both coalescers.
func (c *Coordinator) Run(ctx context.Context) error {
	drain := time.NewTicker(c.cfg.DrainPeriod)
	defer drain.Stop()
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	status := time.NewTicker(c.cfg.StatusInterval)
	defer status.Stop()
	sweep := time.NewTicker(c.cfg.SweepInterval)
	defer sweep.Stop()
	statsLog := time.NewTicker(c.cfg.StatsInterval)
	defer statsLog.Stop()

	log.Printf("coordinator: running as %s (%s)", c.cfg.DeviceName, c.mesh.LocalAddr())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-drain.C:
			now := time.Now()
			c.drainPhone(now)
			c.drainMesh(now)

		case in := <-c.controlCh:
			c.handleControl(in, time.Now())

		case <-heartbeat.C:
			c.sendHeartbeat()

		case <-status.C:
			c.sendStatus(time.Now())

		case <-sweep.C:
			for _, d := range c.table.SweepTimeouts(time.Now(), c.cfg.DeviceTimeout) {
				c.stats.Evictions.Add(1)
				log.Printf("coordinator: evicted %s (%s) after timeout", d.Name, d.Addr)
			}
			c.publishMembers()

		case <-statsLog.C:
			s := c.stats.Snapshot()
			log.Printf("coordinator: phone in %d/%dB, mesh out %d/%dB, mesh in %d/%dB, drops %d, acks %d",
				s.PhoneFramesIn, s.PhoneBytesIn, s.MeshFramesOut, s.MeshBytesOut,
				s.MeshFramesIn, s.MeshBytesIn, s.RingDrops, s.AcksReceived)
		}
	}
}

// drainPhone moves phone audio toward the mesh: bounded pops, then the
// full-chunk flush policy.
func (c *Coordinator) drainPhone(now time.Time) {
	for i := 0; i < coordDrainCap; i++ {
		item, ok := c.phoneIn.Pop()
		if !ok {
			break
		}
		c.toMesh.Ingest(&item)
	}
	c.toMesh.FlushIfDue(now, func(chunk []byte, index, count int) {
		c.broadcastChunk(chunk, index, count, now, transport.Addr{})
	})
}

// drainMesh moves client audio toward the phone and relays it to the other
// active members.
func (c *Coordinator) drainMesh(now time.Time) {
	for i := 0; i < clientDrainCap; i++ {
		mi, ok := c.meshIn.Pop()
		if !ok {
			break
		}
		c.table.Touch(mi.from, now)
		c.toPhone.Ingest(&mi.item)
		c.relayItem(&mi, now)
	}
	c.toPhone.FlushIfDue(now, func(chunk []byte, index, count int) {
		if err := c.phone.Notify(chunk); err != nil {
			if err != phonelink.ErrNotConnected {
				log.Printf("coordinator: notify: %v", err)
			}
			return
		}
		c.stats.PhoneChunksOut.Add(1)
		c.stats.PhoneBytesOut.Add(uint64(len(chunk)))
	})
}

// relayItem re-frames one client's audio and fans it out to every other
// active member, the full-duplex path.
func (c *Coordinator) relayItem(mi *meshItem, now time.Time) {
	active := c.table.Active()
	if len(active) < 2 {
		return
	}
	bits := uint32(c.cfg.BitsPerSample)
	if mi.item.Format == audio.RawPcm8NeedsUpconvert {
		bits = 8
	}
	lo, hi := byteRange(mi.item.Bytes())
	frame := wire.EncodeCompact(wire.CompactHeader{
		Sequence:      mi.item.Sequence,
		ChunkIndex:    uint32(mi.item.Chunk),
		ChunkCount:    1,
		TimestampMs:   uint32(now.Sub(c.start).Milliseconds()),
		SampleRateHz:  uint32(c.cfg.SampleRateHz),
		BitsPerSample: bits,
		MinSample:     lo,
		MaxSample:     hi,
	}, mi.item.Bytes())
	for _, d := range active {
		if d.Addr == mi.from {
			continue
		}
		c.sendToMember(d.Addr, frame)
	}
}

// broadcastChunk frames one coalesced chunk and sends it to every active
// member except exclude.
func (c *Coordinator) broadcastChunk(chunk []byte, index, count int, now time.Time, exclude transport.Addr) {
	if index == 0 {
		c.seq++
	}
	lo, hi := byteRange(chunk)
	frame := wire.EncodeCompact(wire.CompactHeader{
		Sequence:      c.seq,
		ChunkIndex:    uint32(index),
		ChunkCount:    uint32(count),
		TimestampMs:   uint32(now.Sub(c.start).Milliseconds()),
		SampleRateHz:  uint32(c.cfg.SampleRateHz),
		BitsPerSample: uint32(c.cfg.BitsPerSample),
		MinSample:     lo,
		MaxSample:     hi,
	}, chunk)

	for _, d := range c.table.Active() {
		if d.Addr == exclude {
			continue
		}
		c.sendToMember(d.Addr, frame)
	}
}

// sendToMember sends one datagram, treating peer-gone errors as eviction
// evidence.
func (c *Coordinator) sendToMember(addr transport.Addr, frame []byte) {
	err := c.mesh.Send(addr, frame)
	if err == nil {
		c.stats.MeshFramesOut.Add(1)
		c.stats.MeshBytesOut.Add(uint64(len(frame)))
		return
	}
	c.stats.SendFailures.Add(1)
	if deadPeer(err) {
		if c.table.Evict(addr) {
			c.stats.Evictions.Add(1)
			c.publishMembers()
			log.Printf("coordinator: evicted %s after send failure: %v", addr, err)
		}
		return
	}
	log.Printf("coordinator: send to %s: %v", addr, err)
}

// handleControl runs the membership protocol.
func (c *Coordinator) handleControl(in inbound, now time.Time) {
	msg, err := wire.DecodeControl(in.data)
	if err != nil {
		c.stats.ParseErrors.Add(1)
		log.Printf("coordinator: control from %s: %v", in.from, err)
		return
	}

	switch m := msg.(type) {
	case wire.MeshJoin:
		admitted := c.table.Admit(in.from, m.DeviceName, m.DeviceType, now)
		status := wire.StatusJoined
		if !admitted {
			status = wire.StatusFailed
		}
		ack, err := wire.EncodeControl(wire.MeshAck{Status: status})
		if err != nil {
			log.Printf("coordinator: encode ack: %v", err)
			return
		}
		if admitted {
			c.sendToMember(in.from, ack)
			log.Printf("coordinator: admitted %s (%s) from %s", m.DeviceName, m.DeviceType, in.from)
		} else {
			// The refusal goes out on a transient registration, since a full
			// table never registered the sender.
			if err := c.mesh.AddPeer(in.from); err == nil {
				if err := c.mesh.Send(in.from, ack); err != nil {
					log.Printf("coordinator: refuse %s: %v", in.from, err)
				}
				c.mesh.RemovePeer(in.from)
			}
			log.Printf("coordinator: refused %s, table full", in.from)
		}

	case wire.MeshReady:
		if c.table.MarkReady(in.from, now) {
			log.Printf("coordinator: %s is ready", in.from)
		}

	case wire.MeshHeartbeat:
		c.table.Touch(in.from, now)

	case wire.MeshLeave:
		if c.table.Evict(in.from) {
			c.stats.Evictions.Add(1)
			log.Printf("coordinator: %s left", in.from)
		}

	case wire.AudioAck:
		c.stats.AcksReceived.Add(1)
		c.table.Touch(in.from, now)

	default:
		// mesh_ack / mesh_status are coordinator-emitted; arriving here they
		// are a peer misbehaving.
		c.stats.ParseErrors.Add(1)
	}
	c.publishMembers()
}

// sendHeartbeat beacons liveness to every active member.
func (c *Coordinator) sendHeartbeat() {
	active := c.table.Active()
	hb, err := wire.EncodeControl(wire.MeshHeartbeat{
		Devices: len(active),
		Mac:     c.mesh.LocalAddr().String(),
	})
	if err != nil {
		log.Printf("coordinator: encode heartbeat: %v", err)
		return
	}
	for _, d := range active {
		c.sendToMember(d.Addr, hb)
	}
}

// sendStatus broadcasts a membership summary, at most two device rows per
// message so it stays inside the datagram limit.
func (c *Coordinator) sendStatus(now time.Time) {
	snapshot := c.table.Snapshot()
	rows := make([]wire.DeviceStatus, 0, 2)
	for _, d := range snapshot {
		if len(rows) == 2 {
			break
		}
		rows = append(rows, wire.DeviceStatus{
			Name:     d.Name,
			DevType:  d.DevType,
			Mac:      d.Addr.String(),
			LastSeen: int64(now.Sub(d.LastSeen).Seconds()),
			Quality:  d.Quality,
		})
	}
	msg, err := wire.EncodeControl(wire.MeshStatus{
		TotalDevices: len(snapshot),
		Devices:      rows,
	})
	if err != nil {
		log.Printf("coordinator: encode status: %v", err)
		return
	}
	for _, d := range c.table.Active() {
		c.sendToMember(d.Addr, msg)
	}
}
