// ABOUTME: Client role: mesh audio flows to the phone with per-chunk acks,
// ABOUTME: phone audio flows back to the coordinator, link upkeep in one loop
package relay

import (
	"context"
	"log"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/audio"
	"github.com/wavemesh/wavemesh-go/internal/coalesce"
	"github.com/wavemesh/wavemesh-go/internal/mesh"
	"github.com/wavemesh/wavemesh-go/internal/phonelink"
	"github.com/wavemesh/wavemesh-go/internal/ring"
	"github.com/wavemesh/wavemesh-go/internal/transport"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

// ClientConfig configures a client relay.
type ClientConfig struct {
	DeviceName string
	DeviceType string
	Mesh       transport.Mesh
	Phone      phonelink.Link

	// Coordinators are candidate addresses to join; discovery can add more
	// at runtime through AddCoordinator.
	Coordinators []transport.Addr

	SampleRateHz  int
	BitsPerSample int

	// Timing overrides, mainly for tests. Zero means the role default.
	NotifyPeriod  time.Duration
	LinkTick      time.Duration
	StatsInterval time.Duration

	JoinRetryInterval time.Duration
	MaxJoinAttempts   int
}

// Client owns the client-side pipeline. Mesh receive and phone write
// callbacks are the ring producers; the Run loop is the consumer and the sole
// owner of the link state machine.
type Client struct {
	cfg   ClientConfig
	mesh  transport.Mesh
	phone phonelink.Link
	link  *mesh.Link
	stats Stats

	meshIn  *ring.Buffer[meshItem]   // mesh frames -> phone direction
	phoneIn *ring.Buffer[audio.Item] // phone writes -> mesh direction

	toPhone *coalesce.Buffer
	toMesh  *coalesce.Buffer

	controlCh   chan inbound
	candidateCh chan transport.Addr
	seq         uint32
	start       time.Time
}

// NewClient wires a client and installs its transport callbacks.
func NewClient(cfg ClientConfig) *Client {
	if cfg.DeviceType == "" {
		cfg.DeviceType = "audio_client"
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = audio.DefaultSampleRate
	}
	if cfg.BitsPerSample == 0 {
		cfg.BitsPerSample = audio.DefaultBitsPerSample
	}
	if cfg.NotifyPeriod == 0 {
		cfg.NotifyPeriod = clientNotifyPeriod
	}
	if cfg.LinkTick == 0 {
		cfg.LinkTick = linkTickPeriod
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = 30 * time.Second
	}

	phoneChunk := cfg.Phone.ChunkSize()
	if phoneChunk <= 0 {
		phoneChunk = phonelink.DefaultChunkSize
	}

	c := &Client{
		cfg:     cfg,
		mesh:    cfg.Mesh,
		phone:   cfg.Phone,
		meshIn:  ring.New[meshItem](clientRingSlots),
		phoneIn: ring.New[audio.Item](coordRingSlots),
		toPhone: coalesce.New(coalesce.Config{
			Capacity:    phoneCoalesceCap,
			LowWater:    flushLowWater,
			FlushPeriod: phoneFlushPeriod,
			MaxPerFlush: clientPhoneFlushCap,
			ChunkSize:   phoneChunk,
		}),
		toMesh: coalesce.New(coalesce.Config{
			Capacity:       meshCoalesceCap,
			LowWater:       flushLowWater,
			FlushPeriod:    meshFlushPeriod,
			ChunkSize:      meshChunkSize,
			FullChunksOnly: true,
		}),
		controlCh:   make(chan inbound, 32),
		candidateCh: make(chan transport.Addr, 8),
		start:       time.Now(),
	}
	c.link = mesh.NewLink(c.mesh, mesh.LinkConfig{
		DeviceName:       cfg.DeviceName,
		DeviceType:       cfg.DeviceType,
		Candidates:       cfg.Coordinators,
		RetryInterval:    cfg.JoinRetryInterval,
		MaxAttempts:      cfg.MaxJoinAttempts,
		HeartbeatTimeout: mesh.DeviceTimeout,
	})

	c.phone.SetWriteHandler(c.onPhoneWrite)
	c.mesh.SetReceiver(c.onMeshReceive)
	return c
}

// Stats exposes the pipeline counters.
func (c *Client) Stats() *Stats { return &c.stats }

// LinkState reports the join state machine's state. Advisory outside the Run
// goroutine.
func (c *Client) LinkState() mesh.LinkState { return c.link.State() }

// AddCoordinator feeds a discovered coordinator address to the link. Safe
// from any goroutine.
func (c *Client) AddCoordinator(addr transport.Addr) {
	select {
	case c.candidateCh <- addr:
	default:
	}
}

// onPhoneWrite runs on the phone link's reader goroutine. Every write is
// audio; nothing is discarded here.
func (c *Client) onPhoneWrite(data []byte) {
	c.stats.PhoneFramesIn.Add(1)
	c.stats.PhoneBytesIn.Add(uint64(len(data)))

	if !c.phoneIn.Push(parsePhoneWrite(data)) {
		c.stats.RingDrops.Add(1)
	}
}

// onMeshReceive runs on the transport's receive goroutine.
func (c *Client) onMeshReceive(from transport.Addr, data []byte) {
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

// Run drives the client until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	notify := time.NewTicker(c.cfg.NotifyPeriod)
	defer notify.Stop()
	linkTick := time.NewTicker(c.cfg.LinkTick)
	defer linkTick.Stop()
	statsLog := time.NewTicker(c.cfg.StatsInterval)
	defer statsLog.Stop()

	log.Printf("client: running as %s (%s)", c.cfg.DeviceName, c.mesh.LocalAddr())

	// First join attempt fires immediately rather than a retry interval out.
	c.link.Tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-notify.C:
			now := time.Now()
			c.drainMesh(now)
			c.drainPhone(now)

		case in := <-c.controlCh:
			c.handleControl(in, time.Now())

		case addr := <-c.candidateCh:
			c.link.AddCandidate(addr)

		case <-linkTick.C:
			c.link.Tick(time.Now())

		case <-statsLog.C:
			s := c.stats.Snapshot()
			log.Printf("client: mesh in %d/%dB, phone out %d/%dB, phone in %d/%dB, drops %d, acks sent %d, link %s",
				s.MeshFramesIn, s.MeshBytesIn, s.PhoneChunksOut, s.PhoneBytesOut,
				s.PhoneFramesIn, s.PhoneBytesIn, s.RingDrops, s.AcksSent, c.link.State())
		}
	}
}

// drainMesh moves relayed audio to the phone, acknowledging each item on the
// way out of the ring.
func (c *Client) drainMesh(now time.Time) {
	for i := 0; i < clientDrainCap; i++ {
		mi, ok := c.meshIn.Pop()
		if !ok {
			break
		}
		c.ackItem(&mi)
		c.toPhone.Ingest(&mi.item)
	}
	c.toPhone.FlushIfDue(now, func(chunk []byte, index, count int) {
		if err := c.phone.Notify(chunk); err != nil {
			if err != phonelink.ErrNotConnected {
				log.Printf("client: notify: %v", err)
			}
			return
		}
		c.stats.PhoneChunksOut.Add(1)
		c.stats.PhoneBytesOut.Add(uint64(len(chunk)))
	})
}

// drainPhone moves phone audio toward the coordinator.
func (c *Client) drainPhone(now time.Time) {
	for i := 0; i < coordDrainCap; i++ {
		item, ok := c.phoneIn.Pop()
		if !ok {
			break
		}
		c.toMesh.Ingest(&item)
	}
	if c.link.State() != mesh.StateConnected {
		// Nothing to send to; let the buffer drop excess and keep counting.
		c.toMesh.FlushIfDue(now, func(chunk []byte, index, count int) {})
		return
	}
	coord := c.link.Coordinator()
	c.toMesh.FlushIfDue(now, func(chunk []byte, index, count int) {
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
		if err := c.mesh.Send(coord, frame); err != nil {
			c.stats.SendFailures.Add(1)
			if deadPeer(err) {
				log.Printf("client: coordinator %s unreachable: %v", coord, err)
				c.link.Reset()
			}
			return
		}
		c.stats.MeshFramesOut.Add(1)
		c.stats.MeshBytesOut.Add(uint64(len(frame)))
	})
}

// ackItem acknowledges one relayed chunk back to its sender.
func (c *Client) ackItem(mi *meshItem) {
	if c.link.State() != mesh.StateConnected || mi.from != c.link.Coordinator() {
		return
	}
	ack, err := wire.EncodeControl(wire.AudioAck{
		Sequence: mi.item.Sequence,
		Chunk:    mi.item.Chunk,
		Status:   wire.StatusReceived,
	})
	if err != nil {
		return
	}
	if err := c.mesh.Send(mi.from, ack); err != nil {
		c.stats.SendFailures.Add(1)
		return
	}
	c.stats.AcksSent.Add(1)
}

// handleControl routes link-layer messages into the state machine.
func (c *Client) handleControl(in inbound, now time.Time) {
	msg, err := wire.DecodeControl(in.data)
	if err != nil {
		c.stats.ParseErrors.Add(1)
		log.Printf("client: control from %s: %v", in.from, err)
		return
	}

	switch m := msg.(type) {
	case wire.MeshAck:
		c.link.HandleAck(in.from, m, now)
	case wire.MeshHeartbeat:
		c.link.HandleHeartbeat(in.from, now)
	case wire.MeshStatus:
		log.Printf("client: mesh status: %d device(s)", m.TotalDevices)
	case wire.MeshLeave:
		if in.from == c.link.Coordinator() {
			log.Printf("client: coordinator %s left", in.from)
			c.mesh.RemovePeer(in.from)
			c.link.Reset()
		}
	default:
		// join/ready/audio_ack flow toward the coordinator, not from it.
		c.stats.ParseErrors.Add(1)
	}
}
