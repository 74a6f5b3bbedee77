// ABOUTME: Pipeline statistics counters shared by both relay roles
// ABOUTME: Atomic so hot paths can count without coordination
package relay

import "sync/atomic"

// Stats counts pipeline traffic. All fields are updated atomically; any
// goroutine may read a snapshot.
type Stats struct {
	PhoneFramesIn  atomic.Uint64
	PhoneBytesIn   atomic.Uint64
	PhoneChunksOut atomic.Uint64
	PhoneBytesOut  atomic.Uint64

	MeshFramesIn  atomic.Uint64
	MeshBytesIn   atomic.Uint64
	MeshFramesOut atomic.Uint64
	MeshBytesOut  atomic.Uint64

	RingDrops    atomic.Uint64
	ParseErrors  atomic.Uint64
	SendFailures atomic.Uint64
	Evictions    atomic.Uint64
	AcksSent     atomic.Uint64
	AcksReceived atomic.Uint64
}

// Snapshot is a plain-value copy of the counters for logging and the UI.
type Snapshot struct {
	PhoneFramesIn  uint64
	PhoneBytesIn   uint64
	PhoneChunksOut uint64
	PhoneBytesOut  uint64

	MeshFramesIn  uint64
	MeshBytesIn   uint64
	MeshFramesOut uint64
	MeshBytesOut  uint64

	RingDrops    uint64
	ParseErrors  uint64
	SendFailures uint64
	Evictions    uint64
	AcksSent     uint64
	AcksReceived uint64
}

// Snapshot reads every counter once.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PhoneFramesIn:  s.PhoneFramesIn.Load(),
		PhoneBytesIn:   s.PhoneBytesIn.Load(),
		PhoneChunksOut: s.PhoneChunksOut.Load(),
		PhoneBytesOut:  s.PhoneBytesOut.Load(),
		MeshFramesIn:   s.MeshFramesIn.Load(),
		MeshBytesIn:    s.MeshBytesIn.Load(),
		MeshFramesOut:  s.MeshFramesOut.Load(),
		MeshBytesOut:   s.MeshBytesOut.Load(),
		RingDrops:      s.RingDrops.Load(),
		ParseErrors:    s.ParseErrors.Load(),
		SendFailures:   s.SendFailures.Load(),
		Evictions:      s.Evictions.Load(),
		AcksSent:       s.AcksSent.Load(),
		AcksReceived:   s.AcksReceived.Load(),
	}
}
