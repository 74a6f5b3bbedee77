// ABOUTME: PCM playback sink built on oto
// ABOUTME: Feeds a continuous player from a queue, silence when underrun
package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Sink plays a continuous little-endian 16-bit PCM stream. Chunks pushed via
// Write are queued; the device reads silence when the queue underruns so
// playback never stalls.
type Sink struct {
	ctx    context.Context
	cancel context.CancelFunc

	otoCtx *oto.Context
	player *oto.Player
	queue  *pcmQueue

	mu     sync.Mutex
	volume int
	muted  bool
	ready  bool
}

// NewSink creates an uninitialized sink with full volume.
func NewSink() *Sink {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		ctx:    ctx,
		cancel: cancel,
		queue:  newPcmQueue(64 * 1024),
		volume: 100,
	}
}

// Initialize opens the audio device.
func (s *Sink) Initialize(sampleRate, channels int) error {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	s.otoCtx = ctx
	s.player = ctx.NewPlayer(s.queue)
	s.player.Play()
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	log.Printf("Audio output initialized: %dHz, %d channel(s)", sampleRate, channels)
	return nil
}

// Write queues one PCM chunk for playback, applying volume on the way in.
func (s *Sink) Write(pcm []byte) error {
	s.mu.Lock()
	ready := s.ready
	volume := s.volume
	muted := s.muted
	s.mu.Unlock()
	if !ready {
		return fmt.Errorf("sink not initialized")
	}

	scaled := applyVolume(pcm, volume, muted)
	s.queue.Push(scaled)
	return nil
}

// SetVolume sets the volume (0-100).
func (s *Sink) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
}

// SetMuted sets mute state.
func (s *Sink) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// Close stops playback.
func (s *Sink) Close() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	if s.player != nil {
		s.player.Close()
	}
	if s.otoCtx != nil {
		s.otoCtx.Suspend()
	}
	s.cancel()
}

// applyVolume scales 16-bit LE samples. A fresh slice is returned; the input
// is not modified.
func applyVolume(pcm []byte, volume int, muted bool) []byte {
	out := make([]byte, len(pcm)&^1)
	if muted || volume == 0 {
		return out
	}
	if volume == 100 {
		copy(out, pcm)
		return out
	}
	mult := float64(volume) / 100.0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(sample)*mult)))
	}
	return out
}

// pcmQueue is the reader the device pulls from: queued bytes first, zeros
// (silence) when empty. Bounded; the oldest bytes are discarded on overflow
// to keep latency from growing without limit.
type pcmQueue struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func newPcmQueue(capacity int) *pcmQueue {
	return &pcmQueue{cap: capacity}
}

// Push appends pcm, discarding the oldest bytes if the queue would overflow.
func (q *pcmQueue) Push(pcm []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, pcm...)
	if over := len(q.buf) - q.cap; over > 0 {
		q.buf = q.buf[over:]
	}
}

// Read satisfies io.Reader for the device. Never returns 0 bytes or an
// error; underruns read as silence.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	q.mu.Unlock()

	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// Len reports queued bytes.
func (q *pcmQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
