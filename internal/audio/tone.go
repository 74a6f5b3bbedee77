// ABOUTME: Test tone generator for relay pipelines
// ABOUTME: Produces a 1kHz sine at 16kHz mono 16-bit PCM
package audio

import "math"

// Default stream parameters shared by both relay roles. These match the
// phone-side capture format.
const (
	DefaultSampleRate    = 16000
	DefaultBitsPerSample = 16
	DefaultChannels      = 1
)

// ToneSource generates a continuous sine wave for loopback testing and the
// developer listen tool.
type ToneSource struct {
	sampleIndex uint64
	frequency   float64
	amplitude   float64
}

// NewToneSource creates a 1kHz tone generator at half amplitude.
func NewToneSource() *ToneSource {
	return &ToneSource{
		frequency: 1000.0,
		amplitude: 0.5,
	}
}

// Read fills buf with little-endian 16-bit samples and returns the number of
// bytes written (always an even count).
func (s *ToneSource) Read(buf []byte) int {
	numSamples := len(buf) / 2
	for i := 0; i < numSamples; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(DefaultSampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)
		pcm := int16(sample * 32767.0 * s.amplitude)
		buf[i*2] = byte(pcm)
		buf[i*2+1] = byte(pcm >> 8)
	}
	s.sampleIndex += uint64(numSamples)
	return numSamples * 2
}
