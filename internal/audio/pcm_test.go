// ABOUTME: Tests for PCM upconversion and u-law companding
// ABOUTME: Verifies the fixed sample mappings the client relies on
package audio

import "testing"

func TestUpconvertPcm8Mappings(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want int16
	}{
		{"mid-scale maps to zero", 0x80, 0},
		{"zero maps to most negative", 0x00, -128 << 8},
		{"full-scale maps to most positive", 0xFF, 127 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, 2)
			n := UpconvertPcm8(dst, []byte{tt.in})
			if n != 2 {
				t.Fatalf("converted %d bytes, want 2", n)
			}
			got := int16(uint16(dst[0]) | uint16(dst[1])<<8)
			if got != tt.want {
				t.Errorf("sample 0x%02X -> %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestUpconvertPcm8StopsAtDstCapacity(t *testing.T) {
	src := []byte{0x10, 0x20, 0x30}
	dst := make([]byte, 4) // room for two samples only

	n := UpconvertPcm8(dst, src)
	if n != 4 {
		t.Errorf("converted %d bytes, want 4", n)
	}
}

func TestUpconvertPcm8Ordering(t *testing.T) {
	src := []byte{0x00, 0x80, 0xFF}
	dst := make([]byte, 6)
	UpconvertPcm8(dst, src)

	want := []int16{-128 << 8, 0, 127 << 8}
	for i, w := range want {
		got := int16(uint16(dst[i*2]) | uint16(dst[i*2+1])<<8)
		if got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestUlawRoundTrip(t *testing.T) {
	// u-law is lossy; verify the reconstruction stays within one quantization
	// step of the original across the usable range.
	for _, pcm := range []int16{0, 100, -100, 1000, -1000, 8000, -8000, 16384, -16384, 32000, -32000} {
		u := LinearToUlaw(pcm)
		back := UlawToLinear(u)

		diff := int32(pcm) - int32(back)
		if diff < 0 {
			diff = -diff
		}
		// Worst-case step in the top segment is 1024 after the >>2 scaling.
		if diff > 4096 {
			t.Errorf("sample %d: round-trip gave %d (diff %d)", pcm, back, diff)
		}
	}
}

func TestUlawZeroIsQuiet(t *testing.T) {
	u := LinearToUlaw(0)
	back := UlawToLinear(u)
	if back > 64 || back < -64 {
		t.Errorf("silence encodes to %d, want near zero", back)
	}
}

func TestCompandExpandBufferRoundTrip(t *testing.T) {
	// Encode a swept PCM16 buffer and expand it back; every reconstructed
	// sample stays within one quantization step, same bound as the scalar
	// round-trip test.
	src := make([]byte, 40)
	for i := 0; i < 20; i++ {
		s := int16(i*3000 - 30000)
		src[i*2] = byte(s)
		src[i*2+1] = byte(s >> 8)
	}

	ulaw := make([]byte, 20)
	if n := CompandUlaw(ulaw, src); n != 20 {
		t.Fatalf("companded %d bytes, want 20", n)
	}

	back := make([]byte, 40)
	if n := ExpandUlaw(back, ulaw); n != 40 {
		t.Fatalf("expanded %d bytes, want 40", n)
	}

	for i := 0; i < 20; i++ {
		orig := int16(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
		got := int16(uint16(back[i*2]) | uint16(back[i*2+1])<<8)
		diff := int32(orig) - int32(got)
		if diff < 0 {
			diff = -diff
		}
		if diff > 4096 {
			t.Errorf("sample %d: %d round-tripped to %d", i, orig, got)
		}
	}
}

func TestCompandExpandStopAtDstCapacity(t *testing.T) {
	src := []byte{0x00, 0x10, 0x00, 0x20, 0x00, 0x30}
	dst := make([]byte, 2)
	if n := CompandUlaw(dst, src); n != 2 {
		t.Errorf("companded %d bytes into a 2 byte dst, want 2", n)
	}

	back := make([]byte, 2) // room for one sample only
	if n := ExpandUlaw(back, dst); n != 2 {
		t.Errorf("expanded %d bytes into a 2 byte dst, want 2", n)
	}
}

func TestToneSourceProducesNonSilence(t *testing.T) {
	src := NewToneSource()
	buf := make([]byte, 400)

	n := src.Read(buf)
	if n != 400 {
		t.Fatalf("Read returned %d, want 400", n)
	}

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("tone source produced silence")
	}
}
