// ABOUTME: PCM sample conversion helpers
// ABOUTME: 8-bit to 16-bit upconversion used by the coalescing path
package audio

// UpconvertPcm8 expands unsigned 8-bit samples into little-endian signed
// 16-bit samples, centering at zero and scaling into the high byte:
// 0x80 -> 0x0000, 0x00 -> -128<<8, 0xFF -> 127<<8.
// dst must have room for 2*len(src) bytes; the converted byte count is
// returned and conversion stops early if dst runs out.
func UpconvertPcm8(dst []byte, src []byte) int {
	n := 0
	for _, s8 := range src {
		if n+2 > len(dst) {
			break
		}
		s16 := int16(int(s8)-128) << 8
		dst[n] = byte(s16)
		dst[n+1] = byte(s16 >> 8)
		n += 2
	}
	return n
}
