// ABOUTME: u-law companding for 16-bit PCM samples
// ABOUTME: Segment encoder matching the firmware's table-free implementation
package audio

// LinearToUlaw compands a signed 16-bit sample to 8-bit u-law. The sample is
// first reduced to 14-bit range, biased by 133, clamped at 8158, then encoded
// as a 3-bit segment and 4-bit mantissa with the sign folded into the mask.
func LinearToUlaw(pcm int16) uint8 {
	var mask int16
	v := pcm >> 2
	if v < 0 {
		v = -v
		mask = 0x7F
	} else {
		mask = 0xFF
	}
	if v > 8158 {
		v = 8158
	}
	v += 133

	seg := 0
	for v > (33<<(seg+1))-33 {
		seg++
	}

	uval := uint8((seg << 4) | int((v-((33<<seg)-33))>>(seg+1)))
	return uval ^ uint8(mask)
}

// UlawToLinear expands an 8-bit u-law value back to a signed 16-bit sample,
// reconstructing the midpoint of the encoder's quantization step.
func UlawToLinear(u uint8) int16 {
	c := ^u
	seg := (c >> 4) & 0x07
	mant := int32(c & 0x0F)

	v := ((mant<<1 + 34) << seg) - 33
	pcm14 := v - 133
	if pcm14 < 0 {
		pcm14 = 0
	}

	res := int16(pcm14 << 2)
	if c&0x80 != 0 {
		return -res
	}
	return res
}

// ExpandUlaw decodes u-law bytes into little-endian signed 16-bit samples.
// dst must have room for 2*len(src) bytes; the converted byte count is
// returned and expansion stops early if dst runs out.
func ExpandUlaw(dst []byte, src []byte) int {
	n := 0
	for _, u := range src {
		if n+2 > len(dst) {
			break
		}
		s16 := UlawToLinear(u)
		dst[n] = byte(s16)
		dst[n+1] = byte(s16 >> 8)
		n += 2
	}
	return n
}

// CompandUlaw encodes little-endian signed 16-bit samples into u-law bytes.
// dst must have room for len(src)/2 bytes; the encoded byte count is
// returned. A trailing odd byte in src is ignored.
func CompandUlaw(dst []byte, src []byte) int {
	n := 0
	for i := 0; i+1 < len(src); i += 2 {
		if n >= len(dst) {
			break
		}
		s16 := int16(uint16(src[i]) | uint16(src[i+1])<<8)
		dst[n] = LinearToUlaw(s16)
		n++
	}
	return n
}
