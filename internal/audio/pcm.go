package audio

import "encoding/binary"

// DecodePCM16LE converts little-endian int16 samples to floats in [-1, 1].
// A trailing odd byte is dropped.
func DecodePCM16LE(pcm []byte) []float64 {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float64(s) / 32768.0
	}
	return samples
}

// EncodePCM16LE converts unit-range float samples back to little-endian
// int16 bytes, clipping out-of-range values.
func EncodePCM16LE(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v*32767)))
	}
	return out
}
