package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float32ToInt16 converts a normalized float sample to 16-bit PCM as
// clamp(round(f * 32767)). NaN maps to 0.
func Float32ToInt16(f float32) int16 {
	v := math.Round(float64(f) * 32767)
	if math.IsNaN(v) {
		return 0
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Float32LEToS16LE converts little-endian float32 samples to little-endian
// 16-bit PCM. The input length must be a multiple of 4.
func Float32LEToS16LE(src []byte) ([]byte, error) {
	if len(src)%4 != 0 {
		return nil, fmt.Errorf("pcm: float32 data length %d is not a multiple of 4", len(src))
	}
	dst := make([]byte, len(src)/2)
	for i := 0; i < len(src)/4; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(Float32ToInt16(f)))
	}
	return dst, nil
}

// S16LEToFloat32LE converts little-endian 16-bit PCM to little-endian
// float32 samples in [-1, 1).
func S16LEToFloat32LE(src []byte) []byte {
	n := len(src) / 2
	dst := make([]byte, n*4)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(src[i*2:]))
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(s)/32768))
	}
	return dst
}
