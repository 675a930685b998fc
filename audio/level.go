package audio

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/floats"
)

// levelDivisor maps an int16 RMS onto 0..100 (full scale / 100).
const levelDivisor = 327.67

// MaxLevel is the ceiling of a level sample.
const MaxLevel = 100

// RMS returns the root mean square of a PCM16 window.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	x := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = float64(s)
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// Level converts a PCM16 window into a loudness percentage in [0, 100].
func Level(samples []int16) int {
	level := int(RMS(samples) / levelDivisor)
	if level > MaxLevel {
		return MaxLevel
	}
	if level < 0 {
		return 0
	}
	return level
}

// DecodePCM16 converts little-endian signed 16-bit bytes into samples.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
