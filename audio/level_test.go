package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel_Silence(t *testing.T) {
	samples := make([]int16, MeterChunkSamples)
	assert.Equal(t, 0, Level(samples))
}

func TestLevel_Empty(t *testing.T) {
	assert.Equal(t, 0, Level(nil))
	assert.Equal(t, 0.0, RMS(nil))
}

func TestLevel_FullScaleSquareClamps(t *testing.T) {
	for _, amp := range []int16{32767, -32768} {
		samples := make([]int16, MeterChunkSamples)
		for i := range samples {
			if (i/4)%2 == 0 {
				samples[i] = amp
			} else if amp > 0 {
				samples[i] = -amp
			} else {
				samples[i] = 32767
			}
		}
		assert.Equal(t, MaxLevel, Level(samples))
	}
}

func TestLevel_HalfScale(t *testing.T) {
	samples := make([]int16, MeterChunkSamples)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 16384
		} else {
			samples[i] = -16384
		}
	}
	level := Level(samples)
	assert.Equal(t, 50, level)
}

func TestLevel_NeverExceedsMax(t *testing.T) {
	for amp := 0; amp <= 32767; amp += 1024 {
		samples := []int16{int16(amp), int16(-amp), int16(amp), int16(-amp)}
		level := Level(samples)
		assert.GreaterOrEqual(t, level, 0)
		assert.LessOrEqual(t, level, MaxLevel)
	}
}

func TestDecodePCM16(t *testing.T) {
	buf := make([]byte, 7)
	binary.LittleEndian.PutUint16(buf[0:], uint16(0x7fff))
	binary.LittleEndian.PutUint16(buf[2:], 0x8000)
	binary.LittleEndian.PutUint16(buf[4:], 1)
	buf[6] = 0xff

	samples := DecodePCM16(buf)
	assert.Equal(t, []int16{32767, -32768, 1}, samples)
}
