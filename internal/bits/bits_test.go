package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange(t *testing.T) {
	// 0b1101_1000, bits 4..5 (1-indexed from MSB) -> "11" -> 3
	assert.Equal(t, uint32(3), Range(0b1101_1000, 8, 4, 5))
}

func TestBitRoundTrip(t *testing.T) {
	var v uint32 = 0
	for pos := uint(0); pos < 16; pos++ {
		v = SetBit(v, pos, true)
		assert.True(t, Bit(v, pos))
		v = SetBit(v, pos, false)
		assert.False(t, Bit(v, pos))
	}
}

func TestPopcount(t *testing.T) {
	assert.Equal(t, 0, Popcount(0))
	assert.Equal(t, 8, Popcount(0xFF))
	assert.Equal(t, 1, Popcount(0x80))
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), SignExtend8(0xFF))
	assert.Equal(t, uint16(0x007F), SignExtend8(0x7F))
	assert.Equal(t, uint32(0xFFFFFFFF), SignExtend16(0xFFFF))
}
