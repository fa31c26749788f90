package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestA20Mask(t *testing.T) {
	m := New()
	assert.False(t, m.A20Enabled())

	m.WriteByte(0x100000, 0xAB) // past 1 MB; with A20 off this wraps to 0
	assert.Equal(t, byte(0xAB), m.ReadByte(0))

	m.SetA20(true)
	m.WriteByte(0x100000, 0xCD)
	assert.Equal(t, byte(0xCD), m.ReadByte(0x100000))
	assert.NotEqual(t, m.ReadByte(0x100000), m.ReadByte(0))
}

func TestA20MaskInvariant(t *testing.T) {
	// (mask == 0x0FFFFF) xor (mask == 0x10FFFF) must always hold.
	m := New()
	off := m.mask == MaskA20Off
	on := m.mask == MaskA20On
	assert.True(t, off != on)
	m.SetA20(true)
	off = m.mask == MaskA20Off
	on = m.mask == MaskA20On
	assert.True(t, off != on)
}

func TestWordDwordRoundTrip(t *testing.T) {
	m := New()
	m.WriteWord(0x1000, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), m.ReadWord(0x1000))

	m.WriteDword(0x2000, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), m.ReadDword(0x2000))
}

func TestLinearAddr(t *testing.T) {
	assert.Equal(t, uint32(0x10010), LinearAddr(0x1000, 0x0010))
}

func TestBytesRoundTrip(t *testing.T) {
	m := New()
	src := []byte{1, 2, 3, 4, 5}
	m.WriteBytes(0x500, src)
	assert.Equal(t, src, m.ReadBytes(0x500, 5))
}
