package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressExpandRoundTrip(t *testing.T) {
	var f Flags
	f.SetCF(true)
	f.SetZF(true)
	f.SetIF(true)
	f.SetDF(false)
	f.SetOF(true)

	w := f.Compress()
	assert.NotZero(t, w&BitAlwaysOne)

	var g Flags
	g.Expand(w)
	assert.Equal(t, f.Carry(), g.Carry())
	assert.Equal(t, f.Zero(), g.Zero())
	assert.Equal(t, f.Interrupt(), g.Interrupt())
	assert.Equal(t, f.Direction(), g.Direction())
	assert.Equal(t, f.Overflow(), g.Overflow())
}

func TestExpandCompressIdentity(t *testing.T) {
	for w := uint16(0); w < 0x3000; w += 0x111 {
		var f Flags
		f.Expand(w)
		got := f.Compress()
		// only the modeled bits + the always-one bit should roundtrip
		want := w&(BitCF|BitPF|BitAF|BitZF|BitSF|BitTF|BitIF|BitDF|BitOF) | BitAlwaysOne
		assert.Equal(t, want, got)
	}
}

func TestStrictBooleanCellsAreZeroOrOne(t *testing.T) {
	var f Flags
	f.SetCF(true)
	f.SetPF(true)
	f.SetZF(true)
	f.SetTF(true)
	f.SetIF(true)
	f.SetDF(true)
	assert.LessOrEqual(t, f.CF, uint8(1))
	assert.LessOrEqual(t, f.PF, uint8(1))
	assert.LessOrEqual(t, f.ZF, uint8(1))
	assert.LessOrEqual(t, f.TF, uint8(1))
	assert.LessOrEqual(t, f.IF, uint8(1))
	assert.LessOrEqual(t, f.DF, uint8(1))
}
