package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/memory"
)

func TestRealModeLoadTrivial(t *testing.T) {
	mem := memory.New()
	tbl := Reset()
	c, fault := LoadDataSegment(mem, &tbl, false, 0x1000)
	assert.Nil(t, fault)
	assert.Equal(t, uint32(0x10000), c.Base)
	assert.Equal(t, uint16(0xFFFF), c.Limit)
	assert.Equal(t, byte(0x92), c.Flags)
}

func TestNullSelectorSilent(t *testing.T) {
	mem := memory.New()
	tbl := Reset()
	tbl.GDT.Base = 0x2000
	tbl.GDT.Limit = 0xFFFF
	c, fault := LoadDataSegment(mem, &tbl, true, 0)
	assert.Nil(t, fault)
	assert.Equal(t, uint16(0), c.Selector)
}

func TestProtectedModeNotPresentRaisesNP(t *testing.T) {
	mem := memory.New()
	tbl := Reset()
	tbl.GDT.Base = 0x2000
	tbl.GDT.Limit = 0xFFFF

	// selector 0x0008 -> index 1 -> descriptor at GDT.Base + 8
	var desc [8]byte
	desc[5] = 0x92 // P=0, data, writable
	desc[5] &^= 0x80
	mem.WriteBytes(0x2000+8, desc[:])

	_, fault := LoadDataSegment(mem, &tbl, true, 0x0008)
	assert.NotNil(t, fault)
	assert.Equal(t, uint8(cpufault.SegmentNotPresent), fault.Vector)
}

func TestDescriptorBaseLimit(t *testing.T) {
	var d RawDescriptor
	d[0], d[1] = 0xFF, 0xFF // limit
	d[2], d[3] = 0x00, 0x10 // base low/mid
	d[7] = 0x00             // base high
	assert.Equal(t, uint16(0xFFFF), d.Limit())
	assert.Equal(t, uint32(0x100000), d.Base())
}
