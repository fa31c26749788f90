package hostadapter

import (
	"bytes"
	"testing"

	"github.com/dmsc-emu/emu2go/internal/console"
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) (*Adapter, *bytes.Buffer) {
	t.Helper()
	mem := memory.New()
	c := cpu.New(mem)
	var out bytes.Buffer
	con := console.New(nil, &out)
	return New(c, con, nil), &out
}

func TestBiosEquipmentAndMemSize(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.CPU.BIOSTraps[intEquip](a.CPU, intEquip)
	assert.Equal(t, uint16(equipmentWord), a.CPU.GetReg16(cpu.AX))

	a.CPU.BIOSTraps[intMemSize](a.CPU, intMemSize)
	assert.Equal(t, uint16(memSizeKB), a.CPU.GetReg16(cpu.AX))
}

func TestBiosVideoTeletype(t *testing.T) {
	a, out := newTestAdapter(t)
	a.CPU.SetReg8(cpu.AH, 0x0E)
	a.CPU.SetReg8(cpu.AL, 'X')
	a.CPU.BIOSTraps[intVideo](a.CPU, intVideo)
	assert.Equal(t, "X", out.String())
}

func TestBiosVideoWriteStringNoAttr(t *testing.T) {
	a, out := newTestAdapter(t)
	a.CPU.Seg[segment.ES] = segment.Cache{Base: 0x1000, Limit: 0xFFFF}
	a.CPU.SetReg16(cpu.BP, 0x20)
	for i, ch := range []byte("hi") {
		a.CPU.WriteByte(segment.ES, 0x20+uint16(i), ch)
	}
	a.CPU.SetReg8(cpu.AH, 0x13)
	a.CPU.SetReg8(cpu.AL, 0x00)
	a.CPU.SetReg16(cpu.CX, 2)
	a.CPU.BIOSTraps[intVideo](a.CPU, intVideo)
	assert.Equal(t, "hi", out.String())
}

func TestBiosResetHalts(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.CPU.BIOSTraps[intReset](a.CPU, intReset)
	assert.True(t, a.CPU.Halted)
}

func TestRegisterDOSDispatchesByVector(t *testing.T) {
	a, _ := newTestAdapter(t)
	var got []uint8
	a.RegisterDOS(func(c *cpu.CPU, vector uint8) { got = append(got, vector) })
	a.CPU.BIOSTraps[0x21](a.CPU, 0x21)
	a.CPU.BIOSTraps[0x20](a.CPU, 0x20)
	assert.Equal(t, []uint8{0x21, 0x20}, got)
}

func TestRunStopsOnHalt(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.CPU.Halted = true
	err := a.Run()
	require.Equal(t, Exited, err)
}
