package dos

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmsc-emu/emu2go/internal/console"
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/nls"
	"github.com/dmsc-emu/emu2go/internal/pathtr"
	"github.com/dmsc-emu/emu2go/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	mem := memory.New()
	c := cpu.New(mem)
	alloc := mcb.New(mem, 0x40, 0x9000)
	drives := pathtr.NewDriveMap()
	drives.Base[2] = dir // C:
	tables := nls.Build(mem)

	var out bytes.Buffer
	con := console.New(nil, &out)

	d := New(c, alloc, drives, tables, con, nil)
	d.DefaultDrive = 2
	d.CurPSP = 0x50
	mem.WriteWord(memory.LinearAddr(0x50, 0x16), 0xFFFE)
	return d, &out
}

// writeASCIZ writes a NUL-terminated string at DS:off (DS is the flat
// zero-based default segment cpu.New sets up).
func writeASCIZ(d *Dispatcher, off uint16, s string) {
	for i, ch := range []byte(s) {
		d.Mem.WriteByte(uint32(off)+uint32(i), ch)
	}
	d.Mem.WriteByte(uint32(off)+uint32(len(s)), 0)
}

func TestGetVersion(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.getVersion(d.CPU)
	assert.Equal(t, uint8(3), d.CPU.GetReg8(cpu.AL))
	assert.Equal(t, uint8(30), d.CPU.GetReg8(cpu.AH))
}

func TestConsoleWriteChar(t *testing.T) {
	d, out := newTestDispatcher(t)
	d.CPU.SetReg8(cpu.DL, 'A')
	d.consoleIO(d.CPU, 0x02)
	assert.Equal(t, "A", out.String())
	assert.False(t, d.CPU.Flags.Carry())
}

func TestWriteDollarString(t *testing.T) {
	d, out := newTestDispatcher(t)
	writeASCIZ(d, 0x200, "hello$world")
	d.CPU.SetReg16(cpu.DX, 0x200)
	d.consoleIO(d.CPU, 0x09)
	assert.Equal(t, "hello", out.String())
}

func TestCreateWriteCloseReopenRead(t *testing.T) {
	d, _ := newTestDispatcher(t)

	writeASCIZ(d, 0x300, `C:\FOO.TXT`)
	d.CPU.SetReg16(cpu.DX, 0x300)
	d.CPU.SetReg16(cpu.CX, 0)
	d.fileIO(d.CPU, 0x3C)
	require.False(t, d.CPU.Flags.Carry())
	handle := d.CPU.GetReg16(cpu.AX)

	writeASCIZ(d, 0x400, "payload")
	d.CPU.SetReg16(cpu.BX, handle)
	d.CPU.SetReg16(cpu.CX, 7)
	d.CPU.SetReg16(cpu.DX, 0x400)
	d.fileIO(d.CPU, 0x40)
	assert.False(t, d.CPU.Flags.Carry())
	assert.Equal(t, uint16(7), d.CPU.GetReg16(cpu.AX))

	d.CPU.SetReg16(cpu.BX, handle)
	d.fileIO(d.CPU, 0x3E)
	assert.False(t, d.CPU.Flags.Carry())

	writeASCIZ(d, 0x300, `C:\FOO.TXT`)
	d.CPU.SetReg16(cpu.DX, 0x300)
	d.CPU.SetReg8(cpu.AL, 0)
	d.fileIO(d.CPU, 0x3D)
	require.False(t, d.CPU.Flags.Carry())
	handle = d.CPU.GetReg16(cpu.AX)

	d.CPU.SetReg16(cpu.BX, handle)
	d.CPU.SetReg16(cpu.CX, 16)
	d.CPU.SetReg16(cpu.DX, 0x500)
	d.fileIO(d.CPU, 0x3F)
	assert.False(t, d.CPU.Flags.Carry())
	assert.Equal(t, uint16(7), d.CPU.GetReg16(cpu.AX))
	for i, ch := range []byte("payload") {
		assert.Equal(t, ch, d.CPU.ReadByte(segment.DS, 0x500+uint16(i)))
	}
}

func TestDirOpMkdirChdir(t *testing.T) {
	d, _ := newTestDispatcher(t)

	writeASCIZ(d, 0x300, `C:\SUBDIR`)
	d.CPU.SetReg16(cpu.DX, 0x300)
	d.dirOp(d.CPU, 0x39)
	require.False(t, d.CPU.Flags.Carry())

	writeASCIZ(d, 0x300, `C:\SUBDIR`)
	d.CPU.SetReg16(cpu.DX, 0x300)
	d.dirOp(d.CPU, 0x3B)
	assert.False(t, d.CPU.Flags.Carry())
	assert.Equal(t, `\SUBDIR`, d.Drives.CWD[2])
}

func TestMemAllocFreeResize(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.CPU.SetReg16(cpu.BX, 0x10)
	d.memOp(d.CPU, 0x48)
	require.False(t, d.CPU.Flags.Carry())
	seg := d.CPU.GetReg16(cpu.AX)
	assert.NotZero(t, seg)

	d.CPU.Seg[segment.ES] = segment.Cache{Selector: seg}
	d.CPU.SetReg16(cpu.BX, 0x20)
	d.memOp(d.CPU, 0x4A)
	assert.False(t, d.CPU.Flags.Carry())

	d.CPU.Seg[segment.ES] = segment.Cache{Selector: seg}
	d.memOp(d.CPU, 0x49)
	assert.False(t, d.CPU.Flags.Carry())
}

func TestFindFirstMatchesPattern(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.Drives.Base[2], "A.TXT"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(d.Drives.Base[2], "B.DOC"), []byte("y"), 0o644))

	d.DTA = 0x600
	writeASCIZ(d, 0x300, `C:\*.TXT`)
	d.CPU.SetReg16(cpu.DX, 0x300)
	d.findFirst(d.CPU)
	require.False(t, d.CPU.Flags.Carry())

	var name []byte
	for i := uint32(0x1E); ; i++ {
		b := d.Mem.ReadByte(d.DTA + i)
		if b == 0 {
			break
		}
		name = append(name, b)
	}
	assert.Equal(t, "A.TXT", string(name))

	d.findNext(d.CPU)
	assert.True(t, d.CPU.Flags.Carry()) // only one .TXT file
}

func TestExitTopLevelInvokesOnExit(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var gotCode uint8
	var called bool
	d.OnExit = func(code uint8) {
		called = true
		gotCode = code
	}
	d.exit(7)
	assert.True(t, called)
	assert.Equal(t, uint8(7), gotCode)
}

func TestFCBOpenWrite(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.Drives.Base[2], "DATA.REC"), []byte{}, 0o644))

	base := uint32(0x700)
	d.Mem.WriteByte(base, 0) // default drive
	writeFieldBytes(d, base+1, "DATA    ")
	writeFieldBytes(d, base+9, "REC")

	d.CPU.SetReg16(cpu.DX, uint16(base))
	d.fcbDispatch(d.CPU, 0x0F)
	assert.Equal(t, uint8(0), d.CPU.GetReg8(cpu.AL))

	d.DTA = 0x800
	writeASCIZ(d, 0x800, "0123456789")
	d.fcbDispatch(d.CPU, 0x15)
	assert.Equal(t, uint8(0), d.CPU.GetReg8(cpu.AL))
}

func writeFieldBytes(d *Dispatcher, base uint32, s string) {
	for i, ch := range []byte(s) {
		d.Mem.WriteByte(base+uint32(i), ch)
	}
}
