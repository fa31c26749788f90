package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

func TestRegisterByteDecomposition(t *testing.T) {
	c := New(memory.New())
	c.SetReg16(AX, 0x1234)
	assert.Equal(t, uint8(0x34), c.GetReg8(AL))
	assert.Equal(t, uint8(0x12), c.GetReg8(AH))

	c.SetReg8(AH, 0xAB)
	assert.Equal(t, uint16(0xAB34), c.GetReg16(AX))
	assert.Equal(t, uint8(0x34), c.GetReg8(AL)) // untouched half
}

func TestPushPopRoundTrip(t *testing.T) {
	c := New(memory.New())
	startSP := c.Regs[SP]
	c.Push(0xBEEF)
	assert.Equal(t, startSP-2, c.Regs[SP])
	assert.Equal(t, uint16(0xBEEF), c.Pop())
	assert.Equal(t, startSP, c.Regs[SP])
}

func TestModRMRegisterOperandRoundTrip(t *testing.T) {
	c := New(memory.New())
	// mod=11, reg=000, rm=001 -> register operand CX.
	writeCSByte(c, 0, 0xC1)
	c.IP = 0
	info := c.decodeModRM()
	require.True(t, info.RM.IsReg)
	assert.Equal(t, uint8(CX), info.RM.Reg)

	c.SetModRMRMx(info.RM, 0x5A5A)
	assert.Equal(t, uint16(0x5A5A), c.GetModRMRMx(info.RM))
}

func TestModRMDirectAddressOperandRoundTrip(t *testing.T) {
	c := New(memory.New())
	// mod=00, reg=000, rm=110 -> direct 16-bit displacement, no base reg.
	writeCSByte(c, 0, 0x06)
	writeCSWord(c, 1, 0x0300)
	c.IP = 0
	info := c.decodeModRM()
	require.False(t, info.RM.IsReg)
	assert.Equal(t, segment.DS, info.RM.Seg)
	assert.Equal(t, uint16(0x0300), info.RM.Off)
	assert.Equal(t, uint16(3), c.IP) // consumed opcode + 2 displacement bytes

	c.SetModRMRMx(info.RM, 0x1234)
	assert.Equal(t, uint16(0x1234), c.GetModRMRMx(info.RM))
	assert.Equal(t, uint16(0x1234), c.ReadWord(segment.DS, 0x0300))
}

func TestModRMSegmentOverridePrefix(t *testing.T) {
	c := New(memory.New())
	seg := segment.ES
	c.segOverride = &seg
	// mod=00, rm=110 direct address again, but now under an ES override.
	writeCSByte(c, 0, 0x06)
	writeCSWord(c, 1, 0x0010)
	c.IP = 0
	info := c.decodeModRM()
	assert.Equal(t, segment.ES, info.RM.Seg)
}

func TestShiftCountModuloAppliesOnlyOn186Plus(t *testing.T) {
	c := New(memory.New())
	c.SetReg8(CL, 35)

	c.Model = Model80186
	assert.Equal(t, uint8(3), c.shiftCountFrom(0xD2)) // 35 % 32

	c.Model = Model8086
	assert.Equal(t, uint8(35), c.shiftCountFrom(0xD2)) // unmasked
}

func TestShiftCountFixedOneForD0D1(t *testing.T) {
	c := New(memory.New())
	assert.Equal(t, uint8(1), c.shiftCountFrom(0xD0))
	assert.Equal(t, uint8(1), c.shiftCountFrom(0xD1))
}

func TestBoundRaisesBRWhenOutOfRange(t *testing.T) {
	c := New(memory.New())
	c.Seg[DSIdx()] = c.Seg[CSIdx()]
	// mod=00, reg=000 (AX), rm=110 -> direct address holding [lower,upper].
	writeCSByte(c, 0, 0x62)
	writeCSByte(c, 1, 0x06)
	writeCSWord(c, 2, 0x0400)
	c.Mem.WriteWord(c.Seg[DSIdx()].LinearAddress(0x0400), 10)
	c.Mem.WriteWord(c.Seg[DSIdx()].LinearAddress(0x0402), 20)
	c.IP = 0

	c.SetReg16(AX, 5)
	fault := c.Step()
	require.NotNil(t, fault)
	assert.Equal(t, uint8(cpufault.BoundRange), fault.Vector)

	c.IP = 0
	c.SetReg16(AX, 15)
	fault = c.Step()
	assert.Nil(t, fault)
}

func TestImulImmWithSignExtendedByte(t *testing.T) {
	c := New(memory.New())
	// mod=11, reg=000 (AX), rm=001 (CX) -> IMUL AX, CX, imm8.
	writeCSByte(c, 0, 0x6B)
	writeCSByte(c, 1, 0xC1)
	writeCSByte(c, 2, 0xFE) // imm8 = -2
	c.IP = 0

	c.SetReg16(CX, 10)
	fault := c.Step()
	require.Nil(t, fault)
	assert.Equal(t, uint16(0xFFEC), c.GetReg16(AX)) // 10 * -2 = -20
}

func TestInsbReadsFromPortIntoESDI(t *testing.T) {
	c := New(memory.New())
	c.Ports.In8 = func(port uint16) uint8 {
		assert.Equal(t, uint16(0x42), port)
		return 0x99
	}
	writeCSByte(c, 0, 0x6C) // INSB
	c.IP = 0
	c.Seg[ESIdx()] = c.Seg[CSIdx()]
	c.Regs[DX] = 0x42
	c.Regs[DI] = 0x500

	fault := c.Step()
	require.Nil(t, fault)
	assert.Equal(t, uint8(0x99), c.Mem.ReadByte(c.Seg[ESIdx()].LinearAddress(0x500)))
}

// TestTrampolineInvokesBIOSTrapThenIRET exercises the CS=0/IP<0x100 magic
// trampoline convention Step checks before normal decode: the registered
// trap runs, then the instruction completes as an IRET popping the
// pushed return frame.
func TestTrampolineInvokesBIOSTrapThenIRET(t *testing.T) {
	c := New(memory.New())
	var gotIP uint8
	c.BIOSTraps[0x21] = func(c *CPU, ip uint8) { gotIP = ip }

	c.Seg[CSIdx()] = segment.Cache{Selector: 0, Base: 0, Limit: 0xFFFF, Flags: 0x9A}
	c.IP = 0x21

	// execIRET pops IP, then CS, then FLAGS, so the return IP must be
	// pushed last (topmost on the stack).
	c.Push(0x0202) // return FLAGS
	c.Push(0x1234) // return CS
	c.Push(0x0010) // return IP

	fault := c.Step()
	require.Nil(t, fault)
	assert.Equal(t, uint8(0x21), gotIP)
}

// TestRepMovsbLoopsOnCXAloneWithZFClear guards against the REP-family
// break condition leaking into MOVS/STOS/LODS: with ZF clear (the normal
// case), REP MOVSB must still copy all CX bytes rather than stopping
// after one.
func TestRepMovsbLoopsOnCXAloneWithZFClear(t *testing.T) {
	c := New(memory.New())
	c.Flags.SetZF(false)
	writeCSByte(c, 0, 0xF3) // REP prefix
	writeCSByte(c, 1, 0xA4) // MOVSB
	c.IP = 0

	src := c.Seg[CSIdx()].LinearAddress(0x100)
	dst := c.Seg[CSIdx()].LinearAddress(0x200)
	for i, b := range []byte("hello") {
		c.Mem.WriteByte(src+uint32(i), b)
	}
	c.Regs[SI] = 0x100
	c.Regs[DI] = 0x200
	c.SetReg16(CX, 5)
	c.segOverride = nil

	// Point DS/ES at CS's segment so SI/DI resolve into the bytes written
	// above, mirroring how writeCSByte addresses CS:off.
	c.Seg[DSIdx()] = c.Seg[CSIdx()]
	c.Seg[ESIdx()] = c.Seg[CSIdx()]

	fault := c.Step()
	require.Nil(t, fault)
	assert.Equal(t, uint16(0), c.GetReg16(CX))
	for i := range 5 {
		assert.Equal(t, c.Mem.ReadByte(dst+uint32(i)), c.Mem.ReadByte(src+uint32(i)))
	}
}

func TestDeliverRestartsAtStartIPAndLoadsIVTEntry(t *testing.T) {
	mem := memory.New()
	c := New(mem)
	c.StartIP = 0x0050
	c.IP = 0x0060 // past the faulting instruction's first byte

	// IVT entry for vector 6 (#UD): IP=0x9000, CS=0x0800.
	mem.WriteWord(6*4, 0x9000)
	mem.WriteWord(6*4+2, 0x0800)

	c.Deliver(cpufault.UD("bad opcode"))

	assert.Equal(t, uint16(0x9000), c.IP)
	assert.Equal(t, uint16(0x0800), c.Seg[CSIdx()].Selector)
	assert.False(t, c.Flags.Interrupt()) // IF cleared on delivery
}

func TestCheckIRQDeliversLowestPendingWhenEnabled(t *testing.T) {
	mem := memory.New()
	c := New(mem)
	c.Flags.SetIF(true)
	// IRQ5 maps to vector 8+5 = 0x0D, per the 8259 remapping spec.md §4.2
	// documents.
	mem.WriteWord(0x0D*4, 0xAAAA)
	mem.WriteWord(0x0D*4+2, 0x0100)

	c.IRQ.Trigger(5)
	c.CheckIRQ()

	assert.Equal(t, uint16(0xAAAA), c.IP)
	assert.Equal(t, uint16(0x0100), c.Seg[CSIdx()].Selector)
}

func TestCheckIRQSuppressedInProtectedMode(t *testing.T) {
	mem := memory.New()
	c := New(mem)
	c.Flags.SetIF(true)
	c.ProtectedMode = true
	mem.WriteWord(0x0D*4, 0xAAAA)
	mem.WriteWord(0x0D*4+2, 0x0100)

	c.IRQ.Trigger(5)
	startIP := c.IP
	c.CheckIRQ()

	assert.Equal(t, startIP, c.IP)
}

func TestCheckIRQDoesNothingWhenDisabled(t *testing.T) {
	c := New(memory.New())
	c.Flags.SetIF(false)
	c.IRQ.Trigger(5)
	startIP := c.IP
	c.CheckIRQ()
	assert.Equal(t, startIP, c.IP)
}

// writeCSByte/writeCSWord write into CS:off for tests that drive decodeModRM
// directly against the CPU's current code segment.
func writeCSByte(c *CPU, off uint16, v byte) {
	c.Mem.WriteByte(c.Seg[CSIdx()].LinearAddress(off), v)
}

func writeCSWord(c *CPU, off uint16, v uint16) {
	c.Mem.WriteWord(c.Seg[CSIdx()].LinearAddress(off), v)
}
