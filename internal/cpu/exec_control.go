package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/bits"
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// condTrue evaluates one of the sixteen Jcc conditions (opcodes
// 0x70-0x7F) against the current flags.
func (c *CPU) condTrue(opcode byte) bool {
	switch opcode & 0x0F {
	case 0x0: // JO
		return c.Flags.Overflow()
	case 0x1: // JNO
		return !c.Flags.Overflow()
	case 0x2: // JB/JC/JNAE
		return c.Flags.Carry()
	case 0x3: // JAE/JNB/JNC
		return !c.Flags.Carry()
	case 0x4: // JE/JZ
		return c.Flags.Zero()
	case 0x5: // JNE/JNZ
		return !c.Flags.Zero()
	case 0x6: // JBE/JNA
		return c.Flags.Carry() || c.Flags.Zero()
	case 0x7: // JA/JNBE
		return !c.Flags.Carry() && !c.Flags.Zero()
	case 0x8: // JS
		return c.Flags.Sign()
	case 0x9: // JNS
		return !c.Flags.Sign()
	case 0xA: // JP/JPE
		return c.Flags.Parity()
	case 0xB: // JNP/JPO
		return !c.Flags.Parity()
	case 0xC: // JL/JNGE
		return c.Flags.Sign() != c.Flags.Overflow()
	case 0xD: // JGE/JNL
		return c.Flags.Sign() == c.Flags.Overflow()
	case 0xE: // JLE/JNG
		return c.Flags.Zero() || c.Flags.Sign() != c.Flags.Overflow()
	default: // JG/JNLE
		return !c.Flags.Zero() && c.Flags.Sign() == c.Flags.Overflow()
	}
}

// execJcc handles the short conditional jumps, opcodes 0x70-0x7F.
func (c *CPU) execJcc(opcode byte) {
	disp := bits.SignExtend8(c.fetchByte())
	taken := c.condTrue(opcode)
	if taken {
		c.IP += disp
	}
}

// execJmpShort handles opcode 0xEB: unconditional short jump.
func (c *CPU) execJmpShort() {
	disp := bits.SignExtend8(c.fetchByte())
	c.IP += disp
}

// execJmpNear handles opcode 0xE9: unconditional near jump, rel16.
func (c *CPU) execJmpNear() {
	disp := c.fetchWord()
	c.IP += disp
}

// execCallNear handles opcode 0xE8: CALL rel16, pushing the return address.
func (c *CPU) execCallNear() {
	disp := c.fetchWord()
	c.Push(c.IP)
	c.IP += disp
}

// execLoop handles opcodes 0xE0 (LOOPNZ), 0xE1 (LOOPZ), 0xE2 (LOOP):
// decrement CX, then jump on the opcode's termination condition.
func (c *CPU) execLoop(opcode byte) {
	disp := bits.SignExtend8(c.fetchByte())
	cx := c.GetReg16(CX) - 1
	c.SetReg16(CX, cx)
	taken := cx != 0
	switch opcode {
	case 0xE0: // LOOPNZ: loop while CX != 0 && ZF == 0
		taken = taken && !c.Flags.Zero()
	case 0xE1: // LOOPZ: loop while CX != 0 && ZF == 1
		taken = taken && c.Flags.Zero()
	}
	if taken {
		c.IP += disp
	}
}

// execJcxz handles opcode 0xE3: jump if CX == 0.
func (c *CPU) execJcxz() {
	disp := bits.SignExtend8(c.fetchByte())
	if c.GetReg16(CX) == 0 {
		c.IP += disp
	}
}

// execEnter handles opcode 0xC8 (80186+): build a nested stack frame.
func (c *CPU) execEnter() *cpufault.Fault {
	size := c.fetchWord()
	level := c.fetchByte() & 0x1F
	c.Push(c.GetReg16(BP))
	frameTemp := c.GetReg16(SP)
	bp := c.GetReg16(BP)
	for i := uint8(1); i < level; i++ {
		bp -= 2
		c.Push(c.readMemWord(c.stackSegment(), bp))
	}
	if level != 0 {
		c.Push(frameTemp)
	}
	c.SetReg16(BP, frameTemp)
	c.SetReg16(SP, frameTemp-size)
	return nil
}

// execBound handles opcode 0x62 (80186+): raise #BR unless the register
// operand falls within the inclusive [lower, upper] pair stored at the
// ModRM memory operand.
func (c *CPU) execBound() *cpufault.Fault {
	info := c.decodeModRM()
	idx := int16(c.GetReg16(Reg16(info.RegField)))
	lower := int16(c.readMemWord(info.RM.Seg, info.RM.Off))
	upper := int16(c.readMemWord(info.RM.Seg, info.RM.Off+2))
	if idx < lower || idx > upper {
		return cpufault.BR("BOUND range exceeded")
	}
	return nil
}

// execLeave handles opcode 0xC9: tear down a stack frame built by ENTER.
func (c *CPU) execLeave() {
	c.SetReg16(SP, c.GetReg16(BP))
	c.SetReg16(BP, c.Pop())
}

// execRetFar handles opcodes 0xCA/0xCB: RET imm16/RET, far form. In
// protected mode a return to a lower-privilege (numerically larger CPL)
// selector pops the caller's SS:SP too, per spec.md §4.2.
func (c *CPU) execRetFar(extraPop uint16) *cpufault.Fault {
	ip := c.Pop()
	sel := c.Pop()
	targetRPL := uint8(sel & 0x3)

	cache, newCPL, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, c.ProtectedMode, sel, true, c.CPL)
	if fault != nil {
		return fault
	}
	c.Regs[SP] += extraPop

	if c.ProtectedMode && targetRPL > c.CPL {
		sp := c.Pop()
		ssSel := c.Pop()
		ssCache, fault := segment.LoadDataSegment(c.Mem, &c.Tables, c.ProtectedMode, ssSel)
		if fault != nil {
			return fault
		}
		c.Seg[segment.SS] = ssCache
		c.Regs[SP] = sp
	}

	c.Seg[CSIdx()] = cache
	c.IP = ip
	c.CPL = newCPL
	return nil
}

// execJmpFar handles opcode 0xEA: direct far jump, disp16:seg16.
func (c *CPU) execJmpFar() *cpufault.Fault {
	off := c.fetchWord()
	sel := c.fetchWord()
	return c.farJmp(sel, off)
}

// execCallFar handles opcode 0x9A: direct far call, disp16:seg16.
func (c *CPU) execCallFar() *cpufault.Fault {
	off := c.fetchWord()
	sel := c.fetchWord()
	return c.farCall(sel, off)
}

// farJmp performs a far jump to selector:offset, including an 80286
// call-gate indirection and privilege check in protected mode, per
// spec.md §4.2.
func (c *CPU) farJmp(selector, offset uint16) *cpufault.Fault {
	desc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, selector)
	if fault != nil {
		return fault
	}
	if c.ProtectedMode && desc.IsSystem() && desc.Type() == segment.TypeCallGate {
		gateOff := desc.GateOffset()
		gateSel := desc.GateSelector()
		return c.farJmp(gateSel, gateOff)
	}
	cache, newCPL, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, c.ProtectedMode, selector, true, c.CPL)
	if fault != nil {
		return fault
	}
	c.Seg[CSIdx()] = cache
	c.IP = offset
	c.CPL = newCPL
	return nil
}

// farCall performs a far call to selector:offset, pushing the return
// CS:IP. A call through an 80286 call gate to a more-privileged segment
// pushes the caller's SS:SP and then the return CS:IP onto the current
// stack; it does not load an inner stack from the TSS and does not copy
// the gate's parameter words.
func (c *CPU) farCall(selector, offset uint16) *cpufault.Fault {
	desc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, selector)
	if fault != nil {
		return fault
	}
	if c.ProtectedMode && desc.IsSystem() && desc.Type() == segment.TypeCallGate {
		gateOff := desc.GateOffset()
		gateSel := desc.GateSelector()
		gateDPL := segment.DPL(desc.Access())

		targetDesc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, gateSel)
		if fault != nil {
			return fault
		}
		targetDPL := segment.DPL(targetDesc.Access())

		if targetDPL < c.CPL {
			oldSS := c.Seg[segment.SS].Selector
			oldSP := c.Regs[SP]
			oldCS := c.Seg[CSIdx()].Selector
			cache, _, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, c.ProtectedMode, gateSel, true, gateDPL)
			if fault != nil {
				return fault
			}
			c.Seg[CSIdx()] = cache
			c.CPL = targetDPL
			c.Push(oldSS)
			c.Push(oldSP)
			c.Push(oldCS)
			c.Push(c.IP)
			c.IP = gateOff
			return nil
		}
		return c.farCall(gateSel, gateOff)
	}

	retCS := c.Seg[CSIdx()].Selector
	retIP := c.IP
	cache, newCPL, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, c.ProtectedMode, selector, true, c.CPL)
	if fault != nil {
		return fault
	}
	c.Push(retCS)
	c.Push(retIP)
	c.Seg[CSIdx()] = cache
	c.IP = offset
	c.CPL = newCPL
	return nil
}

// execFixedPort handles opcodes 0xE4-0xE7 (IN/OUT AL/AX, imm8 port).
func (c *CPU) execFixedPort(opcode byte) {
	port := uint16(c.fetchByte())
	c.portIO(opcode, port)
}

// execVarPort handles opcodes 0xEC-0xEF (IN/OUT AL/AX, DX port).
func (c *CPU) execVarPort(opcode byte) {
	c.portIO(opcode, c.GetReg16(DX))
}

func (c *CPU) portIO(opcode byte, port uint16) {
	switch opcode {
	case 0xE4, 0xEC: // IN AL, port
		c.SetReg8(AL, c.InPort8(port))
	case 0xE5, 0xED: // IN AX, port
		c.SetReg16(AX, c.InPort16(port))
	case 0xE6, 0xEE: // OUT port, AL
		c.OutPort8(port, c.GetReg8(AL))
	case 0xE7, 0xEF: // OUT port, AX
		c.OutPort16(port, c.GetReg16(AX))
	}
}

// InPort8, InPort16, OutPort8, OutPort16 dispatch to the host adapter's
// registered port handlers (spec.md §4.6). A CPU with no adapter attached
// reads 0xFF/0xFFFF and discards writes, matching an unmapped bus.
var (
	defaultIn8  = func(uint16) uint8 { return 0xFF }
	defaultIn16 = func(uint16) uint16 { return 0xFFFF }
)

// PortIO is the host adapter's hook table; installed by internal/hostadapter.
type PortIO struct {
	In8   func(port uint16) uint8
	In16  func(port uint16) uint16
	Out8  func(port uint16, v uint8)
	Out16 func(port uint16, v uint16)
}

func (c *CPU) InPort8(port uint16) uint8 {
	if c.Ports.In8 != nil {
		return c.Ports.In8(port)
	}
	return defaultIn8(port)
}

func (c *CPU) InPort16(port uint16) uint16 {
	if c.Ports.In16 != nil {
		return c.Ports.In16(port)
	}
	return defaultIn16(port)
}

func (c *CPU) OutPort8(port uint16, v uint8) {
	if c.Ports.Out8 != nil {
		c.Ports.Out8(port, v)
	}
}

func (c *CPU) OutPort16(port uint16, v uint16) {
	if c.Ports.Out16 != nil {
		c.Ports.Out16(port, v)
	}
}
