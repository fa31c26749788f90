package cpu

import (
	"fmt"

	"github.com/dmsc-emu/emu2go/internal/alu"
	"github.com/dmsc-emu/emu2go/internal/bits"
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// Step decodes and executes exactly one instruction, including any prefix
// bytes that precede it. Prefixes are captured as a value for the single
// execute step (spec.md §9 DESIGN NOTES), rather than recursing into a
// shared "do one instruction" function.
func (c *CPU) Step() *cpufault.Fault {
	if c.Halted {
		return nil
	}
	c.StartIP = c.IP

	// BIOS/DOS trampoline: CS=0, IP<0x100 (spec.md §3/§6).
	if c.Seg[CSIdx()].Selector == 0 && c.IP < 0x100 {
		ip := uint8(c.IP)
		if trap := c.BIOSTraps[ip]; trap != nil {
			trap(c, ip)
		}
		return c.execIRET()
	}

	c.segOverride = nil
	c.repPrefix = repNone
	c.lockPrefix = false

	for {
		opcode := c.fetchByte()
		switch opcode {
		case 0x26:
			seg := segment.ES
			c.segOverride = &seg
			continue
		case 0x2E:
			seg := segment.CS
			c.segOverride = &seg
			continue
		case 0x36:
			seg := segment.SS
			c.segOverride = &seg
			continue
		case 0x3E:
			seg := segment.DS
			c.segOverride = &seg
			continue
		case 0xF0: // LOCK, ignored
			c.lockPrefix = true
			continue
		case 0xF2: // REPNZ/REPNE
			c.repPrefix = repNotEqual
			continue
		case 0xF3: // REP/REPZ/REPE
			c.repPrefix = repEqual
			continue
		default:
			return c.execOpcode(opcode)
		}
	}
}

// execOpcode dispatches a single (non-prefix) opcode byte. This is the
// 256-entry primary table of spec.md §4.1, expressed as a switch over
// semantic groups rather than 256 separate named handlers, per the
// "array of {category, operand form, semantic tag} descriptors" design
// note — the grouping here is the tag, ModRM decode is shared plumbing.
func (c *CPU) execOpcode(opcode byte) *cpufault.Fault {
	switch {
	case opcode <= 0x3D && isArithGroupByte(opcode):
		return c.execArithGroupOpcode(opcode)
	}

	switch opcode {
	case 0x06, 0x07, 0x0E, 0x16, 0x17, 0x1E, 0x1F:
		c.execPushPopSeg(opcode)
	case 0x62:
		return c.execBound()
	case 0x27:
		c.daa()
	case 0x2F:
		c.das()
	case 0x37:
		c.aaa()
	case 0x3F:
		c.aas()
	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47:
		r := Reg16(opcode - 0x40)
		c.SetReg16(r, uint16(alu.Inc(&c.Flags, alu.Width16, uint32(c.GetReg16(r)))))
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		r := Reg16(opcode - 0x48)
		c.SetReg16(r, uint16(alu.Dec(&c.Flags, alu.Width16, uint32(c.GetReg16(r)))))
	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57:
		r := Reg16(opcode - 0x50)
		v := c.GetReg16(r)
		if r == SP && !c.Push286SP {
			v -= 2 // 8086 PUSH SP quirk: push SP-2
		}
		c.Push(v)
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		r := Reg16(opcode - 0x58)
		c.SetReg16(r, c.Pop())
	case 0x60:
		return c.execPusha()
	case 0x61:
		return c.execPopa()
	case 0x68:
		c.Push(c.fetchWord())
	case 0x69:
		return c.execImulImm(false)
	case 0x6A:
		c.Push(bits.SignExtend8(c.fetchByte()))
	case 0x6B:
		return c.execImulImm(true)
	case 0x6C, 0x6D, 0x6E, 0x6F:
		return c.execStringOp(opcode)
	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		c.execJcc(opcode)
	case 0x80, 0x81, 0x82, 0x83:
		return c.execGroup1(opcode)
	case 0x84:
		c.execTest(false)
	case 0x85:
		c.execTest(true)
	case 0x86:
		c.execXchg(false)
	case 0x87:
		c.execXchg(true)
	case 0x88, 0x89, 0x8A, 0x8B:
		c.execMov(opcode)
	case 0x8C:
		c.execMovSegTo()
	case 0x8D:
		return c.execLea()
	case 0x8E:
		return c.execMovToSeg()
	case 0x8F:
		c.execPopRM()
	case 0x90:
		// NOP (XCHG AX, AX)
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97:
		r := Reg16(opcode - 0x90)
		ax := c.GetReg16(AX)
		c.SetReg16(AX, c.GetReg16(r))
		c.SetReg16(r, ax)
	case 0x98:
		c.cbw()
	case 0x99:
		c.cwd()
	case 0x9A:
		return c.execCallFar()
	case 0x9B:
		// WAIT: no-op in this emulator (no coprocessor modeled)
	case 0x9C:
		c.Push(c.Flags.Compress())
	case 0x9D:
		c.Flags.Expand(c.Pop())
	case 0x9E:
		c.sahf()
	case 0x9F:
		c.lahf()
	case 0xA0, 0xA1, 0xA2, 0xA3:
		c.execMovAcc(opcode)
	case 0xA4, 0xA5, 0xA6, 0xA7, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF:
		return c.execStringOp(opcode)
	case 0xA8:
		c.execTestAcc(false)
	case 0xA9:
		c.execTestAcc(true)
	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		c.SetReg8(Reg8(opcode-0xB0), c.fetchByte())
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		c.SetReg16(Reg16(opcode-0xB8), c.fetchWord())
	case 0xC0, 0xC1, 0xD0, 0xD1, 0xD2, 0xD3:
		return c.execShiftGroup(opcode)
	case 0xC2:
		n := c.fetchWord()
		c.IP = c.Pop()
		c.Regs[SP] += n
	case 0xC3:
		c.IP = c.Pop()
	case 0xC4:
		return c.execLxs(segment.ES)
	case 0xC5:
		return c.execLxs(segment.DS)
	case 0xC6, 0xC7:
		c.execMovImm(opcode)
	case 0xC8:
		return c.execEnter()
	case 0xC9:
		c.execLeave()
	case 0xCA:
		n := c.fetchWord()
		return c.execRetFar(n)
	case 0xCB:
		return c.execRetFar(0)
	case 0xCC:
		return c.raiseInterrupt(3, false, 0)
	case 0xCD:
		n := c.fetchByte()
		return c.raiseInterrupt(uint8(n), false, 0)
	case 0xCE:
		if c.Flags.Overflow() {
			return c.raiseInterrupt(4, false, 0)
		}
	case 0xCF:
		return c.execIRET()
	case 0xD4:
		return c.aam()
	case 0xD5:
		c.aad()
	case 0xD7:
		c.xlat()
	case 0xE0, 0xE1, 0xE2:
		c.execLoop(opcode)
	case 0xE3:
		c.execJcxz()
	case 0xE4, 0xE5, 0xE6, 0xE7:
		c.execFixedPort(opcode)
	case 0xE8:
		c.execCallNear()
	case 0xE9:
		c.execJmpNear()
	case 0xEA:
		return c.execJmpFar()
	case 0xEB:
		c.execJmpShort()
	case 0xEC, 0xED, 0xEE, 0xEF:
		c.execVarPort(opcode)
	case 0xF4:
		c.Halted = true
	case 0xF5:
		c.Flags.SetCF(!c.Flags.Carry())
	case 0xF6, 0xF7:
		return c.execUnaryGroup(opcode)
	case 0xF8:
		c.Flags.SetCF(false)
	case 0xF9:
		c.Flags.SetCF(true)
	case 0xFA:
		c.Flags.SetIF(false)
	case 0xFB:
		c.Flags.SetIF(true)
	case 0xFC:
		c.Flags.SetDF(false)
	case 0xFD:
		c.Flags.SetDF(true)
	case 0xFE, 0xFF:
		return c.execGroupFE_FF(opcode)
	case 0x0F:
		return c.exec0F()
	default:
		return cpufault.UD(fmt.Sprintf("unimplemented opcode 0x%02X", opcode))
	}
	return nil
}

func isArithGroupByte(op byte) bool {
	// 0x00-0x3D covers the eight ALU-group instructions (ADD OR ADC SBB
	// AND SUB XOR CMP), each with its 6 standard forms
	// (rm8,r8 / rm16,r16 / r8,rm8 / r16,rm16 / AL,imm8 / AX,imm16). The
	// other bytes of that range, whose low 3 bits are 6 or 7 (PUSH/POP
	// segment register, the segment-override prefixes 0x26/0x2E/0x36/0x3E,
	// and DAA/DAS/AAA/AAS), are excluded by the low-3-bits check below.
	low3 := op & 0x07
	return low3 <= 5
}
