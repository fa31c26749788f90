package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/alu"
	"github.com/dmsc-emu/emu2go/internal/bits"
	"github.com/dmsc-emu/emu2go/internal/cpufault"
)

// aluGroupOp applies one of the eight ALU-group operations (ADD OR ADC
// SBB AND SUB XOR CMP, selected 0-7 by a ModRM reg field or a primary
// opcode's high bits) and reports whether the result should be written
// back (false only for CMP, which only updates flags).
func (c *CPU) aluGroupOp(group uint8, w alu.Width, dst, src uint32) (uint32, bool) {
	switch group & 0x7 {
	case 0:
		return alu.Add(&c.Flags, w, dst, src), true
	case 1:
		return alu.Or(&c.Flags, w, dst, src), true
	case 2:
		return alu.Adc(&c.Flags, w, dst, src), true
	case 3:
		return alu.Sbb(&c.Flags, w, dst, src), true
	case 4:
		return alu.And(&c.Flags, w, dst, src), true
	case 5:
		return alu.Sub(&c.Flags, w, dst, src), true
	case 6:
		return alu.Xor(&c.Flags, w, dst, src), true
	default: // 7: CMP
		alu.Cmp(&c.Flags, w, dst, src)
		return dst, false
	}
}

// execArithGroupOpcode handles opcodes 0x00-0x3D: the eight ALU-group
// instructions in their six standard forms.
func (c *CPU) execArithGroupOpcode(opcode byte) *cpufault.Fault {
	group := opcode >> 3
	form := opcode & 0x7
	switch form {
	case 0: // Eb, Gb
		info := c.decodeModRM()
		src := c.GetReg8(Reg8(info.RegField))
		dst := c.readRM8(info.RM)
		result, wb := c.aluGroupOp(group, alu.Width8, uint32(dst), uint32(src))
		if wb {
			c.writeRM8(info.RM, uint8(result))
		}
	case 1: // Ev, Gv
		info := c.decodeModRM()
		src := c.GetReg16(Reg16(info.RegField))
		dst := c.readRM16(info.RM)
		result, wb := c.aluGroupOp(group, alu.Width16, uint32(dst), uint32(src))
		if wb {
			c.writeRM16(info.RM, uint16(result))
		}
	case 2: // Gb, Eb
		info := c.decodeModRM()
		src := c.readRM8(info.RM)
		dst := c.GetReg8(Reg8(info.RegField))
		result, wb := c.aluGroupOp(group, alu.Width8, uint32(dst), uint32(src))
		if wb {
			c.SetReg8(Reg8(info.RegField), uint8(result))
		}
	case 3: // Gv, Ev
		info := c.decodeModRM()
		src := c.readRM16(info.RM)
		dst := c.GetReg16(Reg16(info.RegField))
		result, wb := c.aluGroupOp(group, alu.Width16, uint32(dst), uint32(src))
		if wb {
			c.SetReg16(Reg16(info.RegField), uint16(result))
		}
	case 4: // AL, imm8
		imm := c.fetchByte()
		dst := c.GetReg8(AL)
		result, wb := c.aluGroupOp(group, alu.Width8, uint32(dst), uint32(imm))
		if wb {
			c.SetReg8(AL, uint8(result))
		}
	case 5: // AX, imm16
		imm := c.fetchWord()
		dst := c.GetReg16(AX)
		result, wb := c.aluGroupOp(group, alu.Width16, uint32(dst), uint32(imm))
		if wb {
			c.SetReg16(AX, uint16(result))
		}
	}
	return nil
}

// execGroup1 handles opcodes 0x80-0x83: ALU-group operations against an
// immediate operand, ModRM reg field selecting ADD..CMP.
func (c *CPU) execGroup1(opcode byte) *cpufault.Fault {
	info := c.decodeModRM()
	wide := opcode == 0x81
	var imm uint32
	if opcode == 0x81 {
		imm = uint32(c.fetchWord())
	} else if opcode == 0x83 {
		imm = uint32(bits.SignExtend8(c.fetchByte()))
	} else {
		imm = uint32(c.fetchByte())
	}
	if wide {
		dst := c.readRM16(info.RM)
		result, wb := c.aluGroupOp(info.RegField, alu.Width16, uint32(dst), imm)
		if wb {
			c.writeRM16(info.RM, uint16(result))
		}
	} else {
		dst := c.readRM8(info.RM)
		result, wb := c.aluGroupOp(info.RegField, alu.Width8, uint32(dst), imm&0xFF)
		if wb {
			c.writeRM8(info.RM, uint8(result))
		}
	}
	return nil
}

func (c *CPU) execTest(wide bool) {
	info := c.decodeModRM()
	if wide {
		a := c.readRM16(info.RM)
		b := c.GetReg16(Reg16(info.RegField))
		alu.Test(&c.Flags, alu.Width16, uint32(a), uint32(b))
	} else {
		a := c.readRM8(info.RM)
		b := c.GetReg8(Reg8(info.RegField))
		alu.Test(&c.Flags, alu.Width8, uint32(a), uint32(b))
	}
}

func (c *CPU) execTestAcc(wide bool) {
	if wide {
		imm := c.fetchWord()
		alu.Test(&c.Flags, alu.Width16, uint32(c.GetReg16(AX)), uint32(imm))
	} else {
		imm := c.fetchByte()
		alu.Test(&c.Flags, alu.Width8, uint32(c.GetReg8(AL)), uint32(imm))
	}
}

// execUnaryGroup handles opcodes 0xF6/0xF7: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV.
func (c *CPU) execUnaryGroup(opcode byte) *cpufault.Fault {
	info := c.decodeModRM()
	wide := opcode == 0xF7
	op := info.RegField

	if wide {
		v := c.readRM16(info.RM)
		switch op {
		case 0, 1:
			imm := c.fetchWord()
			alu.Test(&c.Flags, alu.Width16, uint32(v), uint32(imm))
		case 2:
			c.writeRM16(info.RM, uint16(^v))
		case 3:
			c.writeRM16(info.RM, uint16(alu.Neg(&c.Flags, alu.Width16, uint32(v))))
		case 4:
			p := alu.Mul(&c.Flags, alu.Width16, uint32(c.GetReg16(AX)), uint32(v))
			c.SetReg16(AX, uint16(p))
			c.SetReg16(DX, uint16(p>>16))
		case 5:
			p := alu.Imul(&c.Flags, alu.Width16, uint32(c.GetReg16(AX)), uint32(v))
			c.SetReg16(AX, uint16(p))
			c.SetReg16(DX, uint16(p>>16))
		case 6:
			if v == 0 {
				return cpufault.DE("DIV by zero")
			}
			num := uint32(c.GetReg16(DX))<<16 | uint32(c.GetReg16(AX))
			q, r := num/uint32(v), num%uint32(v)
			if q > 0xFFFF {
				return cpufault.DE("DIV quotient overflow")
			}
			c.SetReg16(AX, uint16(q))
			c.SetReg16(DX, uint16(r))
		case 7:
			if v == 0 {
				return cpufault.DE("IDIV by zero")
			}
			num := int32(uint32(c.GetReg16(DX))<<16 | uint32(c.GetReg16(AX)))
			div := int32(int16(v))
			q, r := num/div, num%div
			if q > 0x7FFF || q < -0x8000 {
				return cpufault.DE("IDIV quotient overflow")
			}
			c.SetReg16(AX, uint16(int16(q)))
			c.SetReg16(DX, uint16(int16(r)))
		}
		return nil
	}

	v := c.readRM8(info.RM)
	switch op {
	case 0, 1:
		imm := c.fetchByte()
		alu.Test(&c.Flags, alu.Width8, uint32(v), uint32(imm))
	case 2:
		c.writeRM8(info.RM, ^v)
	case 3:
		c.writeRM8(info.RM, uint8(alu.Neg(&c.Flags, alu.Width8, uint32(v))))
	case 4:
		p := alu.Mul(&c.Flags, alu.Width8, uint32(c.GetReg8(AL)), uint32(v))
		c.SetReg16(AX, uint16(p))
	case 5:
		p := alu.Imul(&c.Flags, alu.Width8, uint32(c.GetReg8(AL)), uint32(v))
		c.SetReg16(AX, uint16(p))
	case 6:
		if v == 0 {
			return cpufault.DE("DIV by zero")
		}
		num := c.GetReg16(AX)
		q, r := num/uint16(v), num%uint16(v)
		if q > 0xFF {
			return cpufault.DE("DIV quotient overflow")
		}
		c.SetReg8(AL, uint8(q))
		c.SetReg8(AH, uint8(r))
	case 7:
		if v == 0 {
			return cpufault.DE("IDIV by zero")
		}
		num := int16(c.GetReg16(AX))
		div := int16(int8(v))
		q, r := num/div, num%div
		if q > 0x7F || q < -0x80 {
			return cpufault.DE("IDIV quotient overflow")
		}
		c.SetReg8(AL, uint8(int8(q)))
		c.SetReg8(AH, uint8(int8(r)))
	}
	return nil
}

// execImulImm handles opcodes 0x69 (IMUL r16, rm16, imm16) and 0x6B
// (IMUL r16, rm16, imm8 sign-extended): a 186+ three-operand signed
// multiply whose result (unlike the F7/5 one-operand form) is a single
// word, not an AX:DX pair.
func (c *CPU) execImulImm(immByte bool) *cpufault.Fault {
	info := c.decodeModRM()
	v := c.readRM16(info.RM)
	var imm uint16
	if immByte {
		imm = bits.SignExtend8(c.fetchByte())
	} else {
		imm = c.fetchWord()
	}
	p := alu.Imul(&c.Flags, alu.Width16, uint32(v), uint32(imm))
	c.SetReg16(Reg16(info.RegField), uint16(p))
	return nil
}

// shiftCountFrom returns the effective shift/rotate count for opcodes C0-D3,
// applying the 186+ modulo-32 rule (spec.md §4.1).
func (c *CPU) shiftCountFrom(opcode byte) uint8 {
	var count uint8
	switch opcode {
	case 0xC0, 0xC1:
		count = c.fetchByte()
	case 0xD0, 0xD1:
		count = 1
	case 0xD2, 0xD3:
		count = c.GetReg8(CL)
	}
	return alu.ShlCount(count, c.Model != Model8086)
}

// execShiftGroup handles opcodes 0xC0/0xC1/0xD0-0xD3: the shift/rotate
// group, ModRM reg field selecting ROL ROR RCL RCR SHL/SAL SHR SAL SAR.
func (c *CPU) execShiftGroup(opcode byte) *cpufault.Fault {
	info := c.decodeModRM()
	wide := opcode == 0xC1 || opcode == 0xD1 || opcode == 0xD3
	count := c.shiftCountFrom(opcode)

	apply := func(w alu.Width, v uint32) uint32 {
		switch info.RegField {
		case 0:
			return alu.Rol(&c.Flags, w, v, count)
		case 1:
			return alu.Ror(&c.Flags, w, v, count)
		case 2:
			return alu.Rcl(&c.Flags, w, v, count)
		case 3:
			return alu.Rcr(&c.Flags, w, v, count)
		case 4, 6:
			return alu.Shl(&c.Flags, w, v, count)
		case 5:
			return alu.Shr(&c.Flags, w, v, count)
		default: // 7
			return alu.Sar(&c.Flags, w, v, count)
		}
	}

	if wide {
		v := c.readRM16(info.RM)
		c.writeRM16(info.RM, uint16(apply(alu.Width16, uint32(v))))
	} else {
		v := c.readRM8(info.RM)
		c.writeRM8(info.RM, uint8(apply(alu.Width8, uint32(v))))
	}
	return nil
}

// execGroupFE_FF handles opcodes 0xFE/0xFF: INC/DEC (both), and on 0xFF
// also CALL/JMP (near and far, indirect through the r/m operand) and PUSH.
func (c *CPU) execGroupFE_FF(opcode byte) *cpufault.Fault {
	info := c.decodeModRM()
	if opcode == 0xFE {
		v := c.readRM8(info.RM)
		switch info.RegField {
		case 0:
			c.writeRM8(info.RM, uint8(alu.Inc(&c.Flags, alu.Width8, uint32(v))))
		case 1:
			c.writeRM8(info.RM, uint8(alu.Dec(&c.Flags, alu.Width8, uint32(v))))
		}
		return nil
	}

	switch info.RegField {
	case 0:
		v := c.readRM16(info.RM)
		c.writeRM16(info.RM, uint16(alu.Inc(&c.Flags, alu.Width16, uint32(v))))
	case 1:
		v := c.readRM16(info.RM)
		c.writeRM16(info.RM, uint16(alu.Dec(&c.Flags, alu.Width16, uint32(v))))
	case 2: // CALL near indirect
		target := c.readRM16(info.RM)
		c.Push(c.IP)
		c.IP = target
	case 3: // CALL far indirect
		if info.RM.IsReg {
			return cpufault.UD("far call requires a memory operand")
		}
		off := c.readMemWord(info.RM.Seg, info.RM.Off)
		seg := c.readMemWord(info.RM.Seg, info.RM.Off+2)
		return c.farCall(seg, off)
	case 4: // JMP near indirect
		c.IP = c.readRM16(info.RM)
	case 5: // JMP far indirect
		if info.RM.IsReg {
			return cpufault.UD("far jmp requires a memory operand")
		}
		off := c.readMemWord(info.RM.Seg, info.RM.Off)
		seg := c.readMemWord(info.RM.Seg, info.RM.Off+2)
		return c.farJmp(seg, off)
	case 6: // PUSH rm16
		c.Push(c.readRM16(info.RM))
	default:
		return cpufault.UD("undefined FF /7")
	}
	return nil
}
