package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// execMov handles opcodes 0x88-0x8B: MOV between a register and an r/m
// operand in all four direction/width combinations.
func (c *CPU) execMov(opcode byte) {
	info := c.decodeModRM()
	switch opcode {
	case 0x88: // Eb, Gb
		c.writeRM8(info.RM, c.GetReg8(Reg8(info.RegField)))
	case 0x89: // Ev, Gv
		c.writeRM16(info.RM, c.GetReg16(Reg16(info.RegField)))
	case 0x8A: // Gb, Eb
		c.SetReg8(Reg8(info.RegField), c.readRM8(info.RM))
	case 0x8B: // Gv, Ev
		c.SetReg16(Reg16(info.RegField), c.readRM16(info.RM))
	}
}

// execMovImm handles opcodes 0xC6/0xC7: MOV r/m, imm.
func (c *CPU) execMovImm(opcode byte) {
	info := c.decodeModRM()
	if opcode == 0xC7 {
		c.writeRM16(info.RM, c.fetchWord())
	} else {
		c.writeRM8(info.RM, c.fetchByte())
	}
}

// execMovAcc handles opcodes 0xA0-0xA3: MOV AL/AX to/from a direct
// memory offset in the current data segment.
func (c *CPU) execMovAcc(opcode byte) {
	off := c.fetchWord()
	seg := c.defaultDataSegment()
	switch opcode {
	case 0xA0:
		c.SetReg8(AL, c.readMemByte(seg, off))
	case 0xA1:
		c.SetReg16(AX, c.readMemWord(seg, off))
	case 0xA2:
		c.writeMemByte(seg, off, c.GetReg8(AL))
	case 0xA3:
		c.writeMemWord(seg, off, c.GetReg16(AX))
	}
}

// segRegFromField maps a ModRM-style segment-register field (bits 4:3 of
// the 0x06/0x0E/0x16/0x1E/0x8C/0x8E family) to a segment.Register.
func segRegFromField(field uint8) segment.Register {
	switch field & 0x3 {
	case 0:
		return segment.ES
	case 1:
		return segment.CS
	case 2:
		return segment.SS
	default:
		return segment.DS
	}
}

// execPushPopSeg handles the single-byte PUSH/POP segment-register
// opcodes 0x06/0x07/0x0E/0x16/0x17/0x1E/0x1F.
func (c *CPU) execPushPopSeg(opcode byte) {
	var seg segment.Register
	var isPush bool
	switch opcode {
	case 0x06:
		seg, isPush = segment.ES, true
	case 0x07:
		seg, isPush = segment.ES, false
	case 0x0E:
		seg, isPush = segment.CS, true
	case 0x16:
		seg, isPush = segment.SS, true
	case 0x17:
		seg, isPush = segment.SS, false
	case 0x1E:
		seg, isPush = segment.DS, true
	case 0x1F:
		seg, isPush = segment.DS, false
	}
	if isPush {
		c.Push(c.Seg[seg].Selector)
		return
	}
	sel := c.Pop()
	cache, fault := segment.LoadDataSegment(c.Mem, &c.Tables, c.ProtectedMode, sel)
	if fault == nil {
		c.Seg[seg] = cache
	}
}

// execMovSegTo handles opcode 0x8C: MOV r/m16, Sreg.
func (c *CPU) execMovSegTo() {
	info := c.decodeModRM()
	seg := segRegFromField(info.RegField)
	c.writeRM16(info.RM, c.Seg[seg].Selector)
}

// execMovToSeg handles opcode 0x8E: MOV Sreg, r/m16.
func (c *CPU) execMovToSeg() *cpufault.Fault {
	info := c.decodeModRM()
	seg := segRegFromField(info.RegField)
	sel := c.readRM16(info.RM)
	cache, fault := segment.LoadDataSegment(c.Mem, &c.Tables, c.ProtectedMode, sel)
	if fault != nil {
		return fault
	}
	c.Seg[seg] = cache
	return nil
}

// execLea handles opcode 0x8D: LEA reg, m. A register-form ModRM (mod==3)
// is illegal (#UD), per spec.md §4.1.
func (c *CPU) execLea() *cpufault.Fault {
	info := c.decodeModRM()
	if info.RM.IsReg {
		return cpufault.UD("LEA with register operand")
	}
	c.SetReg16(Reg16(info.RegField), info.RM.Off)
	return nil
}

// execLxs handles opcodes 0xC4 (LES) and 0xC5 (LDS): load a far pointer
// from memory into (ES|DS):reg.
func (c *CPU) execLxs(seg segment.Register) *cpufault.Fault {
	info := c.decodeModRM()
	if info.RM.IsReg {
		return cpufault.UD("LES/LDS with register operand")
	}
	off := c.readMemWord(info.RM.Seg, info.RM.Off)
	selector := c.readMemWord(info.RM.Seg, info.RM.Off+2)
	cache, fault := segment.LoadDataSegment(c.Mem, &c.Tables, c.ProtectedMode, selector)
	if fault != nil {
		return fault
	}
	c.Seg[seg] = cache
	c.SetReg16(Reg16(info.RegField), off)
	return nil
}

// execPopRM handles opcode 0x8F: POP r/m16.
func (c *CPU) execPopRM() {
	info := c.decodeModRM()
	c.writeRM16(info.RM, c.Pop())
}

// execXchg handles opcodes 0x86/0x87: XCHG reg, r/m.
func (c *CPU) execXchg(wide bool) {
	info := c.decodeModRM()
	if wide {
		a := c.GetReg16(Reg16(info.RegField))
		b := c.readRM16(info.RM)
		c.SetReg16(Reg16(info.RegField), b)
		c.writeRM16(info.RM, a)
	} else {
		a := c.GetReg8(Reg8(info.RegField))
		b := c.readRM8(info.RM)
		c.SetReg8(Reg8(info.RegField), b)
		c.writeRM8(info.RM, a)
	}
}

// execPusha handles opcode 0x60 (80186+): push all eight registers, SP
// pushed with its original (pre-PUSHA) value.
func (c *CPU) execPusha() *cpufault.Fault {
	if c.Model == Model8086 {
		return cpufault.UD("PUSHA requires 80186+")
	}
	sp := c.Regs[SP]
	order := []Reg16{AX, CX, DX, BX, SP, BP, SI, DI}
	for _, r := range order {
		if r == SP {
			c.Push(sp)
		} else {
			c.Push(c.GetReg16(r))
		}
	}
	return nil
}

// execPopa handles opcode 0x61 (80186+): pop all eight registers in
// reverse PUSHA order, discarding the popped SP value.
func (c *CPU) execPopa() *cpufault.Fault {
	if c.Model == Model8086 {
		return cpufault.UD("POPA requires 80186+")
	}
	order := []Reg16{DI, SI, BP, SP, BX, DX, CX, AX}
	for _, r := range order {
		v := c.Pop()
		if r != SP {
			c.SetReg16(r, v)
		}
	}
	return nil
}

// cbw implements opcode 0x98: sign-extend AL into AX.
func (c *CPU) cbw() {
	al := int8(c.GetReg8(AL))
	c.SetReg16(AX, uint16(int16(al)))
}

// cwd implements opcode 0x99: sign-extend AX into DX:AX.
func (c *CPU) cwd() {
	ax := int16(c.GetReg16(AX))
	if ax < 0 {
		c.SetReg16(DX, 0xFFFF)
	} else {
		c.SetReg16(DX, 0)
	}
}

// sahf implements opcode 0x9E: load AH into the low byte of FLAGS.
func (c *CPU) sahf() {
	cur := c.Flags.Compress()
	merged := cur&0xFF00 | uint16(c.GetReg8(AH))
	c.Flags.Expand(merged)
}

// lahf implements opcode 0x9F: store the low byte of FLAGS into AH.
func (c *CPU) lahf() {
	c.SetReg8(AH, uint8(c.Flags.Compress()))
}

// xlat implements opcode 0xD7: AL = [defaultSeg:BX+AL].
func (c *CPU) xlat() {
	seg := c.defaultDataSegment()
	off := c.GetReg16(BX) + uint16(c.GetReg8(AL))
	c.SetReg8(AL, c.readMemByte(seg, off))
}

// daa implements opcode 0x27 (Decimal Adjust after Addition).
func (c *CPU) daa() {
	al := c.GetReg8(AL)
	oldAL := al
	oldCF := c.Flags.Carry()
	c.Flags.SetCF(false)
	if al&0xF > 9 || c.Flags.Aux() {
		carry := al > 0xF9
		al += 6
		c.Flags.SetAF(true)
		c.Flags.SetCF(oldCF || carry)
	} else {
		c.Flags.SetAF(false)
	}
	if oldAL > 0x99 || oldCF {
		al += 0x60
		c.Flags.SetCF(true)
	}
	c.setAL(al)
}

// das implements opcode 0x2F (Decimal Adjust after Subtraction).
func (c *CPU) das() {
	al := c.GetReg8(AL)
	oldAL := al
	oldCF := c.Flags.Carry()
	c.Flags.SetCF(false)
	if al&0xF > 9 || c.Flags.Aux() {
		carry := al < 6
		al -= 6
		c.Flags.SetAF(true)
		c.Flags.SetCF(oldCF || carry)
	} else {
		c.Flags.SetAF(false)
	}
	if oldAL > 0x99 || oldCF {
		al -= 0x60
		c.Flags.SetCF(true)
	}
	c.setAL(al)
}

func (c *CPU) setAL(v uint8) {
	c.SetReg8(AL, v)
	c.Flags.SetZF(v == 0)
	c.Flags.SetSF(v&0x80 != 0)
	count := 0
	for b := v; b != 0; b &= b - 1 {
		count++
	}
	c.Flags.SetPF(count%2 == 0)
}

// aaa implements opcode 0x37 (ASCII Adjust after Addition).
func (c *CPU) aaa() {
	al := c.GetReg8(AL)
	if al&0xF > 9 || c.Flags.Aux() {
		c.SetReg8(AL, (al+6)&0xF)
		c.SetReg8(AH, c.GetReg8(AH)+1)
		c.Flags.SetAF(true)
		c.Flags.SetCF(true)
	} else {
		c.SetReg8(AL, al&0xF)
		c.Flags.SetAF(false)
		c.Flags.SetCF(false)
	}
}

// aas implements opcode 0x3F (ASCII Adjust after Subtraction).
func (c *CPU) aas() {
	al := c.GetReg8(AL)
	if al&0xF > 9 || c.Flags.Aux() {
		c.SetReg8(AL, (al-6)&0xF)
		c.SetReg8(AH, c.GetReg8(AH)-1)
		c.Flags.SetAF(true)
		c.Flags.SetCF(true)
	} else {
		c.SetReg8(AL, al&0xF)
		c.Flags.SetAF(false)
		c.Flags.SetCF(false)
	}
}

// aam implements opcode 0xD4 (ASCII Adjust after Multiplication); divisor
// 0 raises #DE per spec.md §4.1.
func (c *CPU) aam() *cpufault.Fault {
	base := c.fetchByte()
	if base == 0 {
		return cpufault.DE("AAM with divisor 0")
	}
	al := c.GetReg8(AL)
	c.SetReg8(AH, al/base)
	c.setAL(al % base)
	return nil
}

// aad implements opcode 0xD5 (ASCII Adjust before Division).
func (c *CPU) aad() {
	base := c.fetchByte()
	al := c.GetReg8(AL)
	ah := c.GetReg8(AH)
	result := al + ah*base
	c.SetReg8(AH, 0)
	c.setAL(result)
}
