package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/alu"
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// stringStep returns the operand width (1 or 2) by which SI/DI move;
// advanceSI and advanceDI apply it in the direction DF selects.
func (c *CPU) stringStep(wide bool) uint16 {
	if wide {
		return 2
	}
	return 1
}

func (c *CPU) advanceSI(width uint16) {
	if c.Flags.Direction() {
		c.Regs[SI] -= width
	} else {
		c.Regs[SI] += width
	}
}

func (c *CPU) advanceDI(width uint16) {
	if c.Flags.Direction() {
		c.Regs[DI] -= width
	} else {
		c.Regs[DI] += width
	}
}

// execStringOp handles the fourteen string-instruction opcodes (MOVS/CMPS/
// STOS/LODS/SCAS/INS/OUTS in byte and word form), applying the REP/REPZ/
// REPNZ prefix captured during fetch as an explicit loop per spec.md §9
// DESIGN NOTES: each iteration is atomic and IRQ delivery only happens
// between whole REP-driven instructions, not mid-string.
func (c *CPU) execStringOp(opcode byte) *cpufault.Fault {
	wide := opcode&0x01 != 0
	width := c.stringStep(wide)
	hasRep := c.repPrefix != repNone

	// iterate runs step once for a bare instruction, or CX times under a
	// REP-family prefix. Only CMPS/SCAS (checkZF) additionally break on
	// ZF mismatch per spec.md §4.1; MOVS/STOS/LODS/INS/OUTS loop purely
	// on CX regardless of which REP-family prefix byte preceded them.
	iterate := func(checkZF bool, step func()) {
		if !hasRep {
			step()
			return
		}
		for c.GetReg16(CX) != 0 {
			step()
			c.SetReg16(CX, c.GetReg16(CX)-1)
			if !checkZF {
				continue
			}
			if c.repPrefix == repEqual && !c.Flags.Zero() {
				break
			}
			if c.repPrefix == repNotEqual && c.Flags.Zero() {
				break
			}
		}
	}

	switch opcode {
	case 0xA4, 0xA5: // MOVSB/MOVSW
		iterate(false, func() {
			seg := c.defaultDataSegment()
			if wide {
				v := c.readMemWord(seg, c.Regs[SI])
				c.writeMemWord(segment.ES, c.Regs[DI], v)
			} else {
				v := c.readMemByte(seg, c.Regs[SI])
				c.writeMemByte(segment.ES, c.Regs[DI], v)
			}
			c.advanceSI(width)
			c.advanceDI(width)
		})
	case 0xA6, 0xA7: // CMPSB/CMPSW
		iterate(true, func() {
			seg := c.defaultDataSegment()
			if wide {
				a := c.readMemWord(seg, c.Regs[SI])
				b := c.readMemWord(segment.ES, c.Regs[DI])
				alu.Cmp(&c.Flags, alu.Width16, uint32(a), uint32(b))
			} else {
				a := c.readMemByte(seg, c.Regs[SI])
				b := c.readMemByte(segment.ES, c.Regs[DI])
				alu.Cmp(&c.Flags, alu.Width8, uint32(a), uint32(b))
			}
			c.advanceSI(width)
			c.advanceDI(width)
		})
	case 0xAA, 0xAB: // STOSB/STOSW
		iterate(false, func() {
			if wide {
				c.writeMemWord(segment.ES, c.Regs[DI], c.GetReg16(AX))
			} else {
				c.writeMemByte(segment.ES, c.Regs[DI], c.GetReg8(AL))
			}
			c.advanceDI(width)
		})
	case 0xAC, 0xAD: // LODSB/LODSW
		iterate(false, func() {
			seg := c.defaultDataSegment()
			if wide {
				c.SetReg16(AX, c.readMemWord(seg, c.Regs[SI]))
			} else {
				c.SetReg8(AL, c.readMemByte(seg, c.Regs[SI]))
			}
			c.advanceSI(width)
		})
	case 0xAE, 0xAF: // SCASB/SCASW
		iterate(true, func() {
			if wide {
				v := c.readMemWord(segment.ES, c.Regs[DI])
				alu.Cmp(&c.Flags, alu.Width16, uint32(c.GetReg16(AX)), uint32(v))
			} else {
				v := c.readMemByte(segment.ES, c.Regs[DI])
				alu.Cmp(&c.Flags, alu.Width8, uint32(c.GetReg8(AL)), uint32(v))
			}
			c.advanceDI(width)
		})
	case 0x6C, 0x6D: // INSB/INSW
		iterate(false, func() {
			if wide {
				c.writeMemWord(segment.ES, c.Regs[DI], c.InPort16(c.GetReg16(DX)))
			} else {
				c.writeMemByte(segment.ES, c.Regs[DI], c.InPort8(c.GetReg16(DX)))
			}
			c.advanceDI(width)
		})
	case 0x6E, 0x6F: // OUTSB/OUTSW
		iterate(false, func() {
			seg := c.defaultDataSegment()
			if wide {
				c.OutPort16(c.GetReg16(DX), c.readMemWord(seg, c.Regs[SI]))
			} else {
				c.OutPort8(c.GetReg16(DX), c.readMemByte(seg, c.Regs[SI]))
			}
			c.advanceSI(width)
		})
	}
	return nil
}
