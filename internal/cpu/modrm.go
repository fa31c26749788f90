package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/bits"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// RM is a decoded ModRM r/m operand: either a register or a memory
// reference (segment + 16-bit offset within it).
type RM struct {
	IsReg bool
	Reg   uint8 // register index (interpreted as Reg8 or Reg16 by caller width)
	Seg   segment.Register
	Off   uint16
}

// modrmInfo is everything decodeModRM extracts from the ModRM byte plus
// any trailing displacement bytes.
type modrmInfo struct {
	Mod     uint8
	RegField uint8
	RM      RM
}

// decodeModRM fetches the ModRM byte (and any displacement) at CS:IP,
// applying the current segment-override prefix to the default DS/SS
// segment per spec.md §4.1.
func (c *CPU) decodeModRM() modrmInfo {
	b := c.fetchByte()
	mod := b >> 6
	reg := (b >> 3) & 0x7
	rm := b & 0x7

	if mod == 3 {
		return modrmInfo{Mod: mod, RegField: reg, RM: RM{IsReg: true, Reg: rm}}
	}

	var base, index uint16
	hasBase, hasIndex := true, true
	defaultSS := false

	switch rm {
	case 0:
		base, index = c.Regs[BX], c.Regs[SI]
	case 1:
		base, index = c.Regs[BX], c.Regs[DI]
	case 2:
		base, index = c.Regs[BP], c.Regs[SI]
		defaultSS = true
	case 3:
		base, index = c.Regs[BP], c.Regs[DI]
		defaultSS = true
	case 4:
		base, hasIndex = c.Regs[SI], false
	case 5:
		base, hasIndex = c.Regs[DI], false
	case 6:
		if mod == 0 {
			// direct 16-bit displacement, no base register
			hasBase, hasIndex = false, false
		} else {
			base = c.Regs[BP]
			defaultSS = true
			hasIndex = false
		}
	case 7:
		base, hasIndex = c.Regs[BX], false
	}
	_ = hasIndex

	var disp uint16
	switch {
	case mod == 0 && rm == 6:
		disp = c.fetchWord()
	case mod == 1:
		disp = bits.SignExtend8(c.fetchByte())
	case mod == 2:
		disp = c.fetchWord()
	}

	var off uint16
	if hasBase {
		off += base
	}
	if rm == 0 || rm == 1 || rm == 2 || rm == 3 {
		off += index
	}
	off += disp

	seg := segment.DS
	if defaultSS {
		seg = segment.SS
	}
	if c.segOverride != nil {
		seg = *c.segOverride
	}

	return modrmInfo{Mod: mod, RegField: reg, RM: RM{IsReg: false, Seg: seg, Off: off}}
}

// readRM8 reads an 8-bit operand from a decoded RM.
func (c *CPU) readRM8(rm RM) uint8 {
	if rm.IsReg {
		return c.GetReg8(Reg8(rm.Reg))
	}
	return c.readMemByte(rm.Seg, rm.Off)
}

// writeRM8 writes an 8-bit operand to a decoded RM.
func (c *CPU) writeRM8(rm RM, v uint8) {
	if rm.IsReg {
		c.SetReg8(Reg8(rm.Reg), v)
		return
	}
	c.writeMemByte(rm.Seg, rm.Off, v)
}

// readRM16 reads a 16-bit operand from a decoded RM.
func (c *CPU) readRM16(rm RM) uint16 {
	if rm.IsReg {
		return c.GetReg16(Reg16(rm.Reg))
	}
	return c.readMemWord(rm.Seg, rm.Off)
}

// writeRM16 writes a 16-bit operand to a decoded RM.
func (c *CPU) writeRM16(rm RM, v uint16) {
	if rm.IsReg {
		c.SetReg16(Reg16(rm.Reg), v)
		return
	}
	c.writeMemWord(rm.Seg, rm.Off, v)
}

// SetModRMRMx and GetModRMRMx round-trip a register or memory r/m operand
// verbatim; spec.md §8 requires SetModRMRMx(b, GetModRMRMx(b)) to be a
// no-op for every ModRM byte and register pair. The 16-bit forms are used
// here; the round-trip law is identical for 8-bit operands.
func (c *CPU) GetModRMRMx(rm RM) uint16 { return c.readRM16(rm) }
func (c *CPU) SetModRMRMx(rm RM, v uint16) { c.writeRM16(rm, v) }
