package cpu

import (
	"fmt"

	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// exec0F handles the 80286 two-byte 0x0F opcode group: the descriptor-
// table and machine-status instructions spec.md §4.2 lists (LGDT, LIDT,
// LLDT, LTR, LMSW, SMSW, CLTS). LGDT, LIDT, LLDT, LTR, LMSW and CLTS
// require CPL==0; SGDT, SIDT and SMSW do not.
func (c *CPU) exec0F() *cpufault.Fault {
	opcode := c.fetchByte()
	switch opcode {
	case 0x00: // group: LLDT/LTR/VERR/VERW (mod/reg/rm)
		return c.exec0F00()
	case 0x01: // group: SGDT/SIDT/LGDT/LIDT/SMSW/LMSW
		return c.exec0F01()
	case 0x06: // CLTS
		if c.CPL != 0 {
			return cpufault.GP(0, "CLTS requires CPL 0")
		}
		c.Tables.TR.Flags &^= 0x08 // clear task-switched bit, bit 3 of TR cache flags
		return nil
	default:
		return cpufault.UD(fmt.Sprintf("unimplemented 0F opcode 0x%02X", opcode))
	}
}

func (c *CPU) exec0F00() *cpufault.Fault {
	info := c.decodeModRM()
	switch info.RegField {
	case 2: // LLDT
		if c.CPL != 0 {
			return cpufault.GP(0, "LLDT requires CPL 0")
		}
		sel := c.readRM16(info.RM)
		desc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, sel)
		if fault != nil {
			return fault
		}
		c.Tables.LDT = segment.TaskRegister{
			Selector: sel,
			Base:     desc.Base(),
			Limit:    desc.Limit(),
			Flags:    desc.Access(),
		}
	case 3: // LTR
		if c.CPL != 0 {
			return cpufault.GP(0, "LTR requires CPL 0")
		}
		sel := c.readRM16(info.RM)
		desc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, sel)
		if fault != nil {
			return fault
		}
		c.Tables.TR = segment.TaskRegister{
			Selector: sel,
			Base:     desc.Base(),
			Limit:    desc.Limit(),
			Flags:    desc.Access(),
		}
	default:
		return cpufault.UD("unimplemented 0F 00 /reg")
	}
	return nil
}

func (c *CPU) exec0F01() *cpufault.Fault {
	info := c.decodeModRM()
	switch info.RegField {
	case 0: // SGDT
		c.writeMemWord(info.RM.Seg, info.RM.Off, c.Tables.GDT.Limit)
		c.writeMemDword(info.RM.Seg, info.RM.Off+2, c.Tables.GDT.Base)
	case 1: // SIDT
		c.writeMemWord(info.RM.Seg, info.RM.Off, c.Tables.IDT.Limit)
		c.writeMemDword(info.RM.Seg, info.RM.Off+2, c.Tables.IDT.Base)
	case 2: // LGDT
		if c.CPL != 0 {
			return cpufault.GP(0, "LGDT requires CPL 0")
		}
		limit := c.readMemWord(info.RM.Seg, info.RM.Off)
		base := c.readMemDword(info.RM.Seg, info.RM.Off+2)
		c.Tables.GDT = segment.DescriptorTable{Base: base & 0xFFFFFF, Limit: limit}
	case 3: // LIDT
		if c.CPL != 0 {
			return cpufault.GP(0, "LIDT requires CPL 0")
		}
		limit := c.readMemWord(info.RM.Seg, info.RM.Off)
		base := c.readMemDword(info.RM.Seg, info.RM.Off+2)
		c.Tables.IDT = segment.DescriptorTable{Base: base & 0xFFFFFF, Limit: limit}
	case 4: // SMSW
		c.writeRM16(info.RM, c.machineStatusWord())
	case 6: // LMSW
		if c.CPL != 0 {
			return cpufault.GP(0, "LMSW requires CPL 0")
		}
		msw := c.readRM16(info.RM)
		c.setMachineStatusWord(msw)
	default:
		return cpufault.UD("unimplemented 0F 01 /reg")
	}
	return nil
}

// machineStatusWord packs the 80286 MSW: bit 0 is PE (protected-mode
// enable), the remaining bits spec.md §4.2 leaves unmodeled read as 0.
func (c *CPU) machineStatusWord() uint16 {
	if c.ProtectedMode {
		return 1
	}
	return 0
}

// setMachineStatusWord applies an LMSW write. Per the 80286, PE can be
// set but never cleared by LMSW; only a reset clears it.
func (c *CPU) setMachineStatusWord(msw uint16) {
	if msw&1 != 0 {
		c.ProtectedMode = true
	}
}

func (c *CPU) readMemDword(seg segment.Register, off uint16) uint32 {
	lo := c.readMemWord(seg, off)
	hi := c.readMemWord(seg, off+2)
	return uint32(lo) | uint32(hi)<<16
}

func (c *CPU) writeMemDword(seg segment.Register, off uint16, v uint32) {
	c.writeMemWord(seg, off, uint16(v))
	c.writeMemWord(seg, off+2, uint16(v>>16))
}
