// Package segment implements the real-mode and protected-mode segment
// translation spec.md §3/§4.2 describes: a descriptor cache per segment
// register, the GDTR/LDTR/IDTR/TR table registers, and the GDT/LDT
// descriptor reads used by segment loads and far calls. It does not
// read the TSS.
//
// The teacher's Cpu struct (hejops-gone/cpu/cpu.go) keeps plain exported
// fields on a value-ish struct; Cache follows the same shape, generalized
// from "no segmentation" (the 6502 has none) to the four-register
// descriptor-cache model the 8086/80286 needs.
package segment

import (
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/memory"
)

// Register names the four segment registers.
type Register int

const (
	ES Register = iota
	CS
	SS
	DS
)

// Cache is the descriptor-cache entry spec.md §3 specifies for each
// segment register.
type Cache struct {
	Selector uint16
	Base     uint32
	Limit    uint16
	Flags    byte
	RPL      uint8
}

// Descriptor table flag bits (8-byte descriptor's access byte, i.e. byte 5).
const (
	FlagPresent = 1 << 7
	FlagDPLShift = 5 // bits 5-6
	FlagS       = 1 << 4 // 1 = code/data, 0 = system
	FlagTypeMask = 0x0F
)

const (
	TypeCallGate = 0x4
)

// DPL extracts the descriptor privilege level from a raw access byte.
func DPL(access byte) uint8 {
	return (access >> 5) & 0x3
}

// DescriptorTable models GDTR/LDTR/IDTR: a 32-bit base and 16-bit limit.
type DescriptorTable struct {
	Base  uint32
	Limit uint16
}

// TaskRegister adds the cached base/limit/flags the hardware TR keeps
// alongside its selector.
type TaskRegister struct {
	Selector uint16
	Base     uint32
	Limit    uint16
	Flags    byte
}

// Tables holds GDTR, LDTR (itself a selector into the GDT plus its own
// cached base/limit), IDTR, and TR — everything a descriptor walk needs.
type Tables struct {
	GDT DescriptorTable
	LDT TaskRegister // selector + cached base/limit/flags from its GDT entry
	IDT DescriptorTable
	TR  TaskRegister
}

// Reset returns the table set at its documented reset values (spec.md §3).
func Reset() Tables {
	return Tables{
		GDT: DescriptorTable{Base: 0, Limit: 0xFFFF},
		LDT: TaskRegister{Limit: 0xFFFF},
		IDT: DescriptorTable{Base: 0, Limit: 0x03FF},
		TR:  TaskRegister{Limit: 0xFFFF},
	}
}

// RawDescriptor is the raw 8 bytes of a GDT/LDT/IDT entry.
type RawDescriptor [8]byte

// Base extracts the 24-bit segment base (80286 descriptors only use 24
// bits of base) from a raw code/data descriptor.
func (d RawDescriptor) Base() uint32 {
	return uint32(d[2]) | uint32(d[3])<<8 | uint32(d[7])<<16
}

// Limit extracts the 16-bit segment limit.
func (d RawDescriptor) Limit() uint16 {
	return uint16(d[0]) | uint16(d[1])<<8
}

// Access returns the raw access byte (byte 5).
func (d RawDescriptor) Access() byte { return d[5] }

// Present reports the descriptor's P bit.
func (d RawDescriptor) Present() bool { return d.Access()&FlagPresent != 0 }

// IsSystem reports whether the S bit is 0 (a system descriptor, e.g. a
// call gate, rather than a code/data segment).
func (d RawDescriptor) IsSystem() bool { return d.Access()&FlagS == 0 }

// Type returns the low 4 type bits of the access byte.
func (d RawDescriptor) Type() byte { return d.Access() & FlagTypeMask }

// IsCode reports whether this is a code-segment descriptor (S=1, bit 3 of
// type set).
func (d RawDescriptor) IsCode() bool { return !d.IsSystem() && d.Access()&0x08 != 0 }

// Conforming reports the conforming bit of a code-segment descriptor.
func (d RawDescriptor) Conforming() bool { return d.IsCode() && d.Access()&0x04 != 0 }

// GateOffset reassembles an 80286 call gate's 16-bit target offset (bytes
// 0-1; bytes 6-7 are reserved/zero on a 286-style gate).
func (d RawDescriptor) GateOffset() uint16 {
	return uint16(d[0]) | uint16(d[1])<<8
}

// GateSelector reassembles a call-gate's target selector (bytes 2-3).
func (d RawDescriptor) GateSelector() uint16 {
	return uint16(d[2]) | uint16(d[3])<<8
}

// GateParamCount returns the low 5 bits of byte 4: the number of stack
// words a call gate copies from the outer stack to the inner stack.
func (d RawDescriptor) GateParamCount() uint8 {
	return d[4] & 0x1F
}

// selectorTableIndicator reports whether bit 2 selects the LDT (true) or
// GDT (false), per spec.md §3.
func selectorTableIndicator(selector uint16) bool {
	return selector&0x4 != 0
}

// SelectorIndex extracts the descriptor index (bits 3-15) from a selector.
func SelectorIndex(selector uint16) uint16 { return selector >> 3 }

// SelectorRPL extracts the requested privilege level (bits 0-1).
func SelectorRPL(selector uint16) uint8 { return uint8(selector & 0x3) }

// ReadDescriptor walks the GDT or LDT (by selector bit 2) and returns the
// raw 8-byte descriptor at that selector's index.
func ReadDescriptor(mem *memory.Memory, t *Tables, selector uint16) (RawDescriptor, *cpufault.Fault) {
	var base uint32
	var limit uint16
	if selectorTableIndicator(selector) {
		base, limit = t.LDT.Base, t.LDT.Limit
	} else {
		base, limit = t.GDT.Base, t.GDT.Limit
	}
	idx := SelectorIndex(selector)
	byteOff := uint32(idx) * 8
	if uint32(limit) < byteOff+7 {
		return RawDescriptor{}, cpufault.GP(selector&0xFFF8, "descriptor index beyond table limit")
	}
	var d RawDescriptor
	raw := mem.ReadBytes(base+byteOff, 8)
	copy(d[:], raw)
	return d, nil
}

// LoadDataSegment implements SetDataSegment from spec.md §4.2: in real
// mode it fills the cache trivially; in protected mode it walks GDT/LDT.
// A null selector is permitted silently (yielding a zero cache); #NP/#GP
// are raised only when the descriptor itself is bad.
func LoadDataSegment(mem *memory.Memory, t *Tables, protectedMode bool, selector uint16) (Cache, *cpufault.Fault) {
	if !protectedMode {
		return Cache{
			Selector: selector,
			Base:     uint32(selector) << 4,
			Limit:    0xFFFF,
			Flags:    0x92,
		}, nil
	}
	if selector&0xFFF8 == 0 {
		return Cache{Selector: selector}, nil
	}
	d, fault := ReadDescriptor(mem, t, selector)
	if fault != nil {
		return Cache{}, fault
	}
	if !d.Present() {
		return Cache{}, cpufault.NP(selector&0xFFF8, "data segment descriptor not present")
	}
	if d.IsSystem() || d.IsCode() && d.Access()&0x02 == 0 {
		return Cache{}, cpufault.GP(selector&0xFFF8, "data segment descriptor wrong type")
	}
	return Cache{
		Selector: selector,
		Base:     d.Base(),
		Limit:    d.Limit(),
		Flags:    d.Access(),
		RPL:      SelectorRPL(selector),
	}, nil
}

// LoadCodeSegment implements SetCodeSegment from spec.md §4.2. If setCPL
// is true, the returned CPL is the descriptor's DPL.
func LoadCodeSegment(mem *memory.Memory, t *Tables, protectedMode bool, selector uint16, setCPL bool, curCPL uint8) (Cache, uint8, *cpufault.Fault) {
	if !protectedMode {
		return Cache{
			Selector: selector,
			Base:     uint32(selector) << 4,
			Limit:    0xFFFF,
			Flags:    0x9A,
		}, curCPL, nil
	}
	if selector&0xFFF8 == 0 {
		return Cache{}, curCPL, cpufault.GP(selector, "null selector loaded into CS")
	}
	d, fault := ReadDescriptor(mem, t, selector)
	if fault != nil {
		return Cache{}, curCPL, fault
	}
	if !d.Present() {
		return Cache{}, curCPL, cpufault.NP(selector&0xFFF8, "code segment descriptor not present")
	}
	if !d.IsCode() {
		return Cache{}, curCPL, cpufault.GP(selector&0xFFF8, "code segment descriptor not executable")
	}
	newCPL := curCPL
	if setCPL {
		newCPL = DPL(d.Access())
	}
	return Cache{
		Selector: selector,
		Base:     d.Base(),
		Limit:    d.Limit(),
		Flags:    d.Access(),
		RPL:      SelectorRPL(selector),
	}, newCPL, nil
}

// LinearAddress translates an offset within a loaded segment into a
// physical linear address.
func (c Cache) LinearAddress(offset uint16) uint32 {
	return c.Base + uint32(offset)
}
