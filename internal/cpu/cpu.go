// Package cpu implements the fetch/decode/dispatch loop for the 8086
// instruction set plus the 80186 extensions and the subset of 80286
// protected-mode segment handling spec.md §4.1/§4.2 describes.
//
// The CPU struct generalizes hejops-gone/cpu.Cpu (plain exported register
// fields, a pointer to a memory bus, a tick/fetch-execute method) from the
// 6502's fixed-width, no-segmentation, no-ModRM world to the 8086's
// variable-length, ModRM-addressed, segmented, prefix-carrying world.
package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/flags"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// Reg16 names the eight general-purpose word registers in their ModRM
// encoding order.
type Reg16 int

const (
	AX Reg16 = iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
)

// Reg8 names the eight byte registers in their ModRM encoding order.
type Reg8 int

const (
	AL Reg8 = iota
	CL
	DL
	BL
	AH
	CH
	DH
	BH
)

// Model selects 8086 vs 80186+ behavioral toggles spec.md §4.1/§4.2 call
// out explicitly (shift count modulo 32, PUSH SP quirk).
type Model int

const (
	Model8086 Model = iota
	Model80186
	Model80286
)

// BIOSTrap is invoked when CS=0 and IP is within the trampoline range
// (spec.md §3/§6): a single byte at each address 0..0xFF encodes the
// interrupt/service number. The host adapter registers one of these per
// trampoline IP; after it returns, the CPU executes IRET.
type BIOSTrap func(c *CPU, serviceIP uint8)

// IRQSource models the host adapter's IRQ line (spec.md §4.2): OR-ed pending
// bits, consumed lowest-bit-first once per outer loop iteration.
type IRQSource struct {
	pending uint32
}

// Trigger ORs bit n into the pending mask.
func (s *IRQSource) Trigger(n uint8) { s.pending |= 1 << n }

// lowestPending returns the lowest set bit's index and clears it, or
// (0, false) if nothing is pending.
func (s *IRQSource) lowestPending() (uint8, bool) {
	if s.pending == 0 {
		return 0, false
	}
	for n := uint8(0); n < 32; n++ {
		if s.pending&(1<<n) != 0 {
			s.pending &^= 1 << n
			return n, true
		}
	}
	return 0, false
}

// CPU is the full machine state: general registers, flags, segment
// caches, descriptor tables, and the prefix state captured during fetch.
// A flatter design (per spec.md §9 DESIGN NOTES) holds prefix state as a
// value captured once per instruction rather than recursing into the
// decoder, so REP iteration is an explicit loop with IRQ check points
// disabled for strict atomicity.
type CPU struct {
	Regs [8]uint16 // indexed by Reg16

	IP      uint16
	StartIP uint16 // IP at the start of the current instruction, for fault restart

	Flags flags.Flags

	Seg    [4]segment.Cache // indexed by segment.Register (ES, CS, SS, DS)
	Tables segment.Tables
	CPL    uint8

	ProtectedMode bool
	Model         Model
	Push286SP     bool // false: PUSH SP pushes SP-2 (8086); true: pre-decrement SP (286)

	Mem *memory.Memory

	IRQ        IRQSource
	Halted     bool
	nestedFaults int

	BIOSTraps [256]BIOSTrap

	// Ports is the port I/O hook table (spec.md §4.6). No package in this
	// repository installs handlers into it (internal/hostadapter does
	// not), so it stays zero-valued: IN reads as all-ones and OUT is
	// discarded, which is the natural behavior of an unmapped bus.
	Ports PortIO

	// prefix state, captured during fetch and consumed by the single
	// execute step; cleared after the instruction completes.
	segOverride *segment.Register
	repPrefix   repKind
	lockPrefix  bool
}

type repKind int

const (
	repNone repKind = iota
	repEqual
	repNotEqual
)

// New returns a CPU reset to real-mode power-on state.
func New(mem *memory.Memory) *CPU {
	c := &CPU{Mem: mem, Model: Model80186}
	c.Tables = segment.Reset()
	c.Flags.Expand(0x0002)
	// CS:IP = F000:FFF0 matches real BIOS reset; emu2's boot path
	// overwrites this immediately when a guest is loaded (see
	// internal/loader), so the exact reset vector is cosmetic.
	c.Seg[CSIdx()] = segment.Cache{Selector: 0xF000, Base: 0xF0000, Limit: 0xFFFF, Flags: 0x9A}
	c.Seg[SSIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	c.Seg[DSIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	c.Seg[ESIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	return c
}

func CSIdx() segment.Register { return segment.CS }
func DSIdx() segment.Register { return segment.DS }
func ESIdx() segment.Register { return segment.ES }
func SSIdx() segment.Register { return segment.SS }

// GetReg16 reads a word register by ModRM encoding.
func (c *CPU) GetReg16(r Reg16) uint16 { return c.Regs[r] }

// SetReg16 writes a word register by ModRM encoding.
func (c *CPU) SetReg16(r Reg16, v uint16) { c.Regs[r] = v }

// GetReg8 reads a byte register, decomposing AX/CX/DX/BX into their high
// and low halves per the 8086 ModRM byte-register encoding.
func (c *CPU) GetReg8(r Reg8) uint8 {
	if r < 4 {
		return uint8(c.Regs[r])
	}
	return uint8(c.Regs[r-4] >> 8)
}

// SetReg8 writes a byte register, preserving the other half of its parent
// word register.
func (c *CPU) SetReg8(r Reg8, v uint8) {
	if r < 4 {
		c.Regs[r] = c.Regs[r]&0xFF00 | uint16(v)
		return
	}
	parent := r - 4
	c.Regs[parent] = c.Regs[parent]&0x00FF | uint16(v)<<8
}

// fetchByte reads the byte at CS:IP and advances IP.
func (c *CPU) fetchByte() byte {
	b := c.Mem.ReadByte(c.Seg[CSIdx()].LinearAddress(c.IP))
	c.IP++
	return b
}

// fetchWord reads the little-endian word at CS:IP and advances IP by 2.
func (c *CPU) fetchWord() uint16 {
	lo := c.fetchByte()
	hi := c.fetchByte()
	return uint16(lo) | uint16(hi)<<8
}

// defaultDataSegment returns DS, unless a segment override prefix was
// captured for this instruction.
func (c *CPU) defaultDataSegment() segment.Register {
	if c.segOverride != nil {
		return *c.segOverride
	}
	return segment.DS
}

// DefaultDataSeg exposes DS to callers outside the package (internal/dos
// reads DS:DX-style string arguments the same way instruction semantics
// read a default-segment memory operand).
func (c *CPU) DefaultDataSeg() segment.Register { return segment.DS }

// stackSegment always returns SS; a segment override never applies to
// implicit stack references.
func (c *CPU) stackSegment() segment.Register { return segment.SS }

// readMemByte reads a byte through a segment's cache at the given offset.
func (c *CPU) readMemByte(seg segment.Register, off uint16) byte {
	return c.Mem.ReadByte(c.Seg[seg].LinearAddress(off))
}

func (c *CPU) writeMemByte(seg segment.Register, off uint16, v byte) {
	c.Mem.WriteByte(c.Seg[seg].LinearAddress(off), v)
}

func (c *CPU) readMemWord(seg segment.Register, off uint16) uint16 {
	return c.Mem.ReadWord(c.Seg[seg].LinearAddress(off))
}

func (c *CPU) writeMemWord(seg segment.Register, off uint16, v uint16) {
	c.Mem.WriteWord(c.Seg[seg].LinearAddress(off), v)
}

// ReadByte, WriteByte, ReadWord and WriteWord expose segment:offset memory
// access to callers outside the package (internal/hostadapter,
// internal/dos), which need to read/write guest memory through a
// segment's cache the same way the decoder's instruction semantics do.
func (c *CPU) ReadByte(seg segment.Register, off uint16) byte   { return c.readMemByte(seg, off) }
func (c *CPU) WriteByte(seg segment.Register, off uint16, v byte) { c.writeMemByte(seg, off, v) }
func (c *CPU) ReadWord(seg segment.Register, off uint16) uint16 { return c.readMemWord(seg, off) }
func (c *CPU) WriteWord(seg segment.Register, off uint16, v uint16) { c.writeMemWord(seg, off, v) }

// Push pushes a word onto the stack. The PUSH-SP quirk (spec.md §4.1) is
// handled by the caller, since only the PUSH SP instruction itself needs
// the pre/post-decrement distinction; every other push uses the value
// already computed.
func (c *CPU) Push(v uint16) {
	c.Regs[SP] -= 2
	c.writeMemWord(c.stackSegment(), c.Regs[SP], v)
}

// Pop pops a word off the stack.
func (c *CPU) Pop() uint16 {
	v := c.readMemWord(c.stackSegment(), c.Regs[SP])
	c.Regs[SP] += 2
	return v
}

// SignalFault is how instruction semantics report a restartable exception:
// Step returns it, and Deliver hands it to the interrupt engine, which
// rewinds IP to StartIP before delivery.
type SignalFault = cpufault.Fault
