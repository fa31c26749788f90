// Package nls implements the bump allocator for the static NLS and
// sysvars tables DOS guests expect to find in the ROM-like region above
// conventional memory, per spec.md §4.7.
package nls

import "github.com/dmsc-emu/emu2go/internal/memory"

// Tables records the linear addresses of every sub-allocation, handed
// back to internal/dos so its country/NLS handlers (spec.md §4.5) can
// populate and reference them.
type Tables struct {
	UppercaseTable uint32 // 16-bit length prefix + 128 entries + 16-byte callable stub
	TerminatorTable uint32 // 24 bytes
	CollatingTable  uint32 // length prefix + 256 bytes
	DBCSTable       uint32 // length prefix + 1 null entry
	CountryInfo     uint32 // 34 bytes
	Sysvars         uint32
}

// bump is a simple upward-growing allocator over [memory.ROMBase, memory.ROMTop).
type bump struct {
	mem *memory.Memory
	ptr uint32
}

func newBump(mem *memory.Memory) *bump {
	return &bump{mem: mem, ptr: memory.ROMBase}
}

func (b *bump) alloc(size uint32) uint32 {
	addr := b.ptr
	if addr+size > memory.ROMTop {
		panic("nls: ROM region exhausted")
	}
	b.ptr += size
	return addr
}

// Build lays out every NLS/sysvars sub-allocation in mem and returns
// their addresses, per spec.md §4.7.
func Build(mem *memory.Memory) Tables {
	b := newBump(mem)
	var t Tables

	t.UppercaseTable = b.alloc(2 + 128 + 16)
	mem.WriteWord(t.UppercaseTable, 128)
	for i := uint32(0); i < 128; i++ {
		mem.WriteByte(t.UppercaseTable+2+i, uppercaseEntry(byte(0x80+i)))
	}
	stubOff := t.UppercaseTable + 2 + 128
	// A callable far "uppercase one char" stub: trivial RETF padded with
	// NOPs. Its address is passed to writeCountryInfo, which does not
	// store it, so no country-info field points at this stub.
	mem.WriteByte(stubOff, 0xCB) // RETF
	for i := uint32(1); i < 16; i++ {
		mem.WriteByte(stubOff+i, 0x90) // NOP padding
	}

	t.TerminatorTable = b.alloc(24)
	terminatorTemplate := [22]byte{0x01, 0x00, '$', 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	mem.WriteBytes(t.TerminatorTable, terminatorTemplate[:])

	t.CollatingTable = b.alloc(2 + 256)
	mem.WriteWord(t.CollatingTable, 256)
	for i := uint32(0); i < 256; i++ {
		mem.WriteByte(t.CollatingTable+2+i, byte(i))
	}

	t.DBCSTable = b.alloc(2 + 1)
	mem.WriteWord(t.DBCSTable, 0)
	mem.WriteByte(t.DBCSTable+2, 0)

	t.CountryInfo = b.alloc(34)
	writeCountryInfo(mem, t.CountryInfo, stubOff)

	t.Sysvars = b.alloc(sysvarsSize)
	writeSysvars(mem, t.Sysvars, t)

	return t
}

// uppercaseEntry returns b unchanged: the table maps every byte in
// 0x80-0xFF to itself, with no CP437 case conversion, which suits a guest
// that never uses accented characters.
func uppercaseEntry(b byte) byte { return b }

func writeCountryInfo(mem *memory.Memory, addr uint32, uppercaseStub uint32) {
	buf := make([]byte, 34)
	buf[0] = 0 // date format: 0 = USA mm/dd/yy
	copy(buf[2:7], "$\x00\x00\x00\x00")
	buf[7] = '/' // date separator
	buf[9] = ':' // time separator
	buf[18] = ','  // thousands separator
	buf[20] = '.'  // decimal separator
	mem.WriteBytes(addr, buf)
}

const sysvarsSize = 128

func writeSysvars(mem *memory.Memory, addr uint32, t Tables) {
	buf := make([]byte, sysvarsSize)
	mem.WriteBytes(addr, buf)
}
