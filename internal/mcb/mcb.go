// Package mcb implements the DOS memory-control-block allocator: a
// singly linked chain of 16-byte headers over paragraph-addressed
// memory, supporting first/best/last-fit allocation, per spec.md §4.3.
//
// Grounded on hejops-gone/mem's flat-array ownership style, generalized
// from a byte bus to a paragraph-chain allocator; the panic-on-corruption
// posture follows mask.go's "invariant violation panics" convention.
package mcb

import (
	"fmt"

	"github.com/dmsc-emu/emu2go/internal/memory"
)

// Strategy selects first/best/last-fit allocation, per spec.md §4.3's
// allocation-strategy byte (bits 0-1; bits 2-7 are reserved and stored
// verbatim by the caller, not modeled here).
type Strategy uint8

const (
	FirstFit Strategy = 0
	BestFit  Strategy = 1
	LastFit  Strategy = 2
)

const headerSize = 16

// Allocator owns the MCB chain starting at mcbStart (a paragraph/segment
// number) within mem.
type Allocator struct {
	mem      *memory.Memory
	mcbStart uint16
	Strategy Strategy
}

// New returns an allocator whose chain begins at mcbStart with a single
// free block spanning to maxSeg (exclusive), terminated by a 'Z' block.
func New(mem *memory.Memory, mcbStart, maxSeg uint16) *Allocator {
	a := &Allocator{mem: mem, mcbStart: mcbStart}
	size := maxSeg - mcbStart - 1
	a.writeHeader(mcbStart, 'Z', 0, size)
	return a
}

func headerAddr(seg uint16) uint32 { return uint32(seg) << 4 }

func (a *Allocator) writeHeader(seg uint16, tag byte, owner uint16, size uint16) {
	base := headerAddr(seg)
	a.mem.WriteByte(base, tag)
	a.mem.WriteWord(base+1, owner)
	a.mem.WriteWord(base+3, size)
}

type block struct {
	seg   uint16
	tag   byte
	owner uint16
	size  uint16
}

func (a *Allocator) readBlock(seg uint16) block {
	base := headerAddr(seg)
	return block{
		seg:   seg,
		tag:   a.mem.ReadByte(base),
		owner: a.mem.ReadWord(base + 1),
		size:  a.mem.ReadWord(base + 3),
	}
}

// walk calls visit for every block from mcbStart to the terminating 'Z'
// block inclusive. It panics if the chain does not terminate within
// memory bounds, per spec.md §8's chain invariant.
func (a *Allocator) walk(visit func(block) bool) {
	seg := a.mcbStart
	for i := 0; i < 0xFFFF; i++ {
		b := a.readBlock(seg)
		if b.tag != 'M' && b.tag != 'Z' {
			panic(fmt.Sprintf("mcb: corrupt chain tag %q at segment %04X", b.tag, seg))
		}
		if !visit(b) {
			return
		}
		if b.tag == 'Z' {
			return
		}
		seg = seg + b.size + 1
	}
	panic("mcb: chain did not terminate within memory bounds")
}

// coalesce merges every run of adjacent free blocks in the chain. Called
// before each allocation walk and after each free, per spec.md §4.3.
func (a *Allocator) coalesce() {
	seg := a.mcbStart
	for {
		b := a.readBlock(seg)
		if b.tag == 'Z' {
			return
		}
		next := a.readBlock(seg + b.size + 1)
		if b.owner == 0 && next.owner == 0 {
			merged := b.size + 1 + next.size
			a.writeHeader(seg, next.tag, 0, merged)
			continue // re-examine seg in case another free block follows
		}
		seg = seg + b.size + 1
	}
}

// Allocate reserves size paragraphs for owner, returning the payload
// segment (mcb segment + 1). On failure it returns 0 and the largest
// free block size currently available, per spec.md §4.3.
func (a *Allocator) Allocate(size uint16, owner uint16) (uint16, uint16) {
	a.coalesce()

	var chosen *block
	var largest uint16

	a.walk(func(b block) bool {
		if b.owner != 0 {
			return true
		}
		if b.size > largest {
			largest = b.size
		}
		if b.size < size {
			return true
		}
		switch a.Strategy {
		case BestFit:
			if chosen == nil || b.size < chosen.size {
				cp := b
				chosen = &cp
			}
		case LastFit:
			cp := b
			chosen = &cp
		default: // FirstFit
			if chosen == nil {
				cp := b
				chosen = &cp
			}
		}
		return true
	})

	if chosen == nil {
		return 0, largest
	}

	if a.Strategy == LastFit {
		return a.splitTail(*chosen, size, owner), 0
	}
	return a.splitHead(*chosen, size, owner), 0
}

// splitHead carves the front of b into an owned block of size, leaving a
// trailing free remainder (first/best-fit), per spec.md §4.3.
func (a *Allocator) splitHead(b block, size uint16, owner uint16) uint16 {
	if b.size == size {
		a.writeHeader(b.seg, b.tag, owner, b.size)
		return b.seg + 1
	}
	remainder := b.size - size - 1
	a.writeHeader(b.seg, 'M', owner, size)
	a.writeHeader(b.seg+size+1, b.tag, 0, remainder)
	return b.seg + 1
}

// splitTail carves the tail of b into an owned block of size, leaving a
// leading free remainder (last-fit), per spec.md §4.3. On an exact match
// both header writes land on b.seg and the second one wins, so the whole
// block goes to owner and no remainder block is created.
func (a *Allocator) splitTail(b block, size uint16, owner uint16) uint16 {
	newSeg := b.seg + (b.size - size)
	remainder := b.size - size - 1
	a.writeHeader(b.seg, 'M', 0, remainder)
	a.writeHeader(newSeg, b.tag, owner, size)
	return newSeg + 1
}

// SetOwner rewrites the owner tag of the block whose payload segment is
// seg, without otherwise disturbing it. Used when a block's owning PSP
// is only known after allocation (e.g. a process's own PSP and
// environment blocks, which are self-owned), per
// original_source/src/loader.c's mcb_set_owner.
func (a *Allocator) SetOwner(seg uint16, owner uint16) {
	mcbSeg := seg - 1
	b := a.readBlock(mcbSeg)
	a.writeHeader(mcbSeg, b.tag, owner, b.size)
}

// Free clears the owner of the block whose payload segment is seg, then
// coalesces adjacent free blocks.
func (a *Allocator) Free(seg uint16) {
	mcbSeg := seg - 1
	b := a.readBlock(mcbSeg)
	a.writeHeader(mcbSeg, b.tag, 0, b.size)
	a.coalesce()
}

// Resize changes the payload block at seg to newSize paragraphs, growing
// into a following free block if needed or shrinking and splitting off
// a trailing free block. It returns the size actually achieved, which
// may be less than newSize if insufficient free space follows.
func (a *Allocator) Resize(seg uint16, newSize uint16) uint16 {
	mcbSeg := seg - 1
	b := a.readBlock(mcbSeg)

	if newSize <= b.size {
		if newSize == b.size {
			return b.size
		}
		remainder := b.size - newSize - 1
		a.writeHeader(mcbSeg, 'M', b.owner, newSize)
		a.writeHeader(mcbSeg+newSize+1, b.tag, 0, remainder)
		a.coalesce()
		return newSize
	}

	a.coalesce()
	b = a.readBlock(mcbSeg)
	if b.tag == 'Z' {
		return b.size
	}
	next := a.readBlock(mcbSeg + b.size + 1)
	available := b.size + 1 + next.size
	if next.owner != 0 {
		available = b.size
	}
	achieved := newSize
	if achieved > available {
		achieved = available
	}
	if achieved == b.size {
		return achieved
	}
	remainder := available - achieved
	if remainder == 0 {
		a.writeHeader(mcbSeg, next.tag, b.owner, achieved)
	} else {
		a.writeHeader(mcbSeg, 'M', b.owner, achieved)
		a.writeHeader(mcbSeg+achieved+1, next.tag, 0, remainder-1)
	}
	return achieved
}

// LargestFree reports the largest contiguous free block's size in
// paragraphs, after coalescing.
func (a *Allocator) LargestFree() uint16 {
	a.coalesce()
	var largest uint16
	a.walk(func(b block) bool {
		if b.owner == 0 && b.size > largest {
			largest = b.size
		}
		return true
	})
	return largest
}

// Verify panics if the chain invariant of spec.md §8 is violated:
// walking size+1 steps from mcbStart must reach exactly one 'Z' block.
func (a *Allocator) Verify() {
	a.walk(func(block) bool { return true })
}
