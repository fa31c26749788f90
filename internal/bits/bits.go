// Package bits provides operations to extract and manipulate ranges of bits
// from the register-sized integers the 8086 decoder and segmentation code
// work with (byte, word, dword).
//
// Range takes inclusive bit indices that are 1-indexed from the
// most-significant bit, and First/Last count bits from the MSB and LSB
// ends; Bit and SetBit take positions 0-indexed from the least-significant
// bit, matching the FLAGS and descriptor bit numbering of the Intel
// manuals this decoder is built against.
package bits

import _bits "math/bits"

// Last extracts the last n bits of b.
func Last(b uint32, n uint) uint32 {
	return b & ((1 << n) - 1)
}

// First extracts the first n bits of a width-wide value.
func First(b uint32, width, n uint) uint32 {
	return Last(b>>(width-n), n)
}

// Range extracts the inclusive range of bits [start:end] from a width-wide
// value. Both start and end are 1-indexed from the MSB.
func Range(b uint32, width uint, start, end uint) uint32 {
	if start > end {
		panic("bits: invalid range, start must be <= end")
	}
	tail := Last(b, width-(start-1))
	return First(tail, width-(start-1), end-start+1)
}

// Bit reports whether the bit at pos (0-indexed from the LSB) is set.
func Bit(b uint32, pos uint) bool {
	return b&(1<<pos) != 0
}

// SetBit returns b with the bit at pos (0-indexed from LSB) forced to v.
func SetBit(b uint32, pos uint, v bool) uint32 {
	if v {
		return b | (1 << pos)
	}
	return b &^ (1 << pos)
}

// Popcount returns the number of set bits, used by parity flag computation.
func Popcount(b byte) int {
	return _bits.OnesCount8(b)
}

// SignExtend8 sign-extends an 8-bit value to 16 bits.
func SignExtend8(b byte) uint16 {
	return uint16(int16(int8(b)))
}

// SignExtend16 sign-extends a 16-bit value to 32 bits.
func SignExtend16(w uint16) uint32 {
	return uint32(int32(int16(w)))
}
