// Package alu implements the arithmetic/logic primitives the decoder's
// instruction semantics call into, each updating a flags.Flags cell set
// per the rules spec.md §4.1 lays out. Every primitive is width-generic
// over byte (8) or word (16) operands, selected by the Width parameter,
// mirroring how hejops-gone/cpu/instructions.go keeps one function per
// semantic operation rather than duplicating per-addressing-mode copies.
package alu

import "github.com/dmsc-emu/emu2go/internal/flags"

// Width selects the operand size an ALU primitive operates on.
type Width int

const (
	Width8 Width = 8
	Width16 Width = 16
)

func (w Width) mask() uint32 {
	if w == Width8 {
		return 0xFF
	}
	return 0xFFFF
}

func (w Width) signBit() uint32 {
	if w == Width8 {
		return 0x80
	}
	return 0x8000
}

func parity(v uint32) bool {
	b := byte(v)
	count := 0
	for b != 0 {
		count += int(b & 1)
		b >>= 1
	}
	return count%2 == 0
}

func setLogical(f *flags.Flags, w Width, result uint32) uint32 {
	result &= w.mask()
	f.SetCF(false)
	f.SetOF(false)
	f.SetAF(false)
	f.SetZF(result == 0)
	f.SetSF(result&w.signBit() != 0)
	f.SetPF(parity(result))
	return result
}

// And computes a AND b with logic-group flag rules.
func And(f *flags.Flags, w Width, a, b uint32) uint32 { return setLogical(f, w, a&b) }

// Or computes a OR b with logic-group flag rules.
func Or(f *flags.Flags, w Width, a, b uint32) uint32 { return setLogical(f, w, a|b) }

// Xor computes a XOR b with logic-group flag rules.
func Xor(f *flags.Flags, w Width, a, b uint32) uint32 { return setLogical(f, w, a^b) }

// Test computes a AND b for flags only, discarding the result (TEST insn).
func Test(f *flags.Flags, w Width, a, b uint32) { setLogical(f, w, a&b) }

// setArith evaluates a width-wide add/sub family primitive from unmasked
// 64-bit signed inputs, so the true (unwrapped) result is available for
// carry/borrow and overflow detection before masking down to width bits.
func setArith(f *flags.Flags, w Width, a, b int64, carryIn uint32, isSub bool) uint32 {
	mask := int64(w.mask())
	var raw int64
	var auxA, auxB, auxC int64 = a & 0xF, b & 0xF, int64(carryIn)
	if isSub {
		raw = a - b - int64(carryIn)
		f.SetAF(auxA-auxB-auxC < 0)
		f.SetCF(raw < 0)
	} else {
		raw = a + b + int64(carryIn)
		f.SetAF(auxA+auxB+auxC > 0xF)
		f.SetCF(raw > mask)
	}
	masked := uint32(raw) & w.mask()
	f.SetZF(masked == 0)
	f.SetSF(masked&w.signBit() != 0)
	f.SetPF(parity(masked))

	aSign := uint32(a)&w.signBit() != 0
	bSign := uint32(b)&w.signBit() != 0
	rSign := masked&w.signBit() != 0
	if isSub {
		f.SetOF(aSign != bSign && rSign != aSign)
	} else {
		f.SetOF(aSign == bSign && rSign != aSign)
	}
	return masked
}

// Add computes a + b.
func Add(f *flags.Flags, w Width, a, b uint32) uint32 {
	return setArith(f, w, int64(a&w.mask()), int64(b&w.mask()), 0, false)
}

// Adc computes a + b + CF.
func Adc(f *flags.Flags, w Width, a, b uint32) uint32 {
	return setArith(f, w, int64(a&w.mask()), int64(b&w.mask()), uint32(boolBit(f.Carry())), false)
}

// Sub computes a - b.
func Sub(f *flags.Flags, w Width, a, b uint32) uint32 {
	return setArith(f, w, int64(a&w.mask()), int64(b&w.mask()), 0, true)
}

// Sbb computes a - b - CF.
func Sbb(f *flags.Flags, w Width, a, b uint32) uint32 {
	return setArith(f, w, int64(a&w.mask()), int64(b&w.mask()), uint32(boolBit(f.Carry())), true)
}

// Cmp computes a - b for flags only, discarding the result (CMP insn).
func Cmp(f *flags.Flags, w Width, a, b uint32) { Sub(f, w, a, b) }

// Inc computes a + 1, leaving CF untouched, per spec.md §4.1.
func Inc(f *flags.Flags, w Width, a uint32) uint32 {
	saved := f.CF
	r := setArith(f, w, int64(a&w.mask()), 1, 0, false)
	f.CF = saved
	return r
}

// Dec computes a - 1, leaving CF untouched.
func Dec(f *flags.Flags, w Width, a uint32) uint32 {
	saved := f.CF
	r := setArith(f, w, int64(a&w.mask()), 1, 0, true)
	f.CF = saved
	return r
}

// Neg computes 0 - a (the NEG instruction), setting CF = (a != 0).
func Neg(f *flags.Flags, w Width, a uint32) uint32 {
	r := Sub(f, w, 0, a)
	f.SetCF(a != 0)
	return r
}

// Mul computes an unsigned multiply, returning the full double-width
// product; CF=OF=1 iff the high half is nonzero.
func Mul(f *flags.Flags, w Width, a, b uint32) uint64 {
	product := uint64(a&w.mask()) * uint64(b&w.mask())
	hi := product >> uint(w)
	f.SetCF(hi != 0)
	f.SetOF(hi != 0)
	f.SetZF(product&uint64(w.mask()) == 0)
	return product
}

// Imul computes a signed multiply, returning the full double-width product
// as a raw bit pattern; CF=OF=1 iff the high half is not a sign extension
// of the low half.
func Imul(f *flags.Flags, w Width, a, b uint32) uint64 {
	var sa, sb int64
	if w == Width8 {
		sa, sb = int64(int8(a)), int64(int8(b))
	} else {
		sa, sb = int64(int16(a)), int64(int16(b))
	}
	product := sa * sb
	lowMask := int64(w.mask())
	low := product & lowMask
	signExtended := low
	if low&int64(w.signBit()) != 0 {
		signExtended = low | ^lowMask
	}
	overflow := signExtended != product
	f.SetCF(overflow)
	f.SetOF(overflow)
	return uint64(product) & ((uint64(1) << (2 * uint(w))) - 1)
}

// ShlCount applies the shift-count modulo rule (mod 32 on 186+; kept as a
// parameter so callers can select 8086 vs 186+ semantics at the call
// site, per spec.md §4.1's compile-time toggle).
func ShlCount(count uint8, is186Plus bool) uint8 {
	if is186Plus {
		return count % 32
	}
	return count
}

// Shl shifts left by count, 0 < count, updating CF/OF/SF/ZF/PF and
// zeroing AF, per spec.md §4.1.
func Shl(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	if count == 0 {
		return a & w.mask()
	}
	result := a
	var lastOut uint32
	for i := uint8(0); i < count; i++ {
		lastOut = (result >> (uint(w) - 1)) & 1
		result <<= 1
	}
	result &= w.mask()
	f.SetCF(lastOut != 0)
	f.SetAF(false)
	f.SetZF(result == 0)
	f.SetSF(result&w.signBit() != 0)
	f.SetPF(parity(result))
	if count == 1 {
		msbAfter := result&w.signBit() != 0
		f.SetOF(msbAfter != (lastOut != 0))
	}
	return result
}

// Shr shifts right (unsigned/logical) by count.
func Shr(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	if count == 0 {
		return a & w.mask()
	}
	a &= w.mask()
	msbBefore := a&w.signBit() != 0
	result := a
	var lastOut uint32
	for i := uint8(0); i < count; i++ {
		lastOut = result & 1
		result >>= 1
	}
	f.SetCF(lastOut != 0)
	f.SetAF(false)
	f.SetZF(result == 0)
	f.SetSF(result&w.signBit() != 0)
	f.SetPF(parity(result))
	if count == 1 {
		f.SetOF(msbBefore)
	}
	return result
}

// Sar shifts right arithmetic (sign-extending) by count.
func Sar(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	if count == 0 {
		return a & w.mask()
	}
	a &= w.mask()
	signed := int32(a)
	if a&w.signBit() != 0 {
		if w == Width8 {
			signed = int32(int8(a))
		} else {
			signed = int32(int16(a))
		}
	}
	var lastOut uint32
	result := signed
	for i := uint8(0); i < count; i++ {
		lastOut = uint32(result) & 1
		result >>= 1
	}
	masked := uint32(result) & w.mask()
	f.SetCF(lastOut != 0)
	f.SetAF(false)
	f.SetZF(masked == 0)
	f.SetSF(masked&w.signBit() != 0)
	f.SetPF(parity(masked))
	if count == 1 {
		f.SetOF(false)
	}
	return masked
}

// Rol rotates left by count, setting OF from the MSB versus CF after the
// final rotate when count == 1.
func Rol(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	if count == 0 {
		return a & w.mask()
	}
	a &= w.mask()
	width := uint(w)
	n := uint(count) % width
	result := ((a << n) | (a >> (width - n))) & w.mask()
	cf := result&1 != 0
	f.SetCF(cf)
	if count == 1 {
		msb := result&w.signBit() != 0
		f.SetOF(msb != cf)
	}
	return result
}

// Ror rotates right by count, setting OF from the two high bits after the
// final rotate when count == 1.
func Ror(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	if count == 0 {
		return a & w.mask()
	}
	a &= w.mask()
	width := uint(w)
	n := uint(count) % width
	result := ((a >> n) | (a << (width - n))) & w.mask()
	msb := result&w.signBit() != 0
	f.SetCF(msb)
	if count == 1 {
		second := result&(w.signBit()>>1) != 0
		f.SetOF(msb != second)
	}
	return result
}

// Rcl rotates left through carry by count.
func Rcl(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	width := uint(w)
	n := uint(count) % (width + 1)
	a &= w.mask()
	cf := f.Carry()
	result := a
	for i := uint(0); i < n; i++ {
		newCF := result&w.signBit() != 0
		result = ((result << 1) | boolBit(cf)) & w.mask()
		cf = newCF
	}
	f.SetCF(cf)
	if count == 1 {
		msb := result&w.signBit() != 0
		f.SetOF(msb != cf)
	}
	return result
}

// Rcr rotates right through carry by count.
func Rcr(f *flags.Flags, w Width, a uint32, count uint8) uint32 {
	width := uint(w)
	n := uint(count) % (width + 1)
	a &= w.mask()
	cf := f.Carry()
	result := a
	for i := uint(0); i < n; i++ {
		newCF := result&1 != 0
		result = (result >> 1) | (boolBit(cf) << (width - 1))
		result &= w.mask()
		cf = newCF
	}
	f.SetCF(cf)
	if count == 1 {
		msb := result&w.signBit() != 0
		second := result&(w.signBit()>>1) != 0
		f.SetOF(msb != second)
	}
	return result
}

func boolBit(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
