package cpu

import (
	"github.com/dmsc-emu/emu2go/internal/cpufault"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// maxNestedFaults bounds the fault-during-fault-delivery recursion before
// the CPU gives up and resets, modeling the 8086/80286 triple-fault reset
// path of spec.md §4.2.
const maxNestedFaults = 3

// raiseInterrupt delivers interrupt/exception vector n. isFault distinguishes
// a CPU-raised exception (which restarts at StartIP rather than the
// already-advanced IP, and which in protected mode pushes errorCode when
// the vector is #TS, #NP or #GP) from a software INT or hardware IRQ.
func (c *CPU) raiseInterrupt(vector uint8, isFault bool, errorCode uint16) *cpufault.Fault {
	c.nestedFaults++
	if c.nestedFaults > maxNestedFaults {
		c.tripleFaultReset()
		return nil
	}
	defer func() { c.nestedFaults = 0 }()

	if isFault {
		c.IP = c.StartIP
	}

	if !c.ProtectedMode {
		c.deliverRealMode(vector)
		return nil
	}
	hasError := isFault && (vector == cpufault.InvalidTSS || vector == cpufault.SegmentNotPresent || vector == cpufault.GeneralProtection)
	return c.deliverProtectedMode(vector, hasError, errorCode)
}

// deliverRealMode pushes FLAGS/CS/IP and loads the IVT entry at vector*4,
// per spec.md §4.2's real-mode interrupt delivery.
func (c *CPU) deliverRealMode(vector uint8) {
	c.Push(c.Flags.Compress())
	c.Push(c.Seg[CSIdx()].Selector)
	c.Push(c.IP)
	c.Flags.SetIF(false)
	c.Flags.SetTF(false)

	entryOff := uint32(vector) * 4
	ip := c.Mem.ReadWord(entryOff)
	cs := c.Mem.ReadWord(entryOff + 2)
	c.Seg[CSIdx()] = segment.Cache{
		Selector: cs,
		Base:     uint32(cs) << 4,
		Limit:    0xFFFF,
		Flags:    0x9A,
	}
	c.IP = ip
}

// deliverProtectedMode walks the IDT for an interrupt/trap/task gate,
// per spec.md §4.2. Only interrupt/trap gates (types 0x6/0x7/0xE/0xF) are
// modeled; a privilege transition pushes the caller's SS:SP below the
// return frame.
func (c *CPU) deliverProtectedMode(vector uint8, hasError bool, errorCode uint16) *cpufault.Fault {
	byteOff := uint32(vector) * 8
	if uint32(c.Tables.IDT.Limit) < byteOff+7 {
		return cpufault.GP(uint16(vector)*8+2, "IDT entry beyond limit")
	}
	var gate segment.RawDescriptor
	copy(gate[:], c.Mem.ReadBytes(c.Tables.IDT.Base+byteOff, 8))

	if !gate.Present() {
		return cpufault.NP(uint16(vector)*8+2, "interrupt gate not present")
	}

	gateSel := gate.GateSelector()
	gateOff := gate.GateOffset()
	gateDPL := segment.DPL(gate.Access())

	targetDesc, fault := segment.ReadDescriptor(c.Mem, &c.Tables, gateSel)
	if fault != nil {
		return fault
	}
	targetDPL := segment.DPL(targetDesc.Access())

	oldFlags := c.Flags.Compress()
	oldCS := c.Seg[CSIdx()].Selector
	oldIP := c.IP

	cache, _, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, true, gateSel, true, c.CPL)
	if fault != nil {
		return fault
	}

	if targetDPL < c.CPL {
		oldSS := c.Seg[segment.SS].Selector
		oldSP := c.Regs[SP]
		c.CPL = gateDPL
		c.Seg[CSIdx()] = cache
		c.Push(oldSS)
		c.Push(oldSP)
		c.Push(oldFlags)
		c.Push(oldCS)
		c.Push(oldIP)
	} else {
		c.Seg[CSIdx()] = cache
		c.Push(oldFlags)
		c.Push(oldCS)
		c.Push(oldIP)
	}
	if hasError {
		c.Push(errorCode)
	}

	c.Flags.SetIF(false)
	c.Flags.SetTF(false)
	c.IP = gateOff
	return nil
}

// execIRET handles opcode 0xCF: pop IP, CS, FLAGS, with the protected-mode
// stack-switch-back case when returning to a lower-privilege segment
// (spec.md §4.2).
func (c *CPU) execIRET() *cpufault.Fault {
	ip := c.Pop()
	cs := c.Pop()
	flags := c.Pop()

	targetRPL := uint8(cs & 0x3)
	cache, newCPL, fault := segment.LoadCodeSegment(c.Mem, &c.Tables, c.ProtectedMode, cs, true, c.CPL)
	if fault != nil {
		return fault
	}

	if c.ProtectedMode && targetRPL > c.CPL {
		sp := c.Pop()
		ssSel := c.Pop()
		ssCache, fault := segment.LoadDataSegment(c.Mem, &c.Tables, c.ProtectedMode, ssSel)
		if fault != nil {
			return fault
		}
		c.Seg[segment.SS] = ssCache
		c.Regs[SP] = sp
	}

	c.Seg[CSIdx()] = cache
	c.IP = ip
	c.Flags.Expand(flags)
	c.CPL = newCPL
	return nil
}

// tripleFaultReset resets the CPU to its power-on state, matching a real
// 8086/80286's response to a fault raised while delivering another fault
// at the same instruction boundary.
func (c *CPU) tripleFaultReset() {
	c.nestedFaults = 0
	c.Regs = [8]uint16{}
	c.IP = 0xFFF0
	c.Flags.Expand(0x0002)
	c.Tables = segment.Reset()
	c.CPL = 0
	c.ProtectedMode = false
	c.Seg[CSIdx()] = segment.Cache{Selector: 0xF000, Base: 0xF0000, Limit: 0xFFFF, Flags: 0x9A}
	c.Seg[SSIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	c.Seg[DSIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	c.Seg[ESIdx()] = segment.Cache{Base: 0, Limit: 0xFFFF, Flags: 0x92}
	c.Halted = false
}

// Deliver takes a fault returned by Step and injects it as the
// corresponding CPU exception, restarting the faulting instruction's IP.
// The host adapter's run loop calls this whenever Step returns non-nil.
func (c *CPU) Deliver(f *cpufault.Fault) {
	c.raiseInterrupt(f.Vector, true, f.ErrorCode)
}

// CheckIRQ delivers the lowest-pending hardware IRQ if interrupts are
// enabled, called once per outer Step loop iteration by the host adapter
// (spec.md §4.6). Protected-mode IRQ handling is deliberately suppressed
// per spec.md §4.2. The pending line number is translated to its vector
// (INT 8+n for n<8, INT 0x68+n otherwise) before delivery.
func (c *CPU) CheckIRQ() {
	if !c.Flags.Interrupt() || c.ProtectedMode {
		return
	}
	if n, ok := c.IRQ.lowestPending(); ok {
		c.Halted = false
		c.raiseInterrupt(irqVector(n), false, 0)
	}
}

// irqVector maps a hardware IRQ line number to its interrupt vector, per
// spec.md §4.2's PIC-style 8259 remapping (IRQ0-7 -> INT 8-0xF, IRQ8-15 ->
// INT 0x68-0x6F).
func irqVector(n uint8) uint8 {
	if n < 8 {
		return 8 + n
	}
	return 0x68 + n
}
