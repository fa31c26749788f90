package dos

import (
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// memOp implements AH=48h (allocate), 49h (free), 4Ah (resize/modify),
// per spec.md §4.3/§4.5: 48h returns the new block's segment in AX,
// 49h/4Ah take the block's segment from ES, the size in paragraphs is in
// BX on entry for 48h/4Ah, and the owner is tagged with the current PSP.
func (d *Dispatcher) memOp(c *cpu.CPU, ah uint8) {
	switch ah {
	case 0x48:
		size := c.GetReg16(cpu.BX)
		seg, largest := d.Alloc.Allocate(size, d.CurPSP)
		if seg == 0 {
			c.SetReg16(cpu.BX, largest)
			d.fail(c, 8) // insufficient memory
			return
		}
		c.SetReg16(cpu.AX, seg)
		d.ok(c)
	case 0x49:
		d.Alloc.Free(c.Seg[segment.ES].Selector)
		d.ok(c)
	case 0x4A:
		achieved := d.Alloc.Resize(c.Seg[segment.ES].Selector, c.GetReg16(cpu.BX))
		if achieved < c.GetReg16(cpu.BX) {
			c.SetReg16(cpu.BX, achieved)
			d.fail(c, 8)
			return
		}
		d.ok(c)
	}
}
