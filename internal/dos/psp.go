package dos

import (
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/memory"
)

// dupPSP implements AH=55h: duplicates the current PSP's first 0x80
// bytes into the segment given in DX, then sets the new PSP's parent
// field to the current PSP, per spec.md §4.5's PSP-management group.
// Real DOS uses this internally before an EXEC; it is exposed here for
// guests that call it directly (e.g. to build a PSP for a COMMAND.COM
// front end).
func (d *Dispatcher) dupPSP(c *cpu.CPU) {
	newSeg := c.GetReg16(cpu.DX)
	src := memory.LinearAddr(d.CurPSP, 0)
	dst := memory.LinearAddr(newSeg, 0)
	d.Mem.WriteBytes(dst, d.Mem.ReadBytes(src, 0x80))
	d.Mem.WriteWord(dst+0x16, d.CurPSP)
	d.ok(c)
}
