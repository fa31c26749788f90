package dos

import (
	"time"

	"github.com/dmsc-emu/emu2go/internal/cpu"
)

// dateTime implements AH=2Ah-2Dh: get date, set date (silently refused),
// get time, set time (silently refused), per spec.md §4.5. The host wall
// clock is the only time source; there is no virtual guest clock to
// advance independently.
func (d *Dispatcher) dateTime(c *cpu.CPU, ah uint8) {
	now := time.Now()
	switch ah {
	case 0x2A:
		c.SetReg16(cpu.CX, uint16(now.Year()))
		c.SetReg8(cpu.DH, uint8(now.Month()))
		c.SetReg8(cpu.DL, uint8(now.Day()))
		c.SetReg8(cpu.AL, uint8(now.Weekday()))
	case 0x2B:
		c.SetReg8(cpu.AL, 0xFF) // invalid, date not actually settable
	case 0x2C:
		c.SetReg8(cpu.CH, uint8(now.Hour()))
		c.SetReg8(cpu.CL, uint8(now.Minute()))
		c.SetReg8(cpu.DH, uint8(now.Second()))
		c.SetReg8(cpu.DL, uint8(now.Nanosecond()/10000000))
	case 0x2D:
		c.SetReg8(cpu.AL, 0xFF)
	}
	d.ok(c)
}
