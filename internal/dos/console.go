package dos

import "github.com/dmsc-emu/emu2go/internal/cpu"

// consoleIO implements INT 21h AH=01h-0Ch (spec.md §4.5): single-char
// read with/without echo, buffered line input, STDIN status, and
// flush-then-redo. This emulator's console sink has no raw-mode
// distinction surfaced here (internal/console owns that), so "with
// echo" always echoes and "without echo" never does.
func (d *Dispatcher) consoleIO(c *cpu.CPU, ah uint8) {
	switch ah {
	case 0x01: // read char with echo
		b := d.readChar(c, true)
		c.SetReg8(cpu.AL, b)
	case 0x02: // write char (DL)
		d.Console.PutChar(c.GetReg8(cpu.DL))
	case 0x03, 0x04: // aux I/O, not modeled
		c.SetReg8(cpu.AL, 0)
	case 0x05: // printer output, discarded
	case 0x06: // direct console I/O
		dl := c.GetReg8(cpu.DL)
		if dl == 0xFF {
			if d.Console.KeyReady() {
				b, _ := d.Console.GetChar()
				c.SetReg8(cpu.AL, b)
				c.Flags.SetZF(false)
			} else {
				c.SetReg8(cpu.AL, 0)
				c.Flags.SetZF(true)
			}
			return
		}
		d.Console.PutChar(dl)
	case 0x07: // read char, no echo, no Ctrl-C check
		c.SetReg8(cpu.AL, d.readChar(c, false))
	case 0x08: // read char, no echo
		c.SetReg8(cpu.AL, d.readChar(c, false))
	case 0x09: // write '$'-terminated string at DS:DX
		d.writeDollarString(c)
	case 0x0A: // buffered line input at DS:DX
		d.bufferedLineInput(c)
	case 0x0B: // STDIN status
		if d.Console.KeyReady() {
			c.SetReg8(cpu.AL, 0xFF)
		} else {
			c.SetReg8(cpu.AL, 0x00)
		}
	case 0x0C: // flush input buffer then invoke function in AL
		for d.Console.KeyReady() {
			d.Console.GetChar()
		}
		if fn := c.GetReg8(cpu.AL); fn == 0x01 || fn == 0x06 || fn == 0x07 || fn == 0x08 || fn == 0x0A {
			d.consoleIO(c, fn)
			return
		}
	}
	d.ok(c)
}

func (d *Dispatcher) readChar(c *cpu.CPU, echo bool) byte {
	b, err := d.Console.GetChar()
	if err != nil {
		return 0x1A // Ctrl-Z / EOF
	}
	if echo {
		d.Console.PutChar(b)
	}
	return b
}

func (d *Dispatcher) writeDollarString(c *cpu.CPU) {
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	var out []byte
	for i := 0; i < 0xFFFF; i++ {
		b := c.ReadByte(seg, off+uint16(i))
		if b == '$' {
			break
		}
		out = append(out, b)
	}
	d.Console.PutString(out)
}

// bufferedLineInput implements AH=0Ah: the buffer at DS:DX has max-size
// at offset 0; the result length is written at offset 1 and the text at
// offset 2, terminated without an explicit NUL (per DOS convention).
func (d *Dispatcher) bufferedLineInput(c *cpu.CPU) {
	seg := c.DefaultDataSeg()
	off := c.GetReg16(cpu.DX)
	maxLen := int(c.ReadByte(seg, off))
	line, _ := d.Console.GetLine(maxLen)
	c.WriteByte(seg, off+1, byte(len(line)))
	for i, ch := range []byte(line) {
		c.WriteByte(seg, off+2+uint16(i), ch)
	}
}
