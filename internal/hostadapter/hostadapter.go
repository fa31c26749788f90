// Package hostadapter wires the CPU's narrow host-facing interfaces —
// BIOS trampoline traps and the hardware IRQ line — to the
// terminal, clock, and equipment state spec.md §4's preamble and §6
// describe as "external collaborators": only the interface the core
// consumes is modeled here, not a full BIOS/video/keyboard emulation
// (explicitly out of scope per spec.md's Non-goals and SPEC_FULL.md §12).
// It installs no port I/O handlers, so the CPU's Ports hooks stay
// zero-valued.
package hostadapter

import (
	"fmt"
	"log/slog"

	"github.com/dmsc-emu/emu2go/internal/console"
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/emulog"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// Trampoline BIOS interrupt numbers spec.md §4's "BIOS routines" list
// implements directly (video/equipment/memory/keyboard/reset/timer); DOS
// vectors (20h/21h/22h/28h/2Fh) are registered separately by RegisterDOS
// so internal/hostadapter never imports internal/dos (spec.md §2's layering:
// the dispatcher depends on the core, not the reverse).
const (
	intVideo    = 0x10
	intEquip    = 0x11
	intMemSize  = 0x12
	intKeyboard = 0x16
	intReset    = 0x19
	intTimer    = 0x1A
)

// equipmentWord is the fixed BIOS equipment-flags word spec.md §4 names.
const equipmentWord = 0x0021

// memSizeKB is the fixed conventional-memory size BIOS INT 12h reports.
const memSizeKB = 640

// Exited is returned by Run when the guest triggers INT 19h (system
// reset), which this emulator maps to a clean host-process exit rather
// than an actual reboot, per spec.md §4's "INT 19h ... host exit".
var Exited = fmt.Errorf("guest requested system reset (INT 19h)")

// Adapter owns every host-facing resource a running CPU needs: the
// console sink, the per-channel debug logs, and a monotonic tick counter
// standing in for BIOS INT 1Ah's timer count.
type Adapter struct {
	CPU     *cpu.CPU
	Console *console.Console
	Log     *emulog.Loggers

	ticks uint32
}

// New builds an Adapter and registers the fixed BIOS trampoline entries
// spec.md §4 lists (video/equipment/memsize/keyboard/reset/timer). DOS
// vectors are left unregistered until RegisterDOS is called.
func New(c *cpu.CPU, con *console.Console, logs *emulog.Loggers) *Adapter {
	a := &Adapter{CPU: c, Console: con, Log: logs}
	c.BIOSTraps[intVideo] = a.biosVideo
	c.BIOSTraps[intEquip] = a.biosEquipment
	c.BIOSTraps[intMemSize] = a.biosMemSize
	c.BIOSTraps[intKeyboard] = a.biosKeyboard
	c.BIOSTraps[intReset] = a.biosReset
	c.BIOSTraps[intTimer] = a.biosTimer
	return a
}

// RegisterDOS installs the DOS dispatcher's INT 20h/21h/22h/28h/2Fh
// trampoline entries, per spec.md §4.5/§6. Nothing is installed for the
// CP/M far-call gateway at 0000:00C0. handler is internal/dos's Dispatch method, taken as a
// plain function value so this package never imports internal/dos.
func (a *Adapter) RegisterDOS(handler func(c *cpu.CPU, vector uint8)) {
	for _, v := range []uint8{0x20, 0x21, 0x22, 0x28, 0x2F} {
		vec := v
		a.CPU.BIOSTraps[vec] = func(c *cpu.CPU, _ uint8) { handler(c, vec) }
	}
}

// biosReset implements INT 19h (system reset) as a halt; Run's caller
// sees this as the Exited sentinel once the loop notices c.Halted.
func (a *Adapter) biosReset(c *cpu.CPU, _ uint8) {
	c.Halted = true
}

func (a *Adapter) biosEquipment(c *cpu.CPU, _ uint8) {
	c.SetReg16(cpu.AX, equipmentWord)
}

func (a *Adapter) biosMemSize(c *cpu.CPU, _ uint8) {
	c.SetReg16(cpu.AX, memSizeKB)
}

// biosTimer implements INT 1Ah AH=00h (get system time): returns a
// monotonically increasing tick count derived from the adapter's
// internal counter, incremented once per Run loop iteration, which is
// sufficient for guests that merely poll the clock for elapsed time
// rather than needing wall-clock accuracy.
func (a *Adapter) biosTimer(c *cpu.CPU, _ uint8) {
	switch c.GetReg8(cpu.AH) {
	case 0x00:
		c.SetReg16(cpu.CX, uint16(a.ticks>>16))
		c.SetReg16(cpu.DX, uint16(a.ticks))
		c.SetReg8(cpu.AL, 0)
	default:
		a.logUnknown("timer", c.GetReg8(cpu.AH))
	}
}

// biosKeyboard implements INT 16h AH=00h (blocking read) and AH=01h
// (non-blocking poll), the two functions guests actually call for
// character input via the BIOS rather than DOS.
func (a *Adapter) biosKeyboard(c *cpu.CPU, _ uint8) {
	switch c.GetReg8(cpu.AH) {
	case 0x00:
		b, err := a.Console.GetChar()
		if err != nil {
			c.SetReg16(cpu.AX, 0)
			return
		}
		c.SetReg16(cpu.AX, uint16(b))
	case 0x01:
		if a.Console.KeyReady() {
			c.Flags.SetZF(false)
		} else {
			c.Flags.SetZF(true)
		}
	default:
		a.logUnknown("keyboard", c.GetReg8(cpu.AH))
	}
}

// biosVideo implements INT 10h AH=0Eh (teletype output) directly, and
// AH=13h (write string) per the REDESIGN FLAGS resolution in
// SPEC_FULL.md §12/§13: AL bit0 moves the cursor after the write (a
// no-op here, since this console sink has no cursor state), AL bit1
// selects whether the string carries interleaved attribute bytes.
func (a *Adapter) biosVideo(c *cpu.CPU, _ uint8) {
	switch c.GetReg8(cpu.AH) {
	case 0x0E:
		a.Console.PutChar(c.GetReg8(cpu.AL))
	case 0x13:
		a.writeString(c)
	default:
		a.logUnknown("video", c.GetReg8(cpu.AH))
	}
}

// writeString reads the ES:BP-addressed string INT 10h AH=13h names (the
// real-BIOS convention: ES:BP points at the string, CX holds its length).
func (a *Adapter) writeString(c *cpu.CPU) {
	al := c.GetReg8(cpu.AL)
	withAttr := al&0x02 != 0
	count := c.GetReg16(cpu.CX)
	off := c.GetReg16(cpu.BP)
	out := make([]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		out = append(out, c.ReadByte(segment.ES, off))
		off++
		if withAttr {
			off++ // skip the attribute byte interleaved with each character
		}
	}
	a.Console.PutString(out)
}

func (a *Adapter) logUnknown(facility string, fn uint8) {
	if a.Log == nil {
		return
	}
	a.Log.Channel(emulog.ChannelInt).Warn("unhandled BIOS call", slog.String("facility", facility), slog.String("fn", fmt.Sprintf("0x%02X", fn)))
}

// Run drives the outer fetch/execute loop spec.md §5 describes: sample
// and deliver the pending IRQ, execute one instruction, deliver any fault
// it raised, and repeat until the CPU's Halted flag is set (by INT 19h or
// anything else that sets it), then return Exited.
func (a *Adapter) Run() error {
	for {
		a.CPU.CheckIRQ()
		if a.CPU.Halted {
			return Exited
		}
		fault := a.CPU.Step()
		if fault != nil {
			if a.Log != nil {
				a.Log.Channel(emulog.ChannelInt).Debug("fault", slog.Int("vector", int(fault.Vector)), slog.String("msg", fault.Error()))
			}
			a.CPU.Deliver(fault)
		}
		a.ticks++
		if a.CPU.Halted {
			return Exited
		}
	}
}

