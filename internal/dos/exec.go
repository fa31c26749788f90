package dos

import (
	"os"

	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/loader"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

func (d *Dispatcher) readHostFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// exec implements AH=4Bh, per spec.md §4.5/§9: sub-function 00h forks a
// host child that re-executes the emulator binary against the resolved
// guest program, sub-function 03h loads an overlay image in place, and
// every other sub-function fails with AX=1. The actual host fork/exec is
// performed by the caller-supplied ExecChild hook, keeping this package
// free of any os/exec dependency of its own; any error the hook returns
// is reported to the guest as AX=5 per spec.md §5's "access denied"
// convention.
func (d *Dispatcher) exec(c *cpu.CPU) {
	sub := c.GetReg8(cpu.AL)
	dosPath := d.readASCIZ(c.DefaultDataSeg(), c.GetReg16(cpu.DX), 64)

	switch sub {
	case 0x00:
		d.execChild(c, dosPath)
	case 0x03:
		d.execOverlay(c, dosPath)
	default:
		d.fail(c, 1)
	}
}

// execChild reads the EXEC parameter block at ES:BX (environment
// segment, command tail pointer, two FCB pointers — only the first two
// fields matter here), builds a serialized environment and command
// line, and hands off to ExecChild.
func (d *Dispatcher) execChild(c *cpu.CPU, dosPath string) {
	hostPath, _, ok := d.resolvePath(dosPath, false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}

	block := c.Seg[segment.ES].LinearAddress(c.GetReg16(cpu.BX))
	envSeg := d.Mem.ReadWord(block)
	tailOff := d.Mem.ReadWord(block + 2)
	tailSeg := d.Mem.ReadWord(block + 4)

	cmdTail := d.readCmdTail(tailSeg, tailOff)
	env := d.readEnvBlock(envSeg)

	if d.ExecChild == nil {
		d.fail(c, errAccessDenied)
		return
	}
	exitCode, err := d.ExecChild(hostPath, cmdTail, env)
	if err != nil {
		d.fail(c, errAccessDenied)
		return
	}
	d.ExitCode = exitCode
	d.ok(c)
}

// readCmdTail reads the length-prefixed, CR-terminated command tail the
// real INT 21h convention uses (length byte, characters, 0x0D).
func (d *Dispatcher) readCmdTail(seg, off uint16) string {
	linear := memory.LinearAddr(seg, off)
	n := int(d.Mem.ReadByte(linear))
	return string(d.Mem.ReadBytes(linear+1, n))
}

// readEnvBlock reads a DOS environment block: consecutive NUL-terminated
// "KEY=VALUE" strings terminated by an extra NUL.
func (d *Dispatcher) readEnvBlock(envSeg uint16) []string {
	if envSeg == 0 {
		return nil
	}
	var out []string
	off := uint16(0)
	for {
		linear := memory.LinearAddr(envSeg, off)
		if d.Mem.ReadByte(linear) == 0 {
			break
		}
		var buf []byte
		for {
			b := d.Mem.ReadByte(linear + uint32(len(buf)))
			if b == 0 {
				break
			}
			buf = append(buf, b)
		}
		out = append(out, string(buf))
		off += uint16(len(buf)) + 1
	}
	return out
}

// execOverlay implements AH=4Bh sub-function 03h: load an image at the
// caller-specified segment without building a PSP or new MCB block, per
// spec.md §4.4/§4.5. The parameter block at ES:BX holds the load
// segment and relocation factor.
func (d *Dispatcher) execOverlay(c *cpu.CPU, dosPath string) {
	hostPath, _, ok := d.resolvePath(dosPath, false)
	if !ok {
		d.fail(c, errFileNotFound)
		return
	}
	data, err := d.readHostFile(hostPath)
	if err != nil {
		d.fail(c, errnoToDOS(err))
		return
	}

	block := c.Seg[segment.ES].LinearAddress(c.GetReg16(cpu.BX))
	loadSeg := d.Mem.ReadWord(block)
	relocSeg := d.Mem.ReadWord(block + 2)

	if err := loader.LoadOverlay(d.Mem, data, memory.LinearAddr(loadSeg, 0), relocSeg); err != nil {
		d.fail(c, 1)
		return
	}
	d.ok(c)
}
