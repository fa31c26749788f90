// Package dos implements the INT 21h function dispatcher plus INT
// 20h/22h/28h/2Fh, mapping the DOS API onto host filesystem and process
// primitives, per spec.md §4.5. Grounded on spec.md §4.5 directly for the
// function catalogue and on original_source/src/dos.c for the exact
// case list, including the supplemented AH=29h/33h/36h/37h functions
// SPEC_FULL.md §12 documents.
package dos

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"syscall"

	"github.com/dmsc-emu/emu2go/internal/console"
	"github.com/dmsc-emu/emu2go/internal/cpu"
	"github.com/dmsc-emu/emu2go/internal/emulog"
	"github.com/dmsc-emu/emu2go/internal/mcb"
	"github.com/dmsc-emu/emu2go/internal/memory"
	"github.com/dmsc-emu/emu2go/internal/nls"
	"github.com/dmsc-emu/emu2go/internal/pathtr"
	"github.com/dmsc-emu/emu2go/internal/segment"
)

// handle is one open-file-table entry.
type handle struct {
	file  *os.File
	isTTY bool
}

// Dispatcher owns every piece of mutable DOS state: the open-file table,
// the FCB-free find-first pool, the per-drive CWD map, the current DTA,
// the current PSP, and the NLS tables, per spec.md §3.
type Dispatcher struct {
	CPU     *cpu.CPU
	Mem     *memory.Memory
	Alloc   *mcb.Allocator
	Drives  *pathtr.DriveMap
	Find    *pathtr.FindPool
	NLS     nls.Tables
	Log     *emulog.Loggers
	Console *console.Console

	DefaultDrive int
	AppendPath   string

	CurPSP   uint16
	DTA      uint32
	Strategy mcb.Strategy

	handles    map[uint16]*handle
	nextHandle uint16

	// ExitCode is the last terminated child's return code, queried by a
	// subsequent AH=4Dh.
	ExitCode uint16

	// ExecChild, when set, is called by function 4Bh sub-function 00h to
	// launch a child process; left nil in tests that never exec.
	ExecChild func(hostPath, cmdTail string, env []string) (exitCode uint16, err error)

	// OnExit is invoked when the top-level process (parent PSP 0xFFFE)
	// terminates; the host's main loop supplies this to end Run cleanly
	// rather than this package calling os.Exit directly.
	OnExit func(code uint8)
}

// New builds a Dispatcher wired to the given CPU and support packages.
func New(c *cpu.CPU, alloc *mcb.Allocator, drives *pathtr.DriveMap, nlsTables nls.Tables, con *console.Console, logs *emulog.Loggers) *Dispatcher {
	d := &Dispatcher{
		CPU:        c,
		Mem:        c.Mem,
		Alloc:      alloc,
		Drives:     drives,
		Find:       pathtr.NewFindPool(),
		NLS:        nlsTables,
		Console:    con,
		Log:        logs,
		handles:    make(map[uint16]*handle),
		nextHandle: 5, // 0-4 are stdin/stdout/stderr/stdaux/stdprn
	}
	// The five standard handles are console-backed (stdaux/stdprn are
	// accepted writes that simply reach the same sink; no guest here
	// distinguishes them from the console).
	for h := uint16(0); h < 5; h++ {
		d.handles[h] = &handle{isTTY: true}
	}
	return d
}

// Dispatch handles one trampoline entry for vector (20h/21h/22h/28h/2Fh),
// per spec.md §4.5. Only 21h has function sub-dispatch; the others are
// fixed operations (20h is a bare exit, 22h/28h/2Fh are rarely intercepted
// and default to a silent no-op/IRET).
func (d *Dispatcher) Dispatch(c *cpu.CPU, vector uint8) {
	switch vector {
	case 0x20:
		d.exit(0)
	case 0x21:
		d.dispatch21(c)
	case 0x22, 0x28, 0x2F:
		// no guest-visible side effect; a real DOS TSR might hook these,
		// but no supported guest behavior here depends on it.
	}
}

// dispatch21 handles the INT 21h function table. The function number is
// always taken from AH; the CP/M far-call-through-0000:00C0 convention
// (function number in CL) is not handled.
func (d *Dispatcher) dispatch21(c *cpu.CPU) {
	ah := c.GetReg8(cpu.AH)
	d.logCall(ah)

	switch {
	case ah <= 0x0C:
		d.consoleIO(c, ah)
	case ah == 0x0E, ah == 0x19, ah == 0x1A, ah == 0x2F:
		d.driveAndDTA(c, ah)
	case ah >= 0x0F && ah <= 0x17:
		d.fcbDispatch(c, ah)
	case ah >= 0x21 && ah <= 0x24:
		d.fcbDispatch(c, ah)
	case ah == 0x25:
		d.setVector(c)
	case ah >= 0x27 && ah <= 0x29:
		d.fcbDispatch(c, ah)
	case ah >= 0x2A && ah <= 0x2D:
		d.dateTime(c, ah)
	case ah == 0x30:
		d.getVersion(c)
	case ah == 0x33:
		d.ctrlBreak(c)
	case ah == 0x35:
		d.getVector(c)
	case ah == 0x36:
		d.getFreeSpace(c)
	case ah == 0x37:
		d.switchChar(c)
	case ah == 0x38:
		d.countryInfo(c)
	case ah == 0x39, ah == 0x3A, ah == 0x3B:
		d.dirOp(c, ah)
	case ah >= 0x3C && ah <= 0x46:
		d.fileIO(c, ah)
	case ah == 0x47:
		d.getCWD(c)
	case ah == 0x48, ah == 0x49, ah == 0x4A:
		d.memOp(c, ah)
	case ah == 0x4B:
		d.exec(c)
	case ah == 0x4C:
		d.exit(c.GetReg8(cpu.AL))
	case ah == 0x4D:
		c.SetReg16(cpu.AX, d.ExitCode)
		d.ok(c)
	case ah == 0x4E:
		d.findFirst(c)
	case ah == 0x4F:
		d.findNext(c)
	case ah == 0x50:
		d.CurPSP = c.GetReg16(cpu.BX)
		d.ok(c)
	case ah == 0x51, ah == 0x62:
		c.SetReg16(cpu.BX, d.CurPSP)
		d.ok(c)
	case ah == 0x55:
		d.dupPSP(c)
	case ah == 0x56:
		d.rename(c)
	case ah == 0x58:
		d.allocStrategy(c)
	case ah == 0x65:
		d.extendedCountryInfo(c)
	default:
		d.logUnknown(ah)
		c.SetReg8(cpu.AL, 0x01)
		c.Flags.SetCF(true)
	}
}

func (d *Dispatcher) logCall(ah uint8) {
	if d.Log == nil {
		return
	}
	d.Log.Channel(emulog.ChannelDOS).Debug("int21", slog.String("ah", hex8(ah)))
}

func (d *Dispatcher) logUnknown(ah uint8) {
	if d.Log == nil {
		return
	}
	d.Log.Channel(emulog.ChannelDOS).Warn("unimplemented int21 function", slog.String("ah", hex8(ah)))
}

func hex8(b uint8) string { return "0x" + byteToHex(b) }

func byteToHex(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

// ok clears CF, the common "successful call" return convention.
func (d *Dispatcher) ok(c *cpu.CPU) { c.Flags.SetCF(false) }

// fail sets AX=code and CF=1, the common DOS error-return convention.
func (d *Dispatcher) fail(c *cpu.CPU, code uint16) {
	c.SetReg16(cpu.AX, code)
	c.Flags.SetCF(true)
}

// DOS extended error codes spec.md §4.5's directory/file/rename ops map
// host errno values onto.
const (
	errFileNotFound = 2
	errPathNotFound = 3
	errAccessDenied = 5
)

// errnoToDOS maps a host filesystem error to a DOS error code per
// spec.md §4.5: EACCES/EEXIST->5, ENOTDIR/ENAMETOOLONG->3, ENOENT->2,
// else 1.
func errnoToDOS(err error) uint16 {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errFileNotFound
	case errors.Is(err, fs.ErrExist), errors.Is(err, fs.ErrPermission):
		return errAccessDenied
	case errors.Is(err, syscall.ENOTDIR), errors.Is(err, syscall.ENAMETOOLONG), errors.Is(err, fs.ErrInvalid):
		return errPathNotFound
	default:
		return 1
	}
}

// readASCIZ reads a NUL-terminated string at seg:off, capped at max
// bytes (DOS paths are bounded at 64 bytes, per spec.md §4.6).
func (d *Dispatcher) readASCIZ(seg segment.Register, off uint16, max int) string {
	buf := make([]byte, 0, 16)
	for i := 0; i < max; i++ {
		b := d.CPU.ReadByte(seg, off+uint16(i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// resolvePath normalizes and resolves a DS:DX-style ASCIZ DOS path
// argument into a host path, trying the append-path list on failure.
func (d *Dispatcher) resolvePath(dosPath string, force bool) (hostPath string, drive int, ok bool) {
	hostPath, drive, _, ok = d.resolvePathNormalized(dosPath, force)
	return hostPath, drive, ok
}

// resolvePathNormalized is resolvePath plus the normalized DOS path
// itself, needed by callers that must also update per-drive CWD state
// (AH=3Bh chdir).
func (d *Dispatcher) resolvePathNormalized(dosPath string, force bool) (hostPath string, drive int, normalized string, ok bool) {
	drive, normalized = pathtr.Normalize(d.Drives, d.DefaultDrive, dosPath)
	if force {
		hostPath, ok = pathtr.Resolve(d.Drives, drive, normalized, true)
		return hostPath, drive, normalized, ok
	}
	hostPath, ok = pathtr.ResolveWithAppend(d.Drives, drive, normalized, d.AppendPath)
	return hostPath, drive, normalized, ok
}

// exit implements AH=4Ch/00h/INT 20h (spec.md §4.5): if the current
// PSP's parent field is 0xFFFE the host process exits; otherwise control
// returns to the parent PSP with its saved SS:SP and INT22h vector.
func (d *Dispatcher) exit(code uint8) {
	d.ExitCode = uint16(code)
	parentPSP := d.Mem.ReadWord(memory.LinearAddr(d.CurPSP, 0x16))
	if parentPSP == 0xFFFE || parentPSP == 0 {
		if d.OnExit != nil {
			d.OnExit(code)
		}
		return
	}

	// Restore parent's INT 22h/23h/24h vectors (saved at PSP+0x0A on
	// child creation, see loader/exec wiring) and resume at INT22h.
	int22 := d.Mem.ReadDword(memory.LinearAddr(d.CurPSP, 0x0A))
	int23 := d.Mem.ReadDword(memory.LinearAddr(d.CurPSP, 0x0E))
	int24 := d.Mem.ReadDword(memory.LinearAddr(d.CurPSP, 0x12))
	d.Mem.WriteDword(0x22*4, int22)
	d.Mem.WriteDword(0x23*4, int23)
	d.Mem.WriteDword(0x24*4, int24)

	ss := d.Mem.ReadWord(memory.LinearAddr(d.CurPSP, 0x2E))
	sp := d.Mem.ReadWord(memory.LinearAddr(d.CurPSP, 0x30))
	d.CurPSP = parentPSP

	retIP := uint16(int22)
	retCS := uint16(int22 >> 16)

	d.CPU.Seg[segment.SS] = segment.Cache{Selector: ss, Base: uint32(ss) << 4, Limit: 0xFFFF, Flags: 0x92}
	d.CPU.Regs[cpu.SP] = sp
	d.CPU.Push(0x0202) // FLAGS with IF=1
	d.CPU.Push(retCS)
	d.CPU.Push(retIP)
}
